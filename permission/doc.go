// Package permission provides the 64-bit permission mask, the permission
// registry, and the role table used by labkit authorization checks.
//
// # Masks
//
// Bit positions are assigned by [Registry.Register] in registration order and
// are stable for the lifetime of the process. When the root bit is reserved it
// is the highest bit and grants every permission.
//
// # Architecture boundaries
//
// This package is a pure in-memory data structure with no I/O. It provides the
// codec (Encode/Decode) used by the session binary encoder.
//
// # What this package must NOT do
//
//   - Access Redis, files, or the network.
//   - Import labkit or session.
//   - Accept registrations after Freeze.
package permission
