// Package session provides session records, their compact binary encoding,
// and the stores that hold them: an in-memory map and a Redis-backed store.
//
// # Binary encoding
//
// Sessions are stored as a versioned binary blob keyed by token. The token
// itself is never part of the blob.
//
// # Architecture boundaries
//
// This package owns the [Store] implementations and the [Session] model. It does NOT
// evaluate permissions or enforce authorization policy; those
// responsibilities belong to the Engine.
//
// # What this package must NOT do
//
//   - Import labkit (no upward imports).
//   - Perform application-level authorization decisions.
//   - Log or otherwise expose session tokens.
package session
