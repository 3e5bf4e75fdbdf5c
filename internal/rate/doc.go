// Package rate implements the Redis fixed-window counter that throttles
// failed authentication attempts per client address.
//
// # Window semantics
//
// INCR + conditional EXPIRE on the first hit of a window. Keys are
// "<prefix>:rl:<address>".
//
// # What this package must NOT do
//
//   - Decide what counts as a failure (the Engine does).
//   - Be imported outside the labkit module.
package rate
