// Package labkit is the access-control core for data-processing workloads:
// opaque session tokens, a bitmask role table, and gates that check a
// session's permission or role before an operation runs.
//
// An [Engine] is assembled by [Builder]. The default role table is
//
//	admin           read write delete scale encode split process
//	data_scientist  read write scale encode split process
//	data_analyst    read scale encode process
//	viewer          read
//
// Gates come in two forms. [Engine.Authorize] and [Engine.AuthorizeRole]
// check a token directly; [WithPermission] and [WithRole] wrap a function so
// the check happens on every call and the authorized [SessionInfo] travels
// in the context.
//
// Failed checks return *[AuthenticationError] (no token, or an unknown or
// expired one) or *[AuthorizationError] (valid session, missing grant).
// Both unwrap to sentinels, so callers can branch with errors.Is.
//
// # Architecture boundaries
//
// Session encoding, token generation, and audit dispatch live under
// internal/ and session/. Redis is reachable only through [Builder.WithRedis].
//
// Engine methods are safe for concurrent use after [Builder.Build].
package labkit
