// Package middleware adapts labkit gates to net/http.
//
// # Guards
//
//   - [RequirePermission]: the session's role must grant a permission.
//   - [RequireRole]: the session must hold an exact role.
//
// The token is taken from "Authorization: Bearer <token>" or, failing that,
// the X-Session-Token header. Authentication failures answer 401,
// authorization failures 403, throttled addresses 429, session store
// outages 503. On success the
// [labkit.SessionInfo] is available through labkit.SessionFromContext.
//
// This package makes no decisions of its own; every check is delegated to
// the Engine.
package middleware
