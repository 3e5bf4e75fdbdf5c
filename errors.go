package labkit

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthenticated is the sentinel behind every [AuthenticationError].
	ErrUnauthenticated = errors.New("authentication failed")
	// ErrPermissionDenied is the sentinel behind an [AuthorizationError] raised by a permission gate.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrRoleRequired is the sentinel behind an [AuthorizationError] raised by a role gate.
	ErrRoleRequired = errors.New("role required")
	// ErrSessionNotFound is returned when a token has no live session.
	ErrSessionNotFound = errors.New("session not found")
	// ErrInvalidRole is returned when a session is requested for an unknown role.
	ErrInvalidRole = errors.New("invalid role")
	// ErrInvalidUser is returned when a session is requested without a user id.
	ErrInvalidUser = errors.New("invalid user id")
	// ErrSessionBackend is returned when the session store fails.
	ErrSessionBackend = errors.New("session backend unavailable")
	// ErrRateLimited is returned when a client address has too many recent
	// authentication failures.
	ErrRateLimited = errors.New("too many failed authentication attempts")
	// ErrEngineNotReady is returned by methods called on a nil or unbuilt Engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)

// AuthenticationError reports a missing or unknown session token.
type AuthenticationError struct {
	Operation string
	// Missing is true when no token was supplied at all.
	Missing bool
}

func (e *AuthenticationError) Error() string {
	if e.Missing {
		return fmt.Sprintf("authentication required for %s", e.Operation)
	}
	return fmt.Sprintf("invalid or expired session for %s", e.Operation)
}

func (e *AuthenticationError) Unwrap() error {
	return ErrUnauthenticated
}

// AuthorizationError reports a valid session that lacks a permission or role.
// Exactly one of Permission and RequiredRole is set.
type AuthorizationError struct {
	Operation    string
	UserID       string
	Role         string
	Permission   string
	RequiredRole string
}

func (e *AuthorizationError) Error() string {
	if e.RequiredRole != "" {
		return fmt.Sprintf("role '%s' required for %s, got '%s'", e.RequiredRole, e.Operation, e.Role)
	}
	return fmt.Sprintf("permission denied: '%s' required for %s", e.Permission, e.Operation)
}

func (e *AuthorizationError) Unwrap() error {
	if e.RequiredRole != "" {
		return ErrRoleRequired
	}
	return ErrPermissionDenied
}

// IsAuthentication reports whether err is an authentication failure.
func IsAuthentication(err error) bool {
	return errors.Is(err, ErrUnauthenticated)
}

// IsAuthorization reports whether err is an authorization failure.
func IsAuthorization(err error) bool {
	return errors.Is(err, ErrPermissionDenied) || errors.Is(err, ErrRoleRequired)
}
