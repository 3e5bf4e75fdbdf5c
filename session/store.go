package session

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a token has no live session.
	ErrNotFound = errors.New("session not found")
	// ErrStoreUnavailable wraps backend failures.
	ErrStoreUnavailable = errors.New("session store unavailable")
)

// Store persists sessions keyed by token.
//
// Implementations must be safe for concurrent use.
type Store interface {
	// Save writes sess under sess.Token. A zero ttl keeps it until deleted.
	Save(ctx context.Context, sess *Session, ttl time.Duration) error
	// Get returns ErrNotFound for unknown or expired tokens.
	Get(ctx context.Context, token string) (*Session, error)
	// Delete reports whether a session existed for token.
	Delete(ctx context.Context, token string) (bool, error)
	// DeleteAllForUser removes every session of userID and returns how many existed.
	DeleteAllForUser(ctx context.Context, userID string) (int, error)
	// Count returns the number of tracked sessions.
	Count(ctx context.Context) (int, error)
	Ping(ctx context.Context) (time.Duration, error)
}
