package session

import (
	"time"

	"github.com/MrEthical07/labkit/permission"
)

// Session is the record stored for one opaque session token.
type Session struct {
	Token  string
	UserID string
	Role   string

	Mask *permission.Mask64

	CreatedAt int64
	// ExpiresAt is a unix timestamp; zero means the session never expires.
	ExpiresAt int64
}

// Expired reports whether the session has a deadline that lies before now.
func (s *Session) Expired(now time.Time) bool {
	return s.ExpiresAt > 0 && now.Unix() >= s.ExpiresAt
}

// Clone returns a deep copy of s.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	if s.Mask != nil {
		m := *s.Mask
		out.Mask = &m
	}
	return &out
}
