package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
)

// MinTokenBytes is the smallest accepted session token entropy.
const MinTokenBytes = 16

// NewSessionToken returns size random bytes encoded as unpadded base64url.
func NewSessionToken(size int) (string, error) {
	if size < MinTokenBytes {
		return "", errors.New("session token too short")
	}
	raw := make([]byte, size)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	// base64url, no padding, compact
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// Fingerprint is a short, stable, non-reversible reference to a token, safe
// to write to logs and audit records.
func Fingerprint(token string) string {
	if token == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:6])
}
