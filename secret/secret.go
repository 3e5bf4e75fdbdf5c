// Package secret generates and retrieves the credentials of a local
// development container: the Jupyter access token and the PostgreSQL
// password, both kept in a project .env file.
package secret

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"strings"
)

// CredentialBytes is the entropy of generated tokens and passwords. 48 bytes
// encode to 64 URL-safe characters (384 bits).
const CredentialBytes = 48

// Well-known .env keys.
const (
	JupyterTokenKey     = "JUPYTER_TOKEN"
	PostgresPasswordKey = "POSTGRES_PASSWORD"
)

var ErrTooShort = errors.New("secret must be at least 16 bytes")

// Generate returns nBytes of crypto-random data as unpadded base64url.
func Generate(nBytes int) (string, error) {
	if nBytes < 16 {
		return "", ErrTooShort
	}
	raw := make([]byte, nBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// JupyterToken returns a fresh notebook access token.
func JupyterToken() (string, error) {
	return Generate(CredentialBytes)
}

// PostgresPassword returns a fresh database password.
func PostgresPassword() (string, error) {
	return Generate(CredentialBytes)
}

// Mask keeps the first and last 8 characters of value and stars the rest.
// Values of 16 characters or fewer are starred entirely.
func Mask(value string) string {
	if len(value) <= 16 {
		return strings.Repeat("*", len(value))
	}
	return value[:8] + strings.Repeat("*", len(value)-16) + value[len(value)-8:]
}
