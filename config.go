package labkit

import (
	"errors"
	"strings"
	"time"

	"github.com/MrEthical07/labkit/internal"
)

// Config holds engine tuning. Start from [DefaultConfig] and override fields.
type Config struct {
	Session    SessionConfig
	Audit      AuditConfig
	Metrics    MetricsConfig
	Permission PermissionConfig
	RateLimit  RateLimitConfig
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig controls token generation and session lifetime.
type SessionConfig struct {
	// TTL bounds session lifetime. Zero keeps sessions until revoked.
	TTL time.Duration
	// TokenBytes is the random entropy behind each token.
	TokenBytes int
	// RedisPrefix namespaces keys when sessions live in Redis.
	RedisPrefix string
}

/*
====================================
AUDIT CONFIG
====================================
*/

type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

/*
====================================
METRICS CONFIG
====================================
*/

type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
RATE LIMIT CONFIG
====================================
*/

// RateLimitConfig throttles failed authentication per client IP. It needs a
// Redis-backed engine and only applies to calls carrying [WithClientIP].
type RateLimitConfig struct {
	Enabled bool
	// MaxFailures unknown-token attempts are allowed per Window.
	MaxFailures int
	Window      time.Duration
}

/*
====================================
PERMISSION CONFIG
====================================
*/

// PermissionConfig controls the permission registry.
type PermissionConfig struct {
	// RootBitReserved reserves the highest mask bit as a grant-all bit.
	// Roles cannot name it; it exists for masks built outside the role table.
	RootBitReserved bool
}

// DefaultConfig returns the configuration used by [New].
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Session: SessionConfig{
			TTL:         0,
			TokenBytes:  32,
			RedisPrefix: "lk",
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
		Permission: PermissionConfig{
			RootBitReserved: false,
		},
		RateLimit: RateLimitConfig{
			Enabled:     false,
			MaxFailures: 10,
			Window:      time.Minute,
		},
	}
}

// Validate checks field ranges and cross-field constraints.
func (c *Config) Validate() error {
	// Session
	if c.Session.TTL < 0 {
		return errors.New("Session TTL must be >= 0")
	}
	if c.Session.TTL > 0 && c.Session.TTL < time.Second {
		return errors.New("Session TTL must be at least 1s when set")
	}
	if c.Session.TokenBytes < internal.MinTokenBytes {
		return errors.New("Session TokenBytes must be >= 16")
	}
	if c.Session.TokenBytes > 128 {
		return errors.New("Session TokenBytes must be <= 128")
	}
	if strings.TrimSpace(c.Session.RedisPrefix) == "" {
		return errors.New("Session RedisPrefix must not be empty")
	}
	if strings.ContainsAny(c.Session.RedisPrefix, " \t\r\n") {
		return errors.New("Session RedisPrefix must not contain whitespace")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	// Metrics
	if c.Metrics.EnableLatencyHistograms && !c.Metrics.Enabled {
		return errors.New("Metrics EnableLatencyHistograms requires Metrics Enabled")
	}

	// Rate limit
	if c.RateLimit.Enabled {
		if c.RateLimit.MaxFailures <= 0 {
			return errors.New("RateLimit MaxFailures must be > 0 when rate limiting is enabled")
		}
		if c.RateLimit.Window < time.Second {
			return errors.New("RateLimit Window must be at least 1s")
		}
	}

	return nil
}
