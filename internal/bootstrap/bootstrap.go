// Package bootstrap turns process settings into a running engine: session
// backend, session lifetime, and the persistent audit log.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/MrEthical07/labkit"
	"github.com/MrEthical07/labkit/internal/logging"
	"github.com/MrEthical07/labkit/internal/settings"
	"github.com/MrEthical07/labkit/workspace"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Stack is an engine plus the resources opened for it.
type Stack struct {
	Engine *labkit.Engine
	Layout *workspace.Layout
	// AuditFile is the audit log path, empty when audit is off.
	AuditFile string

	closers []func() error
}

type options struct {
	redis     redis.UniversalClient
	rateLimit bool
	metrics   bool
}

// Option adjusts [Open].
type Option func(*options)

// WithRedisClient uses client instead of dialing redis.addr. The caller keeps
// ownership of client.
func WithRedisClient(client redis.UniversalClient) Option {
	return func(o *options) { o.redis = client }
}

// WithRateLimit turns on failed-authentication throttling. It needs the redis
// backend.
func WithRateLimit(enabled bool) Option {
	return func(o *options) { o.rateLimit = enabled }
}

// WithMetrics turns on counters and latency histograms.
func WithMetrics(enabled bool) Option {
	return func(o *options) { o.metrics = enabled }
}

// Open builds the engine described by s. With audit enabled, events are
// appended to the configured file as JSON lines and mirrored to logger.
func Open(ctx context.Context, s *settings.Settings, layout *workspace.Layout, logger *zap.Logger, opts ...Option) (*Stack, error) {
	if s == nil {
		return nil, errors.New("bootstrap: nil settings")
	}
	if layout == nil {
		return nil, errors.New("bootstrap: nil layout")
	}
	logger = logging.OrNop(logger)

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	st := &Stack{Layout: layout}
	ok := false
	defer func() {
		if !ok {
			_ = st.Close()
		}
	}()

	cfg := labkit.DefaultConfig()
	cfg.Session.TTL = s.Session.TTL
	if s.Session.Prefix != "" {
		cfg.Session.RedisPrefix = s.Session.Prefix
	}
	cfg.Audit.Enabled = s.Audit.Enabled
	if s.Audit.BufferSize > 0 {
		cfg.Audit.BufferSize = s.Audit.BufferSize
	}
	cfg.Metrics.Enabled = o.metrics
	cfg.Metrics.EnableLatencyHistograms = o.metrics
	cfg.RateLimit.Enabled = o.rateLimit

	b := labkit.New().WithConfig(cfg).WithLogger(logger)

	if s.Session.Backend == "redis" {
		client := o.redis
		if client == nil {
			rdb := redis.NewUniversalClient(&redis.UniversalOptions{
				Addrs:    []string{s.Redis.Addr},
				Password: s.Redis.Password,
				DB:       s.Redis.DB,
			})
			st.closers = append(st.closers, rdb.Close)
			client = rdb
		}
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("redis ping %s: %w", s.Redis.Addr, err)
		}
		b = b.WithRedis(client)
	} else if o.rateLimit {
		return nil, errors.New("bootstrap: rate limiting needs session.backend=redis")
	}

	if s.Audit.Enabled {
		path, err := auditPath(layout, s.Audit.File)
		if err != nil {
			return nil, err
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open audit log: %w", err)
		}
		st.closers = append(st.closers, f.Close)
		st.AuditFile = path
		b = b.WithAuditSink(labkit.MultiSink{
			labkit.NewJSONWriterSink(f),
			labkit.NewZapSink(logger),
		})
	}

	engine, err := b.Build()
	if err != nil {
		return nil, fmt.Errorf("engine build: %w", err)
	}
	st.Engine = engine

	logger.Info("engine ready",
		zap.String("backend", s.Session.Backend),
		zap.Duration("ttl", s.Session.TTL),
		zap.String("audit_file", st.AuditFile),
	)
	ok = true
	return st, nil
}

func auditPath(layout *workspace.Layout, file string) (string, error) {
	if file == "" {
		return layout.AuditLogPath()
	}
	path := layout.Resolve(file)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	return path, nil
}

// Close shuts the engine down first so queued audit events reach the file,
// then releases the file and any redis client Open dialed.
func (s *Stack) Close() error {
	if s == nil {
		return nil
	}
	if s.Engine != nil {
		s.Engine.Close()
		s.Engine = nil
	}
	var errs []error
	for _, c := range s.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}
