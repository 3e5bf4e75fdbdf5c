package labkit

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/MrEthical07/labkit/internal/audit"
	"github.com/MrEthical07/labkit/internal/rate"
	"github.com/MrEthical07/labkit/permission"
	"github.com/MrEthical07/labkit/session"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ErrBuilderUsed is returned by a second call to [Builder.Build].
var ErrBuilderUsed = errors.New("builder already used")

// Builder assembles an [Engine].
//
// Builder instances are intended to be configured during initialization and then treated as immutable.
type Builder struct {
	config Config
	redis  redis.UniversalClient
	store  session.Store

	permissions []string
	roles       map[string][]string

	auditSink AuditSink
	logger    *zap.Logger

	// Explicit toggles survive a later WithConfig.
	metricsEnabled *bool
	latencyEnabled *bool

	built bool
}

// New returns a Builder preloaded with [DefaultConfig], [DefaultPermissions]
// and [DefaultRoles]. Sessions live in memory unless WithRedis or WithStore
// is used.
func New() *Builder {
	return &Builder{
		config:      defaultConfig(),
		permissions: DefaultPermissions(),
		roles:       DefaultRoles(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithRedis keeps sessions in Redis under Config.Session.RedisPrefix.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithStore supplies a custom session store. It takes precedence over WithRedis.
func (b *Builder) WithStore(store session.Store) *Builder {
	b.store = store
	return b
}

// WithPermissions replaces the permission list. Order fixes bit positions.
func (b *Builder) WithPermissions(perms []string) *Builder {
	b.permissions = perms
	return b
}

// WithRoles replaces the role table.
func (b *Builder) WithRoles(r map[string][]string) *Builder {
	b.roles = r
	return b
}

// WithAuditSink sets the sink receiving audit events. A non-nil sink turns
// audit on regardless of Config.Audit.Enabled.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger sets the engine's operational logger. The default discards output.
func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	b.logger = logger
	return b
}

// WithMetricsEnabled overrides Config.Metrics.Enabled, whatever order
// WithConfig is called in.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.metricsEnabled = &enabled
	return b
}

// WithLatencyHistograms overrides Config.Metrics.EnableLatencyHistograms.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.latencyEnabled = &enabled
	return b
}

// Build validates the configuration, freezes the permission registry and
// role table, and returns a ready Engine. A Builder can be built once.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, ErrBuilderUsed
	}

	cfg := b.config
	if b.auditSink != nil {
		cfg.Audit.Enabled = true
	}
	if b.metricsEnabled != nil {
		cfg.Metrics.Enabled = *b.metricsEnabled
	}
	if b.latencyEnabled != nil {
		cfg.Metrics.EnableLatencyHistograms = *b.latencyEnabled
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if len(b.permissions) == 0 {
		return nil, errors.New("permissions must be provided")
	}

	if len(b.roles) == 0 {
		return nil, errors.New("roles must be provided")
	}

	if cfg.RateLimit.Enabled && b.redis == nil {
		return nil, errors.New("rate limiting requires WithRedis")
	}

	// -------- PERMISSION REGISTRY --------
	registry := permission.NewRegistry(cfg.Permission.RootBitReserved)

	for _, p := range b.permissions {
		if _, err := registry.Register(p); err != nil {
			return nil, err
		}
	}

	registry.Freeze()

	// -------- ROLE MANAGER --------
	roleManager := permission.NewRoleManager(registry)

	roleNames := make([]string, 0, len(b.roles))
	for name := range b.roles {
		roleNames = append(roleNames, name)
	}
	sort.Strings(roleNames)

	for _, roleName := range roleNames {
		if err := roleManager.RegisterRole(roleName, b.roles[roleName]); err != nil {
			return nil, fmt.Errorf("role %q: %w", roleName, err)
		}
	}

	roleManager.Freeze()

	// -------- SESSION STORE --------
	var store session.Store
	switch {
	case b.store != nil:
		store = b.store
	case b.redis != nil:
		store = session.NewRedisStore(b.redis, cfg.Session.RedisPrefix)
	default:
		store = session.NewMemoryStore()
	}

	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	engine := &Engine{
		config:       cfg,
		registry:     registry,
		roleManager:  roleManager,
		sessionStore: store,
		logger:       logger.Named("labkit"),
		now:          time.Now,
	}

	engine.audit = audit.NewDispatcher(audit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, b.auditSink)
	engine.metrics = NewMetrics(cfg.Metrics)

	if cfg.RateLimit.Enabled {
		engine.limiter = rate.New(b.redis, rate.Config{
			MaxFailures: cfg.RateLimit.MaxFailures,
			Window:      cfg.RateLimit.Window,
			Prefix:      cfg.Session.RedisPrefix,
		})
	}

	b.built = true

	return engine, nil
}
