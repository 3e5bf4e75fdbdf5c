// Package settings loads process-level configuration for labkit commands.
//
// Values come from config.json in the project root, overridden by LABKIT_*
// environment variables (LABKIT_LOG_LEVEL overrides log.level).
package settings

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Settings is the root of the process configuration.
type Settings struct {
	ProjectRoot string          `mapstructure:"project_root"`
	Log         LogSettings     `mapstructure:"log"`
	Session     SessionSettings `mapstructure:"session"`
	Redis       RedisSettings   `mapstructure:"redis"`
	Audit       AuditSettings   `mapstructure:"audit"`
	Secrets     SecretSettings  `mapstructure:"secrets"`
	Exec        ExecSettings    `mapstructure:"exec"`
}

type LogSettings struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

// SessionSettings selects the session backend ("memory" or "redis").
type SessionSettings struct {
	Backend string        `mapstructure:"backend"`
	TTL     time.Duration `mapstructure:"ttl"`
	Prefix  string        `mapstructure:"prefix"`
}

type RedisSettings struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type AuditSettings struct {
	Enabled    bool `mapstructure:"enabled"`
	BufferSize int  `mapstructure:"buffer_size"`
	// File is relative to the project root unless absolute.
	File string `mapstructure:"file"`
}

type SecretSettings struct {
	EnvFile string `mapstructure:"env_file"`
}

type ExecSettings struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

// Load reads config.json from dir (when present) and the environment.
// A missing file is not an error.
func Load(dir string) (*Settings, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("json")
	if dir == "" {
		dir = "."
	}
	v.AddConfigPath(dir)

	v.SetEnvPrefix("LABKIT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v, dir)

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

func setDefaults(v *viper.Viper, dir string) {
	v.SetDefault("project_root", dir)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("session.backend", "memory")
	v.SetDefault("session.ttl", time.Duration(0))
	v.SetDefault("session.prefix", "lk")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("audit.enabled", true)
	v.SetDefault("audit.buffer_size", 1024)
	v.SetDefault("audit.file", "outputs/audit_logs/data_processing_audit.log")
	v.SetDefault("secrets.env_file", ".env")
	v.SetDefault("exec.timeout", 30*time.Second)
}

// Validate checks cross-field constraints.
func (s *Settings) Validate() error {
	switch s.Session.Backend {
	case "memory":
	case "redis":
		if s.Redis.Addr == "" {
			return errors.New("session.backend=redis requires redis.addr")
		}
	default:
		return fmt.Errorf("unknown session.backend %q", s.Session.Backend)
	}
	if s.Session.TTL < 0 {
		return errors.New("session.ttl must be >= 0")
	}
	if s.Exec.Timeout <= 0 {
		return errors.New("exec.timeout must be > 0")
	}
	return nil
}
