// Package config loads service configuration from a YAML file and the
// environment. Environment variables use the KEYWARD_ prefix with underscores
// for nesting (KEYWARD_AUTH_TOKEN_SECRET overrides auth.token_secret).
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    Server    `mapstructure:"server"`
	Auth      Auth      `mapstructure:"auth"`
	Database  Database  `mapstructure:"database"`
	Audit     Audit     `mapstructure:"audit"`
	RateLimit RateLimit `mapstructure:"ratelimit"`
}

type Server struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxBodyBytes    int64         `mapstructure:"max_body_bytes"`
}

type Auth struct {
	TokenSecret string        `mapstructure:"token_secret"`
	TokenTTL    time.Duration `mapstructure:"token_ttl"`
	Issuer      string        `mapstructure:"issuer"`
}

type Database struct {
	// Type selects the backend: "memory" or "postgres".
	Type string `mapstructure:"type"`
	DSN  string `mapstructure:"dsn"`
}

type Audit struct {
	QueueSize int `mapstructure:"queue_size"`
	Workers   int `mapstructure:"workers"`
}

type RateLimit struct {
	Enabled   bool `mapstructure:"enabled"`
	PerSecond int  `mapstructure:"per_second"`
	Burst     int  `mapstructure:"burst"`
}

// Load reads configuration from the given file path (optional) and the
// environment, applying defaults for everything tunable.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("KEYWARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.max_body_bytes", 1<<20)

	// Empty defaults register the keys so AutomaticEnv can populate them
	// through Unmarshal.
	v.SetDefault("auth.token_secret", "")
	v.SetDefault("auth.token_ttl", 24*time.Hour)
	v.SetDefault("auth.issuer", "keyward")

	v.SetDefault("database.type", "memory")
	v.SetDefault("database.dsn", "")

	v.SetDefault("audit.queue_size", 1024)
	v.SetDefault("audit.workers", 2)

	v.SetDefault("ratelimit.enabled", false)
	v.SetDefault("ratelimit.per_second", 20)
	v.SetDefault("ratelimit.burst", 40)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	return cfg, cfg.validate()
}

func (c Config) validate() error {
	if strings.TrimSpace(c.Auth.TokenSecret) == "" {
		return errors.New("auth.token_secret is required (KEYWARD_AUTH_TOKEN_SECRET)")
	}
	switch c.Database.Type {
	case "memory":
	case "postgres":
		if strings.TrimSpace(c.Database.DSN) == "" {
			return errors.New("database.dsn is required for the postgres backend")
		}
	default:
		return fmt.Errorf("unknown database.type %q", c.Database.Type)
	}
	if c.Auth.TokenTTL <= 0 {
		return errors.New("auth.token_ttl must be positive")
	}
	return nil
}
