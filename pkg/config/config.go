// Package config loads runtime configuration from the environment.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds runtime configuration for the server.
type Config struct {
	Env          string        `envconfig:"APP_ENV" default:"development"`
	Addr         string        `envconfig:"APP_ADDR" default:":8080"`
	ReadTimeout  time.Duration `envconfig:"APP_READ_TIMEOUT" default:"15s"`
	WriteTimeout time.Duration `envconfig:"APP_WRITE_TIMEOUT" default:"15s"`
	IdleTimeout  time.Duration `envconfig:"APP_IDLE_TIMEOUT" default:"60s"`

	// DBPath is the sqlite snapshot file. ":memory:" keeps nothing across restarts.
	DBPath string `envconfig:"DB_PATH" default:"pharma.db"`

	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	CORSOrigins []string `envconfig:"CORS_ORIGINS" default:"http://localhost:5173,http://localhost:8080"`

	// WriteRateLimit is the number of commands accepted per client IP per minute.
	WriteRateLimit int `envconfig:"WRITE_RATE_LIMIT" default:"120"`

	// MonitorInterval is how often lot expiry and stock levels are checked.
	// Zero disables the monitor.
	MonitorInterval time.Duration `envconfig:"MONITOR_INTERVAL" default:"1h"`

	// Actor is recorded on movements and transactions when a request names none.
	Actor string `envconfig:"DEFAULT_ACTOR" default:""`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		return nil, errors.New("config: DB_PATH must not be empty")
	}
	if cfg.WriteRateLimit <= 0 {
		return nil, errors.New("config: WRITE_RATE_LIMIT must be positive")
	}
	if cfg.MonitorInterval < 0 {
		return nil, errors.New("config: MONITOR_INTERVAL must not be negative")
	}
	return &cfg, nil
}

// IsDevelopment reports whether logs should be human readable.
func (c *Config) IsDevelopment() bool {
	return c != nil && c.Env == "development"
}

// IsProduction returns true when the server runs in production.
func (c *Config) IsProduction() bool {
	return c != nil && c.Env == "production"
}
