// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package config loads the identity service configuration.
//
// Values are layered, later sources winning: built-in defaults, the YAML
// config file, IDENTITY_* environment variables, then command-line flags
// that were explicitly set.
package config

import (
	"net"
	"time"

	"github.com/gobwas/glob"
	"github.com/samber/oops"

	"github.com/holomush/identity/internal/account"
	"github.com/holomush/identity/internal/logging"
)

// Store drivers.
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config is the complete service configuration.
type Config struct {
	HTTP     HTTPConfig     `koanf:"http"`
	Metrics  MetricsConfig  `koanf:"metrics"`
	Log      LogConfig      `koanf:"log"`
	Store    StoreConfig    `koanf:"store"`
	Hasher   HasherConfig   `koanf:"hasher"`
	Accounts AccountsConfig `koanf:"accounts"`
}

// HTTPConfig configures the public API listener.
type HTTPConfig struct {
	Addr         string        `koanf:"addr" jsonschema:"description=Listen address for the HTTP API"`
	ReadTimeout  time.Duration `koanf:"read_timeout" jsonschema:"description=Maximum duration for reading a request"`
	WriteTimeout time.Duration `koanf:"write_timeout" jsonschema:"description=Maximum duration for writing a response"`
	CORSOrigins  []string      `koanf:"cors_origins" jsonschema:"description=Allowed CORS origins"`
}

// MetricsConfig configures the metrics and health probe listener.
type MetricsConfig struct {
	Addr string `koanf:"addr" jsonschema:"description=Listen address for /metrics and /healthz; empty disables it"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Format string `koanf:"format" jsonschema:"enum=json,enum=text,enum=console"`
	Level  string `koanf:"level" jsonschema:"enum=debug,enum=info,enum=warn,enum=error"`
}

// StoreConfig selects and configures the account store.
type StoreConfig struct {
	Driver         string        `koanf:"driver" jsonschema:"enum=postgres,enum=memory"`
	DatabaseURL    string        `koanf:"database_url" jsonschema:"description=PostgreSQL connection URL"`
	ConnectTimeout time.Duration `koanf:"connect_timeout" jsonschema:"description=How long to retry the initial database connection"`
	AutoMigrate    bool          `koanf:"auto_migrate" jsonschema:"description=Apply pending migrations on startup"`
}

// HasherConfig sets the argon2id cost parameters.
type HasherConfig struct {
	MemoryKiB   uint32 `koanf:"memory_kib" jsonschema:"minimum=8"`
	Iterations  uint32 `koanf:"iterations" jsonschema:"minimum=1"`
	Parallelism uint8  `koanf:"parallelism" jsonschema:"minimum=1"`
}

// Argon2Params converts the config to hasher parameters.
func (h HasherConfig) Argon2Params() account.Argon2Params {
	return account.Argon2Params{
		MemoryKiB:   h.MemoryKiB,
		Iterations:  h.Iterations,
		Parallelism: h.Parallelism,
	}
}

// AccountsConfig holds account policy.
type AccountsConfig struct {
	ReservedUsernames []string `koanf:"reserved_usernames" jsonschema:"description=Glob patterns of usernames that cannot be registered"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		HTTP: HTTPConfig{
			Addr:         ":8080",
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		Metrics: MetricsConfig{Addr: "127.0.0.1:9100"},
		Log:     LogConfig{Format: logging.FormatJSON, Level: "info"},
		Store: StoreConfig{
			Driver:         DriverPostgres,
			ConnectTimeout: 30 * time.Second,
		},
		Hasher: HasherConfig{
			MemoryKiB:   account.DefaultArgon2Params.MemoryKiB,
			Iterations:  account.DefaultArgon2Params.Iterations,
			Parallelism: account.DefaultArgon2Params.Parallelism,
		},
	}
}

// Validate checks values that the schema cannot express.
func (c *Config) Validate() error {
	if _, _, err := net.SplitHostPort(c.HTTP.Addr); err != nil {
		return invalid("http.addr", c.HTTP.Addr, err)
	}
	if c.Metrics.Addr != "" {
		if _, _, err := net.SplitHostPort(c.Metrics.Addr); err != nil {
			return invalid("metrics.addr", c.Metrics.Addr, err)
		}
	}
	if c.HTTP.ReadTimeout < 0 || c.HTTP.WriteTimeout < 0 {
		return invalid("http timeouts", "", oops.Errorf("timeouts must not be negative"))
	}

	switch c.Log.Format {
	case logging.FormatJSON, logging.FormatText, logging.FormatConsole:
	default:
		return invalid("log.format", c.Log.Format, oops.Errorf("must be json, text, or console"))
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return invalid("log.level", c.Log.Level, err)
	}

	switch c.Store.Driver {
	case DriverMemory:
	case DriverPostgres:
		if c.Store.DatabaseURL == "" {
			return invalid("store.database_url", "", oops.Errorf("required when store.driver is postgres"))
		}
	default:
		return invalid("store.driver", c.Store.Driver, oops.Errorf("must be postgres or memory"))
	}

	if c.Hasher.MemoryKiB < 8 || c.Hasher.Iterations < 1 || c.Hasher.Parallelism < 1 {
		return invalid("hasher", "", oops.Errorf("memory_kib >= 8, iterations >= 1, parallelism >= 1"))
	}

	for _, p := range c.Accounts.ReservedUsernames {
		if _, err := glob.Compile(p); err != nil {
			return invalid("accounts.reserved_usernames", p, err)
		}
	}
	return nil
}

func invalid(key, value string, cause error) error {
	b := oops.Code("CONFIG_INVALID").With("key", key)
	if value != "" {
		b = b.With("value", value)
	}
	return b.Wrapf(cause, "invalid %s", key)
}
