// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package config

import (
	"errors"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/holomush/identity/internal/xdg"
)

// EnvPrefix prefixes environment overrides. A double underscore separates
// nesting levels: IDENTITY_STORE__DATABASE_URL sets store.database_url.
const EnvPrefix = "IDENTITY_"

// listKeys are split on commas when set from the environment.
var listKeys = map[string]bool{
	"http.cors_origins":           true,
	"accounts.reserved_usernames": true,
}

// flagKeys maps command-line flag names to config keys.
var flagKeys = map[string]string{
	"http-addr":     "http.addr",
	"metrics-addr":  "metrics.addr",
	"log-format":    "log.format",
	"log-level":     "log.level",
	"store-driver":  "store.driver",
	"database-url":  "store.database_url",
	"auto-migrate":  "store.auto_migrate",
	"cors-origins":  "http.cors_origins",
	"read-timeout":  "http.read_timeout",
	"write-timeout": "http.write_timeout",
}

// LoadOptions controls where Load reads from.
type LoadOptions struct {
	// File is an explicit config file. It must exist. When empty, the XDG
	// default file is read if present.
	File string
	// EnvFile is an optional dotenv file loaded into the process
	// environment before IDENTITY_* variables are read. Variables already
	// set are not overridden.
	EnvFile string
	// Flags holds flags registered with BindFlags. Only flags the user
	// changed take effect.
	Flags *pflag.FlagSet
}

// BindFlags registers the config override flags on fs.
func BindFlags(fs *pflag.FlagSet) {
	d := Defaults()
	fs.String("http-addr", d.HTTP.Addr, "HTTP API listen address")
	fs.String("metrics-addr", d.Metrics.Addr, "metrics and health listen address (empty disables)")
	fs.String("log-format", d.Log.Format, "log format: json, text, or console")
	fs.String("log-level", d.Log.Level, "log level: debug, info, warn, or error")
	fs.String("store-driver", d.Store.Driver, "account store: postgres or memory")
	fs.String("database-url", "", "PostgreSQL connection URL")
	fs.Bool("auto-migrate", d.Store.AutoMigrate, "apply pending migrations on startup")
	fs.StringSlice("cors-origins", nil, "allowed CORS origins")
	fs.Duration("read-timeout", d.HTTP.ReadTimeout, "HTTP read timeout")
	fs.Duration("write-timeout", d.HTTP.WriteTimeout, "HTTP write timeout")
}

// Load builds the configuration from defaults, file, environment, and flags,
// then validates it.
func Load(opts LoadOptions) (*Config, error) {
	k := koanf.New(".")

	if err := loadDefaults(k); err != nil {
		return nil, err
	}

	path, err := configPath(opts.File)
	if err != nil {
		return nil, err
	}
	if path != "" {
		if err := loadFile(k, path); err != nil {
			return nil, err
		}
	}

	if opts.EnvFile != "" {
		if err := godotenv.Load(opts.EnvFile); err != nil {
			return nil, oops.Code("CONFIG_ENV_FILE_FAILED").With("path", opts.EnvFile).Wrap(err)
		}
	}
	if err := k.Load(env.ProviderWithValue(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "environment").Wrap(err)
	}
	// DATABASE_URL is the conventional name used by migration tooling.
	if k.String("store.database_url") == "" {
		if url := os.Getenv("DATABASE_URL"); url != "" {
			if err := k.Set("store.database_url", url); err != nil {
				return nil, oops.Code("CONFIG_LOAD_FAILED").Wrap(err)
			}
		}
	}

	if opts.Flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(opts.Flags, ".", k, flagKey(opts.Flags)), nil); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "flags").Wrap(err)
		}
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, oops.Code("CONFIG_INVALID").With("operation", "decode config").Wrap(err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadDefaults(k *koanf.Koanf) error {
	d := Defaults()
	defaults := map[string]any{
		"http.addr":                   d.HTTP.Addr,
		"http.read_timeout":           d.HTTP.ReadTimeout.String(),
		"http.write_timeout":          d.HTTP.WriteTimeout.String(),
		"http.cors_origins":           []string{},
		"metrics.addr":                d.Metrics.Addr,
		"log.format":                  d.Log.Format,
		"log.level":                   d.Log.Level,
		"store.driver":                d.Store.Driver,
		"store.database_url":          d.Store.DatabaseURL,
		"store.connect_timeout":       d.Store.ConnectTimeout.String(),
		"store.auto_migrate":          d.Store.AutoMigrate,
		"hasher.memory_kib":           d.Hasher.MemoryKiB,
		"hasher.iterations":           d.Hasher.Iterations,
		"hasher.parallelism":          d.Hasher.Parallelism,
		"accounts.reserved_usernames": []string{},
	}
	for key, value := range defaults {
		if err := k.Set(key, value); err != nil {
			return oops.Code("CONFIG_LOAD_FAILED").With("key", key).Wrap(err)
		}
	}
	return nil
}

func configPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return "", oops.Code("CONFIG_NOT_FOUND").With("path", explicit).Wrap(err)
			}
			return "", oops.Code("CONFIG_LOAD_FAILED").With("path", explicit).Wrap(err)
		}
		return explicit, nil
	}
	if path, ok := xdg.DefaultConfigFile(); ok {
		return path, nil
	}
	return "", nil
}

func loadFile(k *koanf.Koanf, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // operator-supplied config path
	if err != nil {
		return oops.Code("CONFIG_LOAD_FAILED").With("path", path).Wrap(err)
	}
	if err := ValidateYAML(data); err != nil {
		return oops.Code("CONFIG_INVALID").With("path", path).Wrap(err)
	}
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return oops.Code("CONFIG_LOAD_FAILED").With("path", path).Wrap(err)
	}
	return nil
}

// envKey maps IDENTITY_HTTP__CORS_ORIGINS=a,b to http.cors_origins=[a b].
func envKey(name, value string) (string, any) {
	key := strings.ToLower(strings.TrimPrefix(name, EnvPrefix))
	key = strings.ReplaceAll(key, "__", ".")
	if listKeys[key] {
		return key, splitList(value)
	}
	return key, value
}

func flagKey(fs *pflag.FlagSet) func(f *pflag.Flag) (string, any) {
	return func(f *pflag.Flag) (string, any) {
		key, ok := flagKeys[f.Name]
		if !ok {
			return "", nil
		}
		return key, posflag.FlagVal(fs, f)
	}
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
