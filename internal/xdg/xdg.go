// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package xdg resolves XDG Base Directory paths for the identity service.
package xdg

import (
	"os"
	"path/filepath"

	"github.com/samber/oops"
)

const appName = "identity"

// ConfigFileName is the default config file inside ConfigDir.
const ConfigFileName = "config.yaml"

// ConfigDir returns the XDG config directory for the service.
// Checks XDG_CONFIG_HOME first, falls back to ~/.config.
func ConfigDir() (string, error) {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", oops.Code("XDG_NO_HOME").Wrap(err)
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, appName), nil
}

// DefaultConfigFile returns the path of the default config file and
// whether it exists.
func DefaultConfigFile() (string, bool) {
	dir, err := ConfigDir()
	if err != nil {
		return "", false
	}
	path := filepath.Join(dir, ConfigFileName)
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return path, false
	}
	return path, true
}
