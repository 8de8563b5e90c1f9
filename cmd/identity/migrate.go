// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"fmt"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/identity/internal/config"
	"github.com/holomush/identity/internal/store"
)

// migrator is the part of store.Migrator used by the migrate commands.
type migrator interface {
	Up() error
	Down() error
	Version() (uint, bool, error)
	Status() (store.Status, error)
	Force(version int) error
	Close() error
}

// newMigrator is replaced in tests.
var newMigrator = func(databaseURL string) (migrator, error) {
	return store.NewMigrator(databaseURL)
}

// NewMigrateCmd creates the migrate subcommand and its children.
func NewMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the account database schema",
		Long: `Apply, roll back, or inspect the PostgreSQL schema migrations.
The database URL is read from the config file, IDENTITY_STORE__DATABASE_URL,
DATABASE_URL, or --database-url.`,
	}
	cmd.PersistentFlags().String("database-url", "", "PostgreSQL connection URL")

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, func(m migrator) error {
				if err := m.Up(); err != nil {
					return err
				}
				v, _, err := m.Version()
				if err != nil {
					return err
				}
				cmd.Printf("Migrations applied; schema version %d\n", v)
				return nil
			})
		},
	})

	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back all migrations (drops all accounts)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			yes, err := cmd.Flags().GetBool("yes")
			if err != nil {
				return oops.Wrap(err)
			}
			if !yes {
				return oops.Code("CONFIRMATION_REQUIRED").Errorf("migrate down deletes every account; rerun with --yes")
			}
			return withMigrator(cmd, func(m migrator) error {
				if err := m.Down(); err != nil {
					return err
				}
				cmd.Println("All migrations rolled back")
				return nil
			})
		},
	}
	down.Flags().Bool("yes", false, "confirm dropping the accounts schema")
	cmd.AddCommand(down)

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show applied and pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, func(m migrator) error {
				st, err := m.Status()
				if err != nil {
					return err
				}
				cmd.Print(formatStatus(st))
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "force VERSION",
		Short: "Mark VERSION as applied without running it",
		Long:  `Clear the dirty flag after a failed migration was fixed by hand.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := parseForceVersion(args[0])
			if err != nil {
				return err
			}
			return withMigrator(cmd, func(m migrator) error {
				if err := m.Force(version); err != nil {
					return err
				}
				cmd.Printf("Forced schema version %d\n", version)
				return nil
			})
		},
	})

	return cmd
}

// withMigrator opens a migrator for the configured database, runs fn, and
// closes it.
func withMigrator(cmd *cobra.Command, fn func(m migrator) error) (err error) {
	databaseURL, err := getDatabaseURL(cmd)
	if err != nil {
		return err
	}

	m, err := newMigrator(databaseURL)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := m.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	return fn(m)
}

// getDatabaseURL resolves the database URL through the regular config
// layers, with --database-url taking precedence.
func getDatabaseURL(cmd *cobra.Command) (string, error) {
	if url, err := cmd.Flags().GetString("database-url"); err == nil && url != "" {
		return url, nil
	}

	cfg, err := config.Load(config.LoadOptions{File: configFile, EnvFile: envFile})
	if err != nil {
		return "", err
	}
	if cfg.Store.DatabaseURL == "" {
		return "", oops.Code("CONFIG_INVALID").Errorf("database URL is required (set store.database_url, DATABASE_URL, or --database-url)")
	}
	return cfg.Store.DatabaseURL, nil
}

// parseForceVersion reads a leading integer, ignoring surrounding
// whitespace and trailing characters.
func parseForceVersion(s string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(strings.TrimSpace(s), "%d", &version); err != nil {
		return 0, oops.Code("INVALID_VERSION").With("input", s).Errorf("invalid version %q: must be an integer", s)
	}
	return version, nil
}

func formatStatus(st store.Status) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Current version: %d", st.Version)
	if st.Dirty {
		b.WriteString(" (dirty: fix the database, then run migrate force)")
	}
	b.WriteString("\n")

	writeList := func(title string, versions []uint) {
		fmt.Fprintf(&b, "%s:\n", title)
		if len(versions) == 0 {
			b.WriteString("  (none)\n")
			return
		}
		for _, v := range versions {
			name, err := store.MigrationName(v)
			if err != nil || name == "" {
				name = fmt.Sprintf("%06d", v)
			}
			fmt.Fprintf(&b, "  %s\n", name)
		}
	}
	writeList("Applied", st.Applied)
	writeList("Pending", st.Pending)
	return b.String()
}
