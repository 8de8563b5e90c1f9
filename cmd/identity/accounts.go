// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/identity/internal/account"
	"github.com/holomush/identity/internal/config"
	"github.com/holomush/identity/internal/logging"
)

// accountsStoreOpener is replaced in tests.
var accountsStoreOpener = openStore

// NewAccountsCmd creates the accounts subcommand for operators.
func NewAccountsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "Inspect and administer accounts",
		Long: `Operate directly on the configured account store. Requires the
postgres driver; the memory store holds nothing outside a running server.`,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List all accounts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withManager(cmd, func(ctx context.Context, mgr *account.Manager) error {
				accts, err := mgr.ListAccounts(ctx)
				if err != nil {
					return err
				}
				cmd.Print(formatAccountsTable(accts))
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set-status ID STATUS",
		Short: "Set an account's status to ONLINE or OFFLINE",
		Long: `Override the presence status of one account. The account's token
is left untouched; use this to correct a status left stale by a crash.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := ulid.ParseStrict(args[0])
			if err != nil {
				return oops.Code("INVALID_ACCOUNT_ID").With("id", args[0]).
					Wrapf(account.ErrBadRequest, "malformed account id %q", args[0])
			}
			status, err := account.ParseStatus(args[1])
			if err != nil {
				return err
			}
			return withManager(cmd, func(ctx context.Context, mgr *account.Manager) error {
				acct, err := mgr.ChangeStatus(ctx, id, status)
				if err != nil {
					return err
				}
				cmd.Printf("Account %s (%s) is now %s\n", acct.ID, acct.Username, acct.Status)
				return nil
			})
		},
	})

	return cmd
}

// withManager opens the configured store, builds a Manager over it, runs
// fn, and closes the store.
func withManager(cmd *cobra.Command, fn func(ctx context.Context, mgr *account.Manager) error) error {
	cfg, err := config.Load(config.LoadOptions{File: configFile, EnvFile: envFile})
	if err != nil {
		return err
	}
	if cfg.Store.Driver != config.DriverPostgres {
		return oops.Code("STORE_NOT_PERSISTENT").
			With("driver", cfg.Store.Driver).
			Errorf("accounts commands need the postgres store, got %q", cfg.Store.Driver)
	}

	logger, err := logging.Setup(logging.Options{
		Service: serviceName,
		Version: version,
		Format:  cfg.Log.Format,
		Level:   cfg.Log.Level,
		Writer:  cmd.ErrOrStderr(),
	})
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	accounts, closeStore, err := accountsStoreOpener(ctx, cfg.Store, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	gate, err := account.NewGate(accounts, nil)
	if err != nil {
		return err
	}
	mgr, err := account.NewManager(accounts, account.NewArgon2idHasher(cfg.Hasher.Argon2Params()), gate,
		account.WithLogger(logger))
	if err != nil {
		return err
	}
	return fn(ctx, mgr)
}

func formatAccountsTable(accts []*account.Account) string {
	if len(accts) == 0 {
		return "No accounts\n"
	}

	var b strings.Builder
	w := tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)
	writeRow(w, "ID", "USERNAME", "STATUS", "SESSION", "CREATED")
	for _, a := range accts {
		session := "-"
		if a.LoggedIn() {
			session = "active"
		}
		writeRow(w, a.ID.String(), a.Username, string(a.Status), session, a.CreationDate.Format("2006-01-02"))
	}
	_ = w.Flush() //nolint:errcheck // strings.Builder does not fail
	return b.String()
}

func writeRow(w io.Writer, cols ...string) {
	_, _ = fmt.Fprintln(w, strings.Join(cols, "\t")) //nolint:errcheck // buffered writer
}
