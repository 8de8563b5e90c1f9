// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"github.com/spf13/cobra"
)

// Global flags available to all subcommands.
var (
	configFile string
	envFile    string
)

// NewRootCmd creates the root command for the identity CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "identity",
		Short: "Identity - account and session service",
		Long: `Identity registers accounts, authenticates credentials, and issues
opaque bearer tokens that gate access to account data.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (default: XDG_CONFIG_HOME/identity/config.yaml)")
	cmd.PersistentFlags().StringVar(&envFile, "env-file", "", "dotenv file loaded before reading IDENTITY_* variables")

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewAccountsCmd())

	return cmd
}
