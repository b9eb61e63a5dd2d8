// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"github.com/spf13/cobra"

	"github.com/holomush/accounts/internal/config"
)

// NewRootCmd creates the root command for the accounts CLI. Without a
// subcommand it starts the web server.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "Account registration, login and password reset service",
		Long: `accounts serves the signup, login, forgot-password and
reset-password pages over HTTP, backed by PostgreSQL, MongoDB or memory.`,
		SilenceUsage: true,
		RunE:         runServe,
	}

	cmd.PersistentFlags().String("config", "", "config file path (default $XDG_CONFIG_HOME/accounts/config.yaml)")
	config.RegisterFlags(cmd.PersistentFlags())

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewPurgeResetsCmd())

	return cmd
}

// loadConfig layers the config file named by --config (or found in the XDG
// config directory), the environment and the flags changed on cmd.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	if path == "" {
		path = config.DefaultPath()
	}
	return config.Load(path, cmd.Flags())
}
