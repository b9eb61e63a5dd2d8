// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/accounts/internal/account"
	"github.com/holomush/accounts/internal/config"
	"github.com/holomush/accounts/internal/logging"
)

// NewPurgeResetsCmd creates the purge-resets subcommand.
func NewPurgeResetsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "purge-resets",
		Short: "Delete expired password reset links",
		Long: `Delete password reset records whose expiry has passed. Run it
periodically, for example from cron. MongoDB also expires them on its own.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return runPurgeResets(cmd.Context(), cfg, cmd, openRepositories)
		},
	}
}

func runPurgeResets(
	ctx context.Context,
	cfg *config.Config,
	cmd *cobra.Command,
	open func(ctx context.Context, cfg config.StoreConfig) (*Repositories, error),
) error {
	if err := cfg.Validate(); err != nil {
		return oops.Wrapf(err, "invalid configuration")
	}
	logger := logging.SetDefault(logging.Options{
		Service: serviceName,
		Version: version,
		Format:  cfg.LogFormat,
		Level:   cfg.LogLevel,
	})

	repos, err := open(ctx, cfg.Store)
	if err != nil {
		return oops.With("store_driver", cfg.Store.Driver).Wrapf(err, "open record store")
	}
	defer repos.Close()

	notifier, err := newNotifier(config.MailConfig{Driver: config.MailLog}, logger)
	if err != nil {
		return err
	}
	svc, err := account.NewService(repos.Users, repos.Resets, account.NewArgon2idHasher(), notifier, account.ServiceConfig{
		BaseURL:  cfg.BaseURL,
		ResetTTL: cfg.Reset.TTL,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	n, err := svc.PurgeExpiredResets(ctx)
	if err != nil {
		return err
	}
	logger.Info("purged expired password resets", "count", n)
	cmd.Printf("Deleted %d expired password reset(s)\n", n)
	return nil
}
