// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/holomush/accounts/internal/account"
	"github.com/holomush/accounts/internal/config"
	"github.com/holomush/accounts/internal/observability"
)

// ServeDeps contains injectable dependencies for the serve command.
// All fields with nil values will use their default implementations.
type ServeDeps struct {
	// RepositoryFactory opens the record store selected by the config.
	// Default: openRepositories
	RepositoryFactory func(ctx context.Context, cfg config.StoreConfig) (*Repositories, error)

	// Migrate applies pending PostgreSQL migrations.
	// Default: migrateUp
	Migrate func(databaseURL string) error

	// NotifierFactory builds the reset email notifier.
	// Default: newNotifier
	NotifierFactory func(cfg config.MailConfig, logger *slog.Logger) (account.Notifier, error)

	// Hasher hashes and verifies passwords.
	// Default: account.NewArgon2idHasher
	Hasher account.PasswordHasher

	// ObservabilityServerFactory creates an observability server.
	// Default: observability.NewServer
	ObservabilityServerFactory func(addr string, readinessChecker observability.ReadinessChecker) ObservabilityServer

	// WebServerFactory creates the HTTP server for the account pages.
	// Default: web.NewServer
	WebServerFactory func(addr string, handler http.Handler) WebServer
}

// Repositories is an opened record store.
type Repositories struct {
	Users  account.UserRepository
	Resets account.PasswordResetRepository
	Ping   func(ctx context.Context) error
	Close  func()
}

// ObservabilityServer interface wraps the methods used from observability.Server.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
	Metrics() *observability.Metrics
}

// WebServer interface wraps the methods used from web.Server.
type WebServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
}
