// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/accounts/internal/account"
	"github.com/holomush/accounts/internal/account/memory"
	"github.com/holomush/accounts/internal/account/mongodb"
	"github.com/holomush/accounts/internal/account/postgres"
	"github.com/holomush/accounts/internal/config"
	"github.com/holomush/accounts/internal/logging"
	"github.com/holomush/accounts/internal/notify"
	"github.com/holomush/accounts/internal/observability"
	"github.com/holomush/accounts/internal/store"
	"github.com/holomush/accounts/internal/web"
	"github.com/holomush/accounts/pkg/errutil"
)

const (
	serviceName     = "accounts"
	shutdownTimeout = 5 * time.Second
	smtpTimeout     = 15 * time.Second
)

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the account web server",
		Long: `Start the HTTP server for the signup, login, forgot-password and
reset-password pages. The process exits when the record store cannot be
reached at startup.`,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return runServeWithDeps(cmd.Context(), cfg, cmd, nil)
}

// runServeWithDeps runs the web server with injectable dependencies.
// If deps is nil, default implementations are used.
func runServeWithDeps(ctx context.Context, cfg *config.Config, cmd *cobra.Command, deps *ServeDeps) error {
	if deps == nil {
		deps = &ServeDeps{}
	}

	if deps.RepositoryFactory == nil {
		deps.RepositoryFactory = openRepositories
	}
	if deps.Migrate == nil {
		deps.Migrate = migrateUp
	}
	if deps.NotifierFactory == nil {
		deps.NotifierFactory = newNotifier
	}
	if deps.Hasher == nil {
		deps.Hasher = account.NewArgon2idHasher()
	}
	if deps.ObservabilityServerFactory == nil {
		deps.ObservabilityServerFactory = func(addr string, readinessChecker observability.ReadinessChecker) ObservabilityServer {
			return observability.NewServer(addr, readinessChecker)
		}
	}
	if deps.WebServerFactory == nil {
		deps.WebServerFactory = func(addr string, handler http.Handler) WebServer {
			return web.NewServer(addr, handler)
		}
	}

	if err := cfg.Validate(); err != nil {
		return oops.Wrapf(err, "invalid configuration")
	}

	logger := logging.SetDefault(logging.Options{
		Service: serviceName,
		Version: version,
		Format:  cfg.LogFormat,
		Level:   cfg.LogLevel,
	})

	logger.Info("starting account service",
		"port", cfg.Port,
		"store_driver", cfg.Store.Driver,
		"mail_driver", cfg.Mail.Driver,
	)
	warnLoggedResetLinks(logger, cfg)

	repos, err := deps.RepositoryFactory(ctx, cfg.Store)
	if err != nil {
		return oops.With("store_driver", cfg.Store.Driver).Wrapf(err, "open record store")
	}
	defer repos.Close()

	logger.Info("connected to record store", "driver", cfg.Store.Driver)

	if cfg.Store.AutoMigrate && cfg.Store.Driver == config.DriverPostgres {
		if err := deps.Migrate(cfg.Store.DatabaseURL); err != nil {
			return oops.Code("MIGRATION_FAILED").With("operation", "auto-migrate").Wrap(err)
		}
		logger.Info("database migrations applied")
	}

	notifier, err := deps.NotifierFactory(cfg.Mail, logger)
	if err != nil {
		return err
	}

	svc, err := account.NewService(repos.Users, repos.Resets, deps.Hasher, notifier, account.ServiceConfig{
		BaseURL:  cfg.BaseURL,
		ResetTTL: cfg.Reset.TTL,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var obsServer ObservabilityServer
	var metrics *observability.Metrics
	if cfg.MetricsAddr != "" {
		obsServer = deps.ObservabilityServerFactory(cfg.MetricsAddr, repos.Ping)
		obsErrChan, err := obsServer.Start()
		if err != nil {
			return oops.Wrapf(err, "start observability server")
		}
		go monitorServerErrors(ctx, cancel, obsErrChan, "observability")
		metrics = obsServer.Metrics()
		logger.Info("observability server started", "addr", obsServer.Addr())
	}

	handler := web.NewHandler(svc, web.WithLogger(logger), web.WithMetrics(metrics))
	webServer := deps.WebServerFactory(cfg.ListenAddr(), handler.Routes())
	webErrChan, err := webServer.Start()
	if err != nil {
		if obsServer != nil {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer shutdownCancel()
			if stopErr := obsServer.Stop(shutdownCtx); stopErr != nil {
				logger.Warn("failed to stop observability server during cleanup", "error", stopErr)
			}
		}
		return oops.Wrapf(err, "start web server")
	}
	go monitorServerErrors(ctx, cancel, webErrChan, "web")

	cmd.Printf("Login page: %s\n", cfg.LoginURL())
	logger.Info("account service ready", "addr", webServer.Addr(), "login_url", cfg.LoginURL())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", "signal", sig)
	case <-ctx.Done():
		logger.Info("context cancelled, shutting down")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := webServer.Stop(shutdownCtx); err != nil {
		logger.Warn("error stopping web server", "error", err)
	}
	if obsServer != nil {
		if err := obsServer.Stop(shutdownCtx); err != nil {
			logger.Warn("error stopping observability server", "error", err)
		}
	}

	logger.Info("shutdown complete")
	return nil
}

// openRepositories connects to the record store named by cfg.Driver.
func openRepositories(ctx context.Context, cfg config.StoreConfig) (*Repositories, error) {
	opts := store.ConnectOptions{Attempts: cfg.ConnectAttempts, Backoff: cfg.ConnectBackoff}

	switch cfg.Driver {
	case config.DriverPostgres:
		pool, err := store.Connect(ctx, cfg.DatabaseURL, opts)
		if err != nil {
			return nil, err
		}
		return &Repositories{
			Users:  postgres.NewUserRepository(pool),
			Resets: postgres.NewPasswordResetRepository(pool),
			Ping:   pool.Ping,
			Close:  pool.Close,
		}, nil

	case config.DriverMongo:
		var st *mongodb.Store
		err := store.Retry(ctx, opts, func(ctx context.Context) error {
			s, err := mongodb.Connect(ctx, cfg.MongoURI, cfg.MongoDatabase)
			if err != nil {
				return err
			}
			st = s
			return nil
		})
		if err != nil {
			return nil, err
		}
		return &Repositories{
			Users:  st.Users(),
			Resets: st.Resets(),
			Ping:   st.Ping,
			Close: func() {
				closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				if err := st.Close(closeCtx); err != nil {
					slog.Warn("error closing mongo client", "error", err)
				}
			},
		}, nil

	case config.DriverMemory:
		m := memory.New()
		return &Repositories{
			Users:  m,
			Resets: m.Resets(),
			Ping:   m.Ping,
			Close:  func() {},
		}, nil
	}

	return nil, oops.Code("CONFIG_INVALID").
		With("field", "store.driver").
		Errorf("unknown store driver %q", cfg.Driver)
}

// newNotifier builds the notifier named by cfg.Driver.
func newNotifier(cfg config.MailConfig, logger *slog.Logger) (account.Notifier, error) {
	if cfg.Driver == config.MailSMTP {
		return notify.NewSMTPNotifier(notify.SMTPConfig{
			Host:     cfg.Host,
			Port:     cfg.Port,
			Username: cfg.Username,
			Password: cfg.Password,
			From:     cfg.From,
			TLS:      cfg.TLS,
			Timeout:  smtpTimeout,
			Logger:   logger,
		})
	}
	return notify.NewLogNotifier(logger), nil
}

// warnLoggedResetLinks warns when the log mail driver would write live reset
// links for a public base URL. It reports whether it warned.
func warnLoggedResetLinks(logger *slog.Logger, cfg *config.Config) bool {
	if cfg.Mail.Driver != config.MailLog || isLoopbackURL(cfg.BaseURL) {
		return false
	}
	logger.Warn("mail driver is log; password reset links are written to the log",
		"base_url", cfg.BaseURL)
	return true
}

func isLoopbackURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	host := u.Hostname()
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// monitorServerErrors monitors a server's error channel and cancels the context on error.
// It exits when either an error is received, the channel is closed, or the context is cancelled.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			errutil.LogError(slog.Default().With("server", serverName), "server error, triggering shutdown", err)
			cancel()
		}
	case <-ctx.Done():
	}
}
