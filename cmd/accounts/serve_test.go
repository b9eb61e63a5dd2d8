// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/accounts/internal/account"
	"github.com/holomush/accounts/internal/config"
	"github.com/holomush/accounts/internal/notify"
	"github.com/holomush/accounts/internal/observability"
	"github.com/holomush/accounts/pkg/errutil"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Store.Driver = config.DriverMemory
	cfg.BaseURL = "http://localhost:3000"
	cfg.LogLevel = "error"
	return &cfg
}

func testCmd() (*cobra.Command, *bytes.Buffer) {
	cmd := &cobra.Command{}
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	return cmd, buf
}

func TestRunServeWithDeps_StartsAndShutsDown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	obs := &mockObservabilityServer{}
	web := &mockWebServer{}
	web.startFunc = func() (<-chan error, error) {
		cancel()
		return make(chan error, 1), nil
	}

	var obsAddr string
	var webAddr string
	deps := &ServeDeps{
		RepositoryFactory: memoryRepositories,
		Hasher:            testHasher,
		ObservabilityServerFactory: func(addr string, _ observability.ReadinessChecker) ObservabilityServer {
			obsAddr = addr
			return obs
		},
		WebServerFactory: func(addr string, handler http.Handler) WebServer {
			webAddr = addr
			web.handler = handler
			return web
		},
	}

	cmd, out := testCmd()
	require.NoError(t, runServeWithDeps(ctx, testConfig(), cmd, deps))

	assert.Equal(t, "127.0.0.1:9100", obsAddr)
	assert.Equal(t, ":3000", webAddr)
	assert.True(t, web.stopped.Load())
	assert.True(t, obs.stopped.Load())
	assert.Contains(t, out.String(), "Login page: http://localhost:3000/login")
}

func TestRunServeWithDeps_HandlerServesAccounts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	web := &mockWebServer{}
	web.startFunc = func() (<-chan error, error) {
		cancel()
		return make(chan error, 1), nil
	}
	cfg := testConfig()
	cfg.MetricsAddr = ""

	deps := &ServeDeps{
		RepositoryFactory: memoryRepositories,
		Hasher:            testHasher,
		WebServerFactory: func(_ string, handler http.Handler) WebServer {
			web.handler = handler
			return web
		},
	}
	cmd, _ := testCmd()
	require.NoError(t, runServeWithDeps(ctx, cfg, cmd, deps))
	require.NotNil(t, web.handler)

	form := url.Values{
		"username":    {"ana"},
		"firstName":   {"Ana"},
		"dateOfBirth": {"1990-01-01"},
		"email":       {"ana@example.com"},
		"password":    {"s3cret"},
	}
	req := httptest.NewRequest(http.MethodPost, "/signup", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	web.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "user registered successfully", rec.Body.String())
}

func TestRunServeWithDeps_ServerErrorTriggersShutdown(t *testing.T) {
	web := &mockWebServer{}
	web.startFunc = func() (<-chan error, error) {
		ch := make(chan error, 1)
		ch <- errors.New("accept failed")
		return ch, nil
	}
	cfg := testConfig()
	cfg.MetricsAddr = ""

	deps := &ServeDeps{
		RepositoryFactory: memoryRepositories,
		Hasher:            testHasher,
		WebServerFactory:  func(string, http.Handler) WebServer { return web },
	}

	done := make(chan error, 1)
	go func() {
		cmd, _ := testCmd()
		done <- runServeWithDeps(context.Background(), cfg, cmd, deps)
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not shut down after web server error")
	}
	assert.True(t, web.stopped.Load())
}

func TestRunServeWithDeps_WebStartFailureStopsObservability(t *testing.T) {
	obs := &mockObservabilityServer{}
	web := &mockWebServer{startFunc: func() (<-chan error, error) {
		return nil, oops.Code("WEB_LISTEN_FAILED").Errorf("address in use")
	}}

	deps := &ServeDeps{
		RepositoryFactory:          memoryRepositories,
		Hasher:                     testHasher,
		ObservabilityServerFactory: func(string, observability.ReadinessChecker) ObservabilityServer { return obs },
		WebServerFactory:           func(string, http.Handler) WebServer { return web },
	}

	cmd, _ := testCmd()
	err := runServeWithDeps(context.Background(), testConfig(), cmd, deps)
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "WEB_LISTEN_FAILED")
	assert.True(t, obs.stopped.Load())
}

func TestRunServeWithDeps_InvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Store.Driver = "redis"

	cmd, _ := testCmd()
	err := runServeWithDeps(context.Background(), cfg, cmd, &ServeDeps{})
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "CONFIG_INVALID")
	errutil.AssertErrorContext(t, err, "field", "store.driver")
}

func TestRunServeWithDeps_UnreachableStoreExits(t *testing.T) {
	deps := &ServeDeps{
		RepositoryFactory: func(context.Context, config.StoreConfig) (*Repositories, error) {
			return nil, oops.Code("STORE_UNAVAILABLE").Errorf("connection refused")
		},
		WebServerFactory: func(string, http.Handler) WebServer {
			t.Fatal("web server must not be created without a record store")
			return nil
		},
	}

	cmd, _ := testCmd()
	err := runServeWithDeps(context.Background(), testConfig(), cmd, deps)
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "STORE_UNAVAILABLE")
	errutil.AssertErrorContext(t, err, "store_driver", config.DriverMemory)
}

func TestRunServeWithDeps_AutoMigrate(t *testing.T) {
	tests := []struct {
		name       string
		driver     string
		migrateErr error
		wantCalled bool
		wantCode   string
	}{
		{name: "postgres runs migrations", driver: config.DriverPostgres, wantCalled: true},
		{name: "migration failure aborts", driver: config.DriverPostgres, migrateErr: errors.New("dirty"), wantCalled: true, wantCode: "MIGRATION_FAILED"},
		{name: "memory skips migrations", driver: config.DriverMemory},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			cfg := testConfig()
			cfg.MetricsAddr = ""
			cfg.Store.Driver = tt.driver
			cfg.Store.DatabaseURL = "postgres://localhost/accounts"
			cfg.Store.AutoMigrate = true

			var gotURL string
			web := &mockWebServer{startFunc: func() (<-chan error, error) {
				cancel()
				return make(chan error, 1), nil
			}}
			deps := &ServeDeps{
				RepositoryFactory: memoryRepositories,
				Hasher:            testHasher,
				Migrate: func(databaseURL string) error {
					gotURL = databaseURL
					return tt.migrateErr
				},
				WebServerFactory: func(string, http.Handler) WebServer { return web },
			}

			cmd, _ := testCmd()
			err := runServeWithDeps(ctx, cfg, cmd, deps)
			if tt.wantCode != "" {
				require.Error(t, err)
				errutil.AssertErrorCode(t, err, tt.wantCode)
			} else {
				require.NoError(t, err)
			}
			if tt.wantCalled {
				assert.Equal(t, "postgres://localhost/accounts", gotURL)
			} else {
				assert.Empty(t, gotURL)
			}
		})
	}
}

func TestOpenRepositories_Memory(t *testing.T) {
	repos, err := openRepositories(context.Background(), config.StoreConfig{Driver: config.DriverMemory})
	require.NoError(t, err)
	defer repos.Close()

	require.NoError(t, repos.Ping(context.Background()))
	_, err = repos.Users.FindByIdentity(context.Background(), account.Identity{Username: "nobody"})
	assert.ErrorIs(t, err, account.ErrNotFound)
}

func TestOpenRepositories_UnknownDriver(t *testing.T) {
	_, err := openRepositories(context.Background(), config.StoreConfig{Driver: "sqlite"})
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "CONFIG_INVALID")
}

func TestOpenRepositories_PostgresInvalidURL(t *testing.T) {
	_, err := openRepositories(context.Background(), config.StoreConfig{
		Driver:      config.DriverPostgres,
		DatabaseURL: "://not a url",
	})
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "STORE_CONFIG_INVALID")
}

func TestNewNotifier(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)

	n, err := newNotifier(config.MailConfig{Driver: config.MailLog}, logger)
	require.NoError(t, err)
	assert.IsType(t, &notify.LogNotifier{}, n)

	n, err = newNotifier(config.MailConfig{
		Driver: config.MailSMTP,
		Host:   "smtp.example.com",
		Port:   587,
		From:   "noreply@example.com",
		TLS:    "mandatory",
	}, logger)
	require.NoError(t, err)
	assert.IsType(t, &notify.SMTPNotifier{}, n)

	_, err = newNotifier(config.MailConfig{Driver: config.MailSMTP, From: "noreply@example.com"}, logger)
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "NOTIFY_CONFIG_INVALID")
}

func TestMonitorServerErrors(t *testing.T) {
	tests := []struct {
		name       string
		send       func(ch chan error)
		wantCancel bool
	}{
		{name: "error cancels", send: func(ch chan error) { ch <- errors.New("boom") }, wantCancel: true},
		{name: "nil error keeps running", send: func(ch chan error) { ch <- nil }},
		{name: "closed channel keeps running", send: func(ch chan error) { close(ch) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			errCh := make(chan error, 1)
			tt.send(errCh)

			done := make(chan struct{})
			go func() {
				monitorServerErrors(ctx, cancel, errCh, "test-server")
				close(done)
			}()

			select {
			case <-done:
			case <-time.After(time.Second):
				t.Fatal("monitorServerErrors did not return")
			}
			assert.Equal(t, tt.wantCancel, ctx.Err() != nil)
		})
	}
}

func TestWarnLoggedResetLinks(t *testing.T) {
	tests := []struct {
		name     string
		driver   string
		baseURL  string
		wantWarn bool
	}{
		{"log driver on localhost", config.MailLog, "http://localhost:3000", false},
		{"log driver on loopback ip", config.MailLog, "http://127.0.0.1:3000", false},
		{"log driver on ipv6 loopback", config.MailLog, "http://[::1]:3000", false},
		{"log driver on public host", config.MailLog, "https://accounts.example.com", true},
		{"smtp driver on public host", config.MailSMTP, "https://accounts.example.com", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(slog.NewTextHandler(&buf, nil))
			cfg := testConfig()
			cfg.Mail.Driver = tt.driver
			cfg.BaseURL = tt.baseURL

			assert.Equal(t, tt.wantWarn, warnLoggedResetLinks(logger, cfg))
			if tt.wantWarn {
				assert.Contains(t, buf.String(), "level=WARN")
				assert.Contains(t, buf.String(), "base_url="+tt.baseURL)
			} else {
				assert.Empty(t, buf.String())
			}
		})
	}
}

func TestMonitorServerErrors_LogsErrorCode(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	defer slog.SetDefault(prev)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := make(chan error, 1)
	errCh <- oops.Code("WEB_LISTEN_FAILED").With("addr", ":3000").Errorf("address in use")

	monitorServerErrors(ctx, cancel, errCh, "web")

	out := buf.String()
	assert.Contains(t, out, "server error, triggering shutdown")
	assert.Contains(t, out, "server=web")
	assert.Contains(t, out, "code=WEB_LISTEN_FAILED")
}

func TestMonitorServerErrors_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		monitorServerErrors(ctx, cancel, make(chan error), "test-server")
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("monitorServerErrors did not exit on cancelled context")
	}
}
