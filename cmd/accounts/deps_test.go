// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"net/http"
	"sync/atomic"

	"github.com/holomush/accounts/internal/account"
	"github.com/holomush/accounts/internal/account/memory"
	"github.com/holomush/accounts/internal/config"
	"github.com/holomush/accounts/internal/observability"
)

// mockObservabilityServer implements ObservabilityServer for testing.
type mockObservabilityServer struct {
	startFunc func() (<-chan error, error)
	stopped   atomic.Bool
}

func (m *mockObservabilityServer) Start() (<-chan error, error) {
	if m.startFunc != nil {
		return m.startFunc()
	}
	return make(chan error, 1), nil
}

func (m *mockObservabilityServer) Stop(context.Context) error {
	m.stopped.Store(true)
	return nil
}

func (m *mockObservabilityServer) Addr() string { return "127.0.0.1:9100" }

func (m *mockObservabilityServer) Metrics() *observability.Metrics { return nil }

// mockWebServer implements WebServer for testing.
type mockWebServer struct {
	startFunc func() (<-chan error, error)
	handler   http.Handler
	stopped   atomic.Bool
}

func (m *mockWebServer) Start() (<-chan error, error) {
	if m.startFunc != nil {
		return m.startFunc()
	}
	return make(chan error, 1), nil
}

func (m *mockWebServer) Stop(context.Context) error {
	m.stopped.Store(true)
	return nil
}

func (m *mockWebServer) Addr() string { return ":3000" }

func memoryRepositories(context.Context, config.StoreConfig) (*Repositories, error) {
	m := memory.New()
	return &Repositories{Users: m, Resets: m.Resets(), Ping: m.Ping, Close: func() {}}, nil
}

var testHasher = account.NewArgon2idHasherWithParams(account.Argon2Params{
	Time:    1,
	Memory:  64,
	Threads: 1,
	SaltLen: 16,
	KeyLen:  32,
})
