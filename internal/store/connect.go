// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// ConnectOptions bounds how hard Connect tries to reach the database.
type ConnectOptions struct {
	// Attempts is the total number of tries. Values below 1 mean 1.
	Attempts int
	// Backoff is the wait between tries.
	Backoff time.Duration
}

// pinger is satisfied by *pgxpool.Pool.
type pinger interface {
	Ping(ctx context.Context) error
}

// Connect opens a pgx pool and pings it, retrying per opts. A database that
// stays unreachable is returned as STORE_UNAVAILABLE.
func Connect(ctx context.Context, databaseURL string, opts ConnectOptions) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, oops.Code("STORE_CONFIG_INVALID").With("operation", "parse database url").Wrap(err)
	}
	if err := waitReady(ctx, pool, opts); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

func waitReady(ctx context.Context, p pinger, opts ConnectOptions) error {
	return Retry(ctx, opts, p.Ping)
}

// Retry calls fn until it succeeds or opts.Attempts tries have failed,
// waiting opts.Backoff between tries. The final failure is returned as
// STORE_UNAVAILABLE.
func Retry(ctx context.Context, opts ConnectOptions, fn func(ctx context.Context) error) error {
	attempts := max(opts.Attempts, 1)
	backoff := opts.Backoff
	if backoff <= 0 {
		backoff = time.Second
	}

	try := 0
	err := retry.Do(ctx, retry.WithMaxRetries(uint64(attempts-1), retry.NewConstant(backoff)), func(ctx context.Context) error {
		try++
		if err := fn(ctx); err != nil {
			slog.WarnContext(ctx, "record store not reachable",
				"attempt", try,
				"max_attempts", attempts,
				"error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return oops.Code("STORE_UNAVAILABLE").
			With("attempts", try).
			Wrap(err)
	}
	return nil
}
