// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package store manages the PostgreSQL connection pool and schema migrations.
package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// ConnectOptions controls how Connect waits for the database.
type ConnectOptions struct {
	// Timeout bounds the total time spent retrying. Zero means a single attempt.
	Timeout time.Duration

	// InitialBackoff is the first retry delay; it doubles up to MaxBackoff.
	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	// MaxConns caps the pool size. Zero keeps the pgxpool default.
	MaxConns int32

	Logger *slog.Logger
}

// poolFactory is replaced in tests.
var poolFactory = func(ctx context.Context, cfg *pgxpool.Config) (pooler, error) {
	return pgxpool.NewWithConfig(ctx, cfg)
}

type pooler interface {
	Ping(ctx context.Context) error
	Close()
}

// Connect opens a pgx pool and pings it, retrying with exponential backoff
// until opts.Timeout elapses. This covers the common case of the service
// starting before the database container is ready.
func Connect(ctx context.Context, databaseURL string, opts ConnectOptions) (*pgxpool.Pool, error) {
	p, err := connect(ctx, databaseURL, opts)
	if err != nil {
		return nil, err
	}
	pool, ok := p.(*pgxpool.Pool)
	if !ok {
		p.Close()
		return nil, oops.Code("DB_CONNECT_FAILED").Errorf("unexpected pool type %T", p)
	}
	return pool, nil
}

func connect(ctx context.Context, databaseURL string, opts ConnectOptions) (pooler, error) {
	if databaseURL == "" {
		return nil, oops.Code("CONFIG_INVALID").Errorf("database URL is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, oops.Code("DB_CONFIG_INVALID").With("operation", "parse database url").Wrap(err)
	}
	if opts.MaxConns > 0 {
		cfg.MaxConns = opts.MaxConns
	}

	backoff := newBackoff(opts)

	var pool pooler
	attempt := 0
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		p, err := poolFactory(ctx, cfg)
		if err != nil {
			logger.WarnContext(ctx, "database pool creation failed", "attempt", attempt, "error", err)
			return retry.RetryableError(err)
		}
		if err := p.Ping(ctx); err != nil {
			p.Close()
			logger.WarnContext(ctx, "database not reachable yet", "attempt", attempt, "error", err)
			return retry.RetryableError(err)
		}
		pool = p
		return nil
	})
	if err != nil {
		return nil, oops.Code("DB_CONNECT_FAILED").
			With("operation", "connect to database").
			With("attempts", attempt).
			Wrap(err)
	}

	logger.InfoContext(ctx, "connected to database", "attempts", attempt)
	return pool, nil
}

func newBackoff(opts ConnectOptions) retry.Backoff {
	initial := opts.InitialBackoff
	if initial <= 0 {
		initial = 250 * time.Millisecond
	}
	maxBackoff := opts.MaxBackoff
	if maxBackoff <= 0 {
		maxBackoff = 5 * time.Second
	}

	b := retry.NewExponential(initial)
	b = retry.WithCappedDuration(maxBackoff, b)
	if opts.Timeout <= 0 {
		return retry.WithMaxRetries(0, b)
	}
	return retry.WithMaxDuration(opts.Timeout, b)
}
