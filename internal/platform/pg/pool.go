// Package pg opens PostgreSQL connection pools (pgx/v5) and applies migrations.
package pg

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"confirmbot/pkg/retry"
)

// PoolOptions holds pool settings.
type PoolOptions struct {
	MaxConns          int32
	MinConns          int32
	HealthCheckPeriod time.Duration
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	PingTimeout       time.Duration
	// ConnectAttempts bounds how many times the initial ping is retried while the
	// database is still starting.
	ConnectAttempts int
}

// DefaultPoolOptions returns settings sized for a single bot process that writes a
// handful of rows per day.
func DefaultPoolOptions() PoolOptions {
	return PoolOptions{
		MaxConns:          4,
		MinConns:          1,
		HealthCheckPeriod: 30 * time.Second,
		MaxConnLifetime:   time.Hour,
		MaxConnIdleTime:   10 * time.Minute,
		PingTimeout:       5 * time.Second,
		ConnectAttempts:   5,
	}
}

// NewPool creates a pool and waits until the database answers a ping.
func NewPool(ctx context.Context, dsn string, opts PoolOptions) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	cfg.MaxConns = opts.MaxConns
	cfg.MinConns = opts.MinConns
	cfg.HealthCheckPeriod = opts.HealthCheckPeriod
	cfg.MaxConnLifetime = opts.MaxConnLifetime
	cfg.MaxConnIdleTime = opts.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}

	rc := retry.DefaultConfig()
	rc.MaxAttempts = max(opts.ConnectAttempts, 1)
	rc.InitialDelay = 500 * time.Millisecond
	rc.MaxDelay = 5 * time.Second
	err = retry.DoWithRetryable(ctx, rc, func(ctx context.Context) error {
		pingCtx, cancel := context.WithTimeout(ctx, opts.PingTimeout)
		defer cancel()
		return pool.Ping(pingCtx)
	}, func(err error) bool { return !retry.IsPermanent(err) })
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}
