package infra

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	dbPingTimeout = 5 * time.Second
	// Account row locks are held only for the duration of a ledger unit of
	// work, so a small warm pool with periodic health checks is enough.
	dbMinConns          = 2
	dbHealthCheckPeriod = time.Minute
)

// NewPostgresPool configures and returns a PostgreSQL connection pool.
// URL parameters (pool_max_conns etc.) still take precedence over the
// defaults set here.
func NewPostgresPool(ctx context.Context, url string) (*pgxpool.Pool, error) {
	if url == "" {
		return nil, fmt.Errorf("database url is required")
	}

	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	if cfg.MinConns == 0 {
		cfg.MinConns = dbMinConns
	}
	cfg.HealthCheckPeriod = dbHealthCheckPeriod

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, dbPingTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return pool, nil
}
