package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PoolSettings sizes the pgx pool. Zero values fall back to defaults sized
// for a single api-server instance; the worker and the one-shot commands run
// with the defaults.
type PoolSettings struct {
	MaxConns int32
	MinConns int32
}

func (ps PoolSettings) withDefaults() PoolSettings {
	if ps.MaxConns <= 0 {
		ps.MaxConns = 10
	}
	if ps.MinConns <= 0 {
		ps.MinConns = 1
	}
	if ps.MinConns > ps.MaxConns {
		ps.MinConns = ps.MaxConns
	}
	return ps
}

// Connect opens a pgx pool and verifies connectivity before returning it.
func Connect(ctx context.Context, dsn string, ps PoolSettings) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}

	ps = ps.withDefaults()
	cfg.MaxConns = ps.MaxConns
	cfg.MinConns = ps.MinConns
	cfg.HealthCheckPeriod = 30 * time.Second
	cfg.MaxConnLifetime = time.Hour
	cfg.MaxConnIdleTime = 15 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return pool, nil
}
