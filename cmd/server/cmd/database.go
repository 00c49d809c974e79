package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/Togather-Foundation/rsvp/internal/config"
	"github.com/Togather-Foundation/rsvp/internal/storage/postgres"
	"github.com/jackc/pgx/v5/pgxpool"
)

const connectTimeout = 10 * time.Second

// openPool connects to Postgres and verifies the connection.
func openPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if cfg.MaxConnections > 0 {
		poolCfg.MaxConns = int32(cfg.MaxConnections)
	}
	if cfg.MaxIdle > 0 && cfg.MaxIdle <= int(poolCfg.MaxConns) {
		poolCfg.MinConns = int32(cfg.MaxIdle)
	}

	connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connectCtx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create database pool: %w", err)
	}
	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

func migrationsPath(cfg config.DatabaseConfig) string {
	if cfg.MigrationsPath != "" {
		return cfg.MigrationsPath
	}
	return postgres.DefaultMigrationsPath
}

// openRepository opens a pool and wraps it in the Postgres repository. The
// caller closes the returned pool.
func openRepository(ctx context.Context, cfg config.DatabaseConfig) (*postgres.Repository, *pgxpool.Pool, error) {
	pool, err := openPool(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	repo, err := postgres.NewRepository(pool)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	return repo, pool, nil
}
