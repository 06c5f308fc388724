package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aidanjnn/sketchy/config"
	"github.com/aidanjnn/sketchy/internal/storage/postgres"
)

const (
	pingTimeout       = 3 * time.Second
	maxConnIdleTime   = 5 * time.Minute
	maxConnLifetime   = time.Hour
	healthCheckPeriod = 30 * time.Second
)

// DB owns the pgx pool shared by the repositories and the health check.
type DB struct {
	Pool *pgxpool.Pool
}

// Open connects and pings before returning, so a bad DSN fails at startup.
func Open(ctx context.Context, cfg *config.DatabaseConfig) (*DB, error) {
	dsn := postgres.DSN(cfg)
	if dsn == "" {
		return nil, errors.New("DB_DSN is required")
	}

	pcfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	tunePool(pcfg, cfg)

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return &DB{Pool: pool}, nil
}

func tunePool(pcfg *pgxpool.Config, cfg *config.DatabaseConfig) {
	if cfg.MaxConns > 0 {
		pcfg.MaxConns = int32(cfg.MaxConns)
	}
	if cfg.MinConns > 0 && int32(cfg.MinConns) <= pcfg.MaxConns {
		pcfg.MinConns = int32(cfg.MinConns)
	}
	pcfg.MaxConnIdleTime = maxConnIdleTime
	pcfg.MaxConnLifetime = maxConnLifetime
	pcfg.HealthCheckPeriod = healthCheckPeriod
}

func (d *DB) Close() {
	if d != nil && d.Pool != nil {
		d.Pool.Close()
	}
}
