package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/aidanjnn/sketchy/config"
	"github.com/aidanjnn/sketchy/internal/db"
	"github.com/aidanjnn/sketchy/internal/storage/postgres"
)

type Stores struct {
	DB    *db.DB
	SQL   *sql.DB
	Redis *redis.Client
}

// OpenStores connects to Postgres, applies the schema and, when an address
// is configured, connects to Redis.
func OpenStores(ctx context.Context, cfg *config.Config) (*Stores, error) {
	pg, err := db.Open(ctx, &cfg.Database)
	if err != nil {
		return nil, err
	}
	sqlDB := postgres.NewConnection(pg.Pool)

	mctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := postgres.Migrate(mctx, sqlDB); err != nil {
		_ = sqlDB.Close()
		pg.Close()
		return nil, err
	}

	s := &Stores{DB: pg, SQL: sqlDB}
	if cfg.Redis.Addr == "" {
		return s, nil
	}

	s.Redis, err = OpenRedis(ctx, &cfg.Redis)
	if err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func OpenRedis(ctx context.Context, cfg *config.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := rdb.Ping(pctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

func (s *Stores) Close() {
	if s.Redis != nil {
		_ = s.Redis.Close()
	}
	if s.SQL != nil {
		_ = s.SQL.Close()
	}
	s.DB.Close()
}
