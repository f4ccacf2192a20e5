package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/af-corp/llmcache/internal/config"
	"github.com/af-corp/llmcache/internal/gateway"
	"github.com/af-corp/llmcache/internal/llmcache"
	"github.com/af-corp/llmcache/internal/store"
)

// backend is the opened cache store plus the optional capabilities main wires up.
type backend struct {
	store  llmcache.Store
	pinger gateway.Pinger
	purger store.Purger
	close  func()
}

func (b *backend) startJanitor(ctx context.Context, interval time.Duration, logger *slog.Logger) {
	if b.purger == nil {
		return
	}
	go store.RunJanitor(ctx, b.purger, interval, logger)
}

func openBackend(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*backend, error) {
	switch cfg.Cache.Backend {
	case config.BackendRedis:
		return openRedis(ctx, cfg.Redis, logger), nil

	case config.BackendPostgres:
		dbPool, err := pgxpool.New(ctx, cfg.Database.DSN())
		if err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		if err := dbPool.Ping(ctx); err != nil {
			logger.Warn("database not reachable (requests will bypass the cache until it is)", "error", err)
		} else {
			logger.Info("database connected")
		}
		s := store.NewPostgres(dbPool)
		return &backend{store: s, pinger: s, purger: s, close: dbPool.Close}, nil

	case config.BackendSQLite:
		s, err := store.OpenSQLite(cfg.SQLite.Path)
		if err != nil {
			return nil, err
		}
		logger.Info("sqlite cache opened", "path", cfg.SQLite.Path)
		return &backend{store: s, pinger: s, purger: s, close: func() { s.Close() }}, nil

	case config.BackendMemory:
		s := store.NewMemory()
		logger.Warn("using in-process memory cache; entries are not shared between instances")
		return &backend{store: s, purger: s, close: func() {}}, nil
	}
	return nil, fmt.Errorf("unknown cache backend %q", cfg.Cache.Backend)
}

// openRedis never fails. An unreachable server is only logged: reads miss and
// writes are dropped until it comes back. With no address configured the store
// has no client at all.
func openRedis(ctx context.Context, cfg config.RedisConfig, logger *slog.Logger) *backend {
	var rdb *redis.Client
	if len(cfg.Addresses) > 0 && cfg.Addresses[0] != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Addresses[0],
			Password: cfg.Password,
			DB:       cfg.DB,
			PoolSize: cfg.PoolSize,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn("redis not reachable (requests will bypass the cache until it is)", "error", err)
		} else {
			logger.Info("redis connected")
		}
	}
	s := store.NewRedis(rdb)
	return &backend{store: s, pinger: s, close: func() { s.Close() }}
}
