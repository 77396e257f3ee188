package di

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	candleadapters "ohlcv_backend/internal/feature/candles/adapters"
	"ohlcv_backend/internal/platform/cache"
	"ohlcv_backend/internal/platform/config"
	"ohlcv_backend/internal/platform/db"
	infraredis "ohlcv_backend/internal/platform/redis"
)

// Resources holds the connections opened at startup.
// DB is always open because tracked symbols live there.
type Resources struct {
	DB    *gorm.DB
	Pool  *pgxpool.Pool
	Redis *redis.Client
}

// Open connects to every backend the configuration needs.
// Redis is optional when it only backs the read cache: a failed connection
// disables caching instead of aborting startup.
func Open(ctx context.Context, cfg *config.Config) (*Resources, error) {
	gdb, err := db.OpenDB(cfg.DB)
	if err != nil {
		return nil, err
	}
	res := &Resources{DB: gdb}

	if cfg.Store.Driver == config.StorePgx {
		pool, err := db.NewPgxPool(ctx, cfg.DB)
		if err != nil {
			res.Close()
			return nil, err
		}
		res.Pool = pool
	}

	switch {
	case cfg.Store.Driver == config.StoreRedis:
		rdb, err := infraredis.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			res.Close()
			return nil, err
		}
		res.Redis = rdb
	case cfg.Store.CacheEnabled:
		rdb, err := infraredis.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, read cache disabled", "error", err)
			break
		}
		res.Redis = rdb
	}

	return res, nil
}

// Close releases every open connection.
func (r *Resources) Close() {
	if r.Redis != nil {
		if err := r.Redis.Close(); err != nil {
			slog.Warn("failed to close redis", "error", err)
		}
	}
	if r.Pool != nil {
		r.Pool.Close()
	}
	if r.DB != nil {
		if sqlDB, err := r.DB.DB(); err == nil {
			if err := sqlDB.Close(); err != nil {
				slog.Warn("failed to close database", "error", err)
			}
		}
	}
}

// NewCandleStore creates the store selected by STORE_DRIVER.
// gorm and pgx stores are wrapped with the Redis read cache when it is available.
func NewCandleStore(res *Resources, cfg *config.Config) (cache.Store, error) {
	var store cache.Store
	switch cfg.Store.Driver {
	case config.StoreGorm:
		store = candleadapters.NewCandleRepository(res.DB)
	case config.StorePgx:
		if res.Pool == nil {
			return nil, fmt.Errorf("pgx store requires a postgres pool")
		}
		store = candleadapters.NewCandlePgxRepository(res.Pool)
	case config.StoreRedis:
		if res.Redis == nil {
			return nil, fmt.Errorf("redis store requires a redis client")
		}
		return candleadapters.NewCandleRedisRepository(res.Redis, candleadapters.DefaultRedisNamespace), nil
	default:
		return nil, fmt.Errorf("unsupported STORE_DRIVER %q", cfg.Store.Driver)
	}

	if cfg.Store.CacheEnabled && res.Redis != nil {
		return cache.NewCachingCandleRepository(res.Redis, cfg.Store.CacheTTL, store, ""), nil
	}
	return store, nil
}
