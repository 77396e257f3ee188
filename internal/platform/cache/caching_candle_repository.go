// Package cache provides caching implementations for repository interfaces.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"ohlcv_backend/internal/feature/candles/domain/entity"
	"ohlcv_backend/internal/feature/candles/usecase"
)

// Store is what the decorator wraps: the idempotent write path plus the read path.
type Store interface {
	usecase.CandleStore
	usecase.CandleRepository
}

var _ Store = (*CachingCandleRepository)(nil)

// CachingCandleRepository decorates a Store with Redis caching of ListBySymbol.
//
// Each symbol has a generation counter that is part of every cache key.
// A successful insert bumps the counter, so stale entries are never read again
// and simply expire with their TTL.
type CachingCandleRepository struct {
	inner     Store
	rdb       *redis.Client
	ttl       time.Duration
	namespace string
}

// NewCachingCandleRepository decorates a Store with Redis caching.
// If ttl is 0, it defaults to 5 minutes. If namespace is empty, it uses "candles".
func NewCachingCandleRepository(rdb *redis.Client, ttl time.Duration, inner Store, namespace string) *CachingCandleRepository {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if namespace == "" {
		namespace = "candles"
	}
	return &CachingCandleRepository{
		inner:     inner,
		rdb:       rdb,
		ttl:       ttl,
		namespace: namespace,
	}
}

// StoreIfAbsent writes through to the inner store and invalidates the symbol's
// cached lists when a new row was written.
func (c *CachingCandleRepository) StoreIfAbsent(ctx context.Context, cd entity.Candle) (bool, error) {
	inserted, err := c.inner.StoreIfAbsent(ctx, cd)
	if err != nil || !inserted || c.rdb == nil {
		return inserted, err
	}
	_ = c.rdb.Incr(ctx, c.generationKey(cd.Symbol)).Err() // Best effort: don't fail if cache invalidation fails
	return true, nil
}

// ListBySymbol retrieves candles, checking cache first then falling back to the store.
func (c *CachingCandleRepository) ListBySymbol(ctx context.Context, symbol string, limit int) ([]entity.Candle, error) {
	// Bypass cache if Redis is not configured
	if c.rdb == nil {
		return c.inner.ListBySymbol(ctx, symbol, limit)
	}

	gen, err := c.rdb.Get(ctx, c.generationKey(symbol)).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		// Redis が使えない場合はキャッシュなしで返す
		return c.inner.ListBySymbol(ctx, symbol, limit)
	}
	key := c.cacheKey(symbol, gen, limit)

	// 1) Check cache
	if b, err := c.rdb.Get(ctx, key).Bytes(); err == nil && len(b) > 0 {
		var out []entity.Candle
		if err := json.Unmarshal(b, &out); err == nil {
			return out, nil
		}
		// Delete corrupted cache entry
		_ = c.rdb.Del(ctx, key).Err()
	}

	// 2) Fallback to the store
	out, err := c.inner.ListBySymbol(ctx, symbol, limit)
	if err != nil {
		return nil, err
	}

	// 3) Store in cache (best effort)
	if b, err := json.Marshal(out); err == nil {
		_ = c.rdb.Set(ctx, key, b, c.ttl).Err()
	}

	return out, nil
}

func (c *CachingCandleRepository) generationKey(symbol string) string {
	return fmt.Sprintf("%s:%s:gen", c.namespace, safe(symbol))
}

// cacheKey generates a cache key for a specific query.
func (c *CachingCandleRepository) cacheKey(symbol string, gen int64, limit int) string {
	return fmt.Sprintf("%s:%s:g%d:%d", c.namespace, safe(symbol), gen, limit)
}

// safe escapes characters that are problematic for Redis keys.
// The mapping is reversible, so "BTC:USDT" and "BTC_USDT" keep separate keys.
func safe(s string) string {
	return safeReplacer.Replace(s)
}

var safeReplacer = strings.NewReplacer("%", "%25", " ", "%20", ":", "%3A")
