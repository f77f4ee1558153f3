package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// CachedProvider wraps a Provider with a short-TTL Redis cache, mirroring
// the teacher's CachedCoinGeckoClient: a cache hit short-circuits the
// underlying call, a cache miss or Redis error falls through to the
// source and writes back best-effort. A nil client makes every lookup a
// cache miss, so CachedProvider degrades to a transparent pass-through
// when Redis isn't configured.
type CachedProvider struct {
	inner Provider
	redis *redis.Client
	ttl   time.Duration
}

// NewCachedProvider wraps inner with a Redis cache of the given TTL.
func NewCachedProvider(inner Provider, client *redis.Client, ttl time.Duration) *CachedProvider {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &CachedProvider{inner: inner, redis: client, ttl: ttl}
}

func (c *CachedProvider) GetQuote(ctx context.Context, ticker string) (*Quote, error) {
	key := fmt.Sprintf("warroom:marketdata:quote:%s", ticker)

	if q, ok := c.readCache(ctx, key); ok {
		return q, nil
	}

	quote, err := c.inner.GetQuote(ctx, ticker)
	if err != nil {
		return nil, err
	}
	c.writeCache(key, quote)
	return quote, nil
}

func (c *CachedProvider) readCache(ctx context.Context, key string) (*Quote, bool) {
	if c.redis == nil {
		return nil, false
	}
	cacheCtx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()

	cached, err := c.redis.Get(cacheCtx, key).Result()
	if err != nil {
		if err != redis.Nil {
			log.Debug().Err(err).Str("key", key).Msg("marketdata: redis get error, treating as cache miss")
		}
		return nil, false
	}
	var q Quote
	if err := json.Unmarshal([]byte(cached), &q); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("marketdata: failed to unmarshal cached quote")
		return nil, false
	}
	return &q, true
}

func (c *CachedProvider) writeCache(key string, quote *Quote) {
	if c.redis == nil {
		return
	}
	go func() {
		data, err := json.Marshal(quote)
		if err != nil {
			return
		}
		cacheCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := c.redis.Set(cacheCtx, key, data, c.ttl).Err(); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("marketdata: failed to cache quote")
		}
	}()
}

// GetVolatility30d, GetVIX, and IsMarketOpen pass straight through: they
// change slowly enough (daily recompute, index-wide) that the teacher's
// caching concern doesn't apply the way it does to per-ticker quotes.
// GetQuoteAt passes straight through: historical lookups are one-shot and
// keyed by an arbitrary past timestamp, so there's no TTL-cacheable key the
// way there is for "the current price".
func (c *CachedProvider) GetQuoteAt(ctx context.Context, ticker string, at time.Time) (*Quote, error) {
	return c.inner.GetQuoteAt(ctx, ticker, at)
}

func (c *CachedProvider) GetVolatility30d(ctx context.Context, ticker string) (decimal.Decimal, error) {
	return c.inner.GetVolatility30d(ctx, ticker)
}

func (c *CachedProvider) GetVIX(ctx context.Context) (decimal.Decimal, error) {
	return c.inner.GetVIX(ctx)
}

func (c *CachedProvider) IsMarketOpen(ctx context.Context, ticker string, now time.Time) (bool, error) {
	return c.inner.IsMarketOpen(ctx, ticker, now)
}

var _ Provider = (*CachedProvider)(nil)
