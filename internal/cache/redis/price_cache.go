package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/meridianquant/tradecore/internal/domain"
)

// PriceCache implements domain.PriceCache using Redis hashes. Each instrument
// is stored as a hash at key "price:{exchange}:{symbol}" with fields "price"
// and "ts" (Unix nanosecond fetch timestamp). Entries expire on their own so
// a stalled fetcher cannot serve week-old prices.
type PriceCache struct {
	rdb *redis.Client

	// Expiry is the Redis key TTL. It is deliberately longer than the
	// freshness TTL callers enforce via FetchedAt; it only bounds garbage.
	Expiry time.Duration
}

// NewPriceCache creates a PriceCache backed by the given Client.
func NewPriceCache(c *Client, expiry time.Duration) *PriceCache {
	if expiry <= 0 {
		expiry = time.Minute
	}
	return &PriceCache{rdb: c.rdb, Expiry: expiry}
}

func priceCacheKey(key domain.PriceKey) string {
	return "price:" + key.String()
}

// Set stores the latest price and fetch timestamp for an instrument.
func (pc *PriceCache) Set(ctx context.Context, key domain.PriceKey, price float64, fetchedAt time.Time) error {
	k := priceCacheKey(key)
	fields := map[string]interface{}{
		"price": strconv.FormatFloat(price, 'f', -1, 64),
		"ts":    strconv.FormatInt(fetchedAt.UnixNano(), 10),
	}

	pipe := pc.rdb.Pipeline()
	pipe.HSet(ctx, k, fields)
	pipe.Expire(ctx, k, pc.Expiry)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set price %s: %w", key, err)
	}
	return nil
}

// Get retrieves the cached price for one instrument. It returns
// domain.ErrNotFound when the key does not exist.
func (pc *PriceCache) Get(ctx context.Context, key domain.PriceKey) (domain.CachedPrice, error) {
	vals, err := pc.rdb.HGetAll(ctx, priceCacheKey(key)).Result()
	if err != nil {
		return domain.CachedPrice{}, fmt.Errorf("redis: get price %s: %w", key, err)
	}

	entry, ok := parsePriceHash(vals)
	if !ok {
		return domain.CachedPrice{}, domain.ErrNotFound
	}
	return entry, nil
}

// GetBatch retrieves cached prices for multiple instruments using a pipeline.
// Instruments whose keys do not exist are omitted from the result map.
func (pc *PriceCache) GetBatch(ctx context.Context, keys []domain.PriceKey) (map[domain.PriceKey]domain.CachedPrice, error) {
	if len(keys) == 0 {
		return map[domain.PriceKey]domain.CachedPrice{}, nil
	}

	pipe := pc.rdb.Pipeline()
	cmds := make(map[domain.PriceKey]*redis.MapStringStringCmd, len(keys))
	for _, key := range keys {
		cmds[key] = pipe.HGetAll(ctx, priceCacheKey(key))
	}

	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis: get prices pipeline: %w", err)
	}

	result := make(map[domain.PriceKey]domain.CachedPrice, len(keys))
	for key, cmd := range cmds {
		vals, err := cmd.Result()
		if err != nil {
			continue
		}
		if entry, ok := parsePriceHash(vals); ok {
			result[key] = entry
		}
	}
	return result, nil
}

func parsePriceHash(vals map[string]string) (domain.CachedPrice, bool) {
	priceStr, ok := vals["price"]
	if !ok {
		return domain.CachedPrice{}, false
	}
	price, err := strconv.ParseFloat(priceStr, 64)
	if err != nil {
		return domain.CachedPrice{}, false
	}

	tsStr, ok := vals["ts"]
	if !ok {
		return domain.CachedPrice{}, false
	}
	tsNano, err := strconv.ParseInt(tsStr, 10, 64)
	if err != nil {
		return domain.CachedPrice{}, false
	}

	return domain.CachedPrice{Price: price, FetchedAt: time.Unix(0, tsNano)}, true
}

// Compile-time interface check.
var _ domain.PriceCache = (*PriceCache)(nil)
