package domain

import (
	"context"
	"time"
)

// PriceKey identifies one quoted instrument.
type PriceKey struct {
	Exchange string
	Symbol   string
}

// String renders the key in the "exchange:symbol" form used in result maps
// and cache keys.
func (k PriceKey) String() string {
	return k.Exchange + ":" + k.Symbol
}

// CachedPrice is a price together with the time it was fetched. Callers decide
// freshness by comparing FetchedAt against their TTL; the cache itself never
// serves as an authority.
type CachedPrice struct {
	Price     float64
	FetchedAt time.Time
}

// PriceCache provides short-lived storage for the latest fetched prices.
type PriceCache interface {
	Set(ctx context.Context, key PriceKey, price float64, fetchedAt time.Time) error
	Get(ctx context.Context, key PriceKey) (CachedPrice, error)
	// GetBatch returns entries for the keys that exist; missing keys are
	// omitted from the result, never reported as errors.
	GetBatch(ctx context.Context, keys []PriceKey) (map[PriceKey]CachedPrice, error)
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Wait(ctx context.Context, key string) error
}

// StreamMessage represents a single entry from a durable stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus provides pub/sub and durable streams for cross-subsystem events.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}
