package oracle

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianquant/tradecore/internal/domain"
)

type fakeSource struct {
	prices map[string]map[string]float64 // exchange -> symbol -> price
	err    map[string]error              // exchange -> error
	calls  []string
}

func (s *fakeSource) GetPrices(_ context.Context, exchange string, symbols []string) (map[string]float64, error) {
	s.calls = append(s.calls, exchange)
	if err := s.err[exchange]; err != nil {
		return nil, err
	}
	out := make(map[string]float64)
	for _, sym := range symbols {
		if p, ok := s.prices[exchange][sym]; ok {
			out[sym] = p
		}
	}
	return out, nil
}

type fakeCache struct {
	entries  map[domain.PriceKey]domain.CachedPrice
	batchErr error
	sets     int
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: make(map[domain.PriceKey]domain.CachedPrice)}
}

func (c *fakeCache) Set(_ context.Context, key domain.PriceKey, price float64, fetchedAt time.Time) error {
	c.entries[key] = domain.CachedPrice{Price: price, FetchedAt: fetchedAt}
	c.sets++
	return nil
}

func (c *fakeCache) Get(_ context.Context, key domain.PriceKey) (domain.CachedPrice, error) {
	entry, ok := c.entries[key]
	if !ok {
		return domain.CachedPrice{}, domain.ErrNotFound
	}
	return entry, nil
}

func (c *fakeCache) GetBatch(_ context.Context, keys []domain.PriceKey) (map[domain.PriceKey]domain.CachedPrice, error) {
	if c.batchErr != nil {
		return nil, c.batchErr
	}
	out := make(map[domain.PriceKey]domain.CachedPrice)
	for _, key := range keys {
		if entry, ok := c.entries[key]; ok {
			out[key] = entry
		}
	}
	return out, nil
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestGetPricesUsesFreshCacheEntries(t *testing.T) {
	key := domain.PriceKey{Exchange: "binance", Symbol: "BTCUSDT"}
	cache := newFakeCache()
	cache.entries[key] = domain.CachedPrice{Price: 50000, FetchedAt: time.Now()}
	source := &fakeSource{}

	o := New(source, cache, 2*time.Second, discard())
	prices, err := o.GetPrices(context.Background(), []domain.PriceKey{key, key})
	require.NoError(t, err)

	assert.Equal(t, map[domain.PriceKey]float64{key: 50000}, prices)
	assert.Empty(t, source.calls, "fresh cache entry never hits the exchange")
}

func TestGetPricesRefetchesStaleEntries(t *testing.T) {
	key := domain.PriceKey{Exchange: "binance", Symbol: "BTCUSDT"}
	cache := newFakeCache()
	cache.entries[key] = domain.CachedPrice{Price: 50000, FetchedAt: time.Now().Add(-10 * time.Second)}
	source := &fakeSource{prices: map[string]map[string]float64{
		"binance": {"BTCUSDT": 51000},
	}}

	o := New(source, cache, 2*time.Second, discard())
	prices, err := o.GetPrices(context.Background(), []domain.PriceKey{key})
	require.NoError(t, err)

	assert.Equal(t, 51000.0, prices[key])
	assert.Equal(t, []string{"binance"}, source.calls)
	// Fresh quote written back.
	assert.Equal(t, 51000.0, cache.entries[key].Price)
}

func TestGetPricesOmitsFailedExchange(t *testing.T) {
	btc := domain.PriceKey{Exchange: "binance", Symbol: "BTCUSDT"}
	eth := domain.PriceKey{Exchange: "okx", Symbol: "ETHUSDT"}
	cache := newFakeCache()
	source := &fakeSource{
		prices: map[string]map[string]float64{"binance": {"BTCUSDT": 50000}},
		err:    map[string]error{"okx": errors.New("connection refused")},
	}

	o := New(source, cache, 2*time.Second, discard())
	prices, err := o.GetPrices(context.Background(), []domain.PriceKey{btc, eth})
	require.NoError(t, err, "one failed exchange never fails the whole lookup")

	assert.Equal(t, 50000.0, prices[btc])
	_, ok := prices[eth]
	assert.False(t, ok, "instrument without a fresh price is omitted")
}

func TestGetPricesCacheOutageDegradesToFetch(t *testing.T) {
	key := domain.PriceKey{Exchange: "binance", Symbol: "BTCUSDT"}
	cache := newFakeCache()
	cache.batchErr = errors.New("redis down")
	source := &fakeSource{prices: map[string]map[string]float64{
		"binance": {"BTCUSDT": 50000},
	}}

	o := New(source, cache, 2*time.Second, discard())
	prices, err := o.GetPrices(context.Background(), []domain.PriceKey{key})
	require.NoError(t, err)
	assert.Equal(t, 50000.0, prices[key])
}

func TestGetPricesEmptyInput(t *testing.T) {
	o := New(&fakeSource{}, newFakeCache(), 2*time.Second, discard())
	prices, err := o.GetPrices(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, prices)
}
