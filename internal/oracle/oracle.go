// Package oracle resolves the freshest available price for each monitored
// instrument, backed by the shared Redis price cache and the exchange REST
// clients.
package oracle

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/meridianquant/tradecore/internal/domain"
)

// PriceSource fetches spot prices from one upstream, batched per exchange.
type PriceSource interface {
	GetPrices(ctx context.Context, exchange string, symbols []string) (map[string]float64, error)
}

// Oracle serves the monitor's per-cycle price lookups. Cached entries younger
// than TTL are used as-is; everything else is fetched from the exchanges, one
// batch request per exchange, concurrently. Instruments whose fetch fails are
// omitted from the result so the caller skips them for the cycle instead of
// acting on a stale quote.
type Oracle struct {
	source PriceSource
	cache  domain.PriceCache
	ttl    time.Duration
	logger *slog.Logger
}

// New creates an Oracle with the given freshness TTL.
func New(source PriceSource, cache domain.PriceCache, ttl time.Duration, logger *slog.Logger) *Oracle {
	if ttl <= 0 {
		ttl = 2 * time.Second
	}
	return &Oracle{
		source: source,
		cache:  cache,
		ttl:    ttl,
		logger: logger.With("component", "oracle"),
	}
}

// GetPrices resolves prices for the given instrument keys. Duplicate keys are
// collapsed before any lookup. The result contains only the keys a fresh
// price could be obtained for; it never fails as a whole because one
// exchange is down.
func (o *Oracle) GetPrices(ctx context.Context, keys []domain.PriceKey) (map[domain.PriceKey]float64, error) {
	unique := dedupeKeys(keys)
	if len(unique) == 0 {
		return map[domain.PriceKey]float64{}, nil
	}

	result := make(map[domain.PriceKey]float64, len(unique))

	cached, err := o.cache.GetBatch(ctx, unique)
	if err != nil {
		// A cache outage degrades to fetching everything upstream.
		o.logger.Warn("price cache read failed", "error", err)
		cached = map[domain.PriceKey]domain.CachedPrice{}
	}

	now := time.Now()
	var stale []domain.PriceKey
	for _, key := range unique {
		entry, ok := cached[key]
		if ok && now.Sub(entry.FetchedAt) <= o.ttl {
			result[key] = entry.Price
			continue
		}
		stale = append(stale, key)
	}

	if len(stale) == 0 {
		return result, nil
	}

	fetched := o.fetchFresh(ctx, stale)
	for key, price := range fetched {
		result[key] = price
	}
	return result, nil
}

// fetchFresh fetches the given keys from their exchanges, one concurrent
// batch request per exchange, and writes successes back to the cache.
func (o *Oracle) fetchFresh(ctx context.Context, keys []domain.PriceKey) map[domain.PriceKey]float64 {
	byExchange := make(map[string][]string)
	for _, key := range keys {
		byExchange[key.Exchange] = append(byExchange[key.Exchange], key.Symbol)
	}

	type exchangePrices struct {
		exchange string
		prices   map[string]float64
	}

	results := make(chan exchangePrices, len(byExchange))
	g, gctx := errgroup.WithContext(ctx)

	for exchangeName, symbols := range byExchange {
		g.Go(func() error {
			prices, err := o.source.GetPrices(gctx, exchangeName, symbols)
			if err != nil {
				o.logger.Warn("price fetch failed",
					"exchange", exchangeName,
					"symbols", len(symbols),
					"error", err)
				return nil
			}
			results <- exchangePrices{exchange: exchangeName, prices: prices}
			return nil
		})
	}

	_ = g.Wait()
	close(results)

	fetchedAt := time.Now()
	out := make(map[domain.PriceKey]float64)
	for r := range results {
		for symbol, price := range r.prices {
			key := domain.PriceKey{Exchange: r.exchange, Symbol: symbol}
			out[key] = price

			if err := o.cache.Set(ctx, key, price, fetchedAt); err != nil {
				o.logger.Warn("price cache write failed", "key", key.String(), "error", err)
			}
		}
	}
	return out
}

func dedupeKeys(keys []domain.PriceKey) []domain.PriceKey {
	seen := make(map[domain.PriceKey]struct{}, len(keys))
	out := make([]domain.PriceKey, 0, len(keys))
	for _, key := range keys {
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, key)
	}
	return out
}
