package currency

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"
)

// DefaultCacheTTL is how long a fetched rate stays fresh.
const DefaultCacheTTL = time.Hour

// Quote is a cached exchange rate for one ordered currency pair. Stale
// means the rate source was unreachable and an expired value is being
// served.
type Quote struct {
	Rate      decimal.Decimal
	FetchedAt time.Time
	Stale     bool
}

type cacheEntry struct {
	rate      decimal.Decimal
	fetchedAt time.Time
}

// Cache is a read-through rate cache. Concurrent refreshes of the same
// pair collapse into one fetch via singleflight; cache writes are
// last-writer-wins, which is fine for idempotent point-in-time rates.
type Cache struct {
	source     Source
	ttl        time.Duration
	retryDelay time.Duration

	mu      sync.RWMutex
	entries map[string]cacheEntry

	group singleflight.Group
	now   func() time.Time
	sleep func(time.Duration)
}

// NewCache creates a Cache over source. ttl <= 0 selects the default of
// one hour.
func NewCache(source Source, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Cache{
		source:     source,
		ttl:        ttl,
		retryDelay: 200 * time.Millisecond,
		entries:    make(map[string]cacheEntry),
		now:        time.Now,
		sleep:      time.Sleep,
	}
}

// PairKey is the ordered cache key for a currency pair.
func PairKey(from, to string) string {
	return from + ":" + to
}

// Lookup returns the rate for from→to, fetching from the source on a
// miss or expiry. When the source is unreachable a stale cached value is
// served with the Stale flag set; with no cached value at all the fetch
// error is returned.
func (c *Cache) Lookup(ctx context.Context, from, to string) (Quote, error) {
	key := PairKey(from, to)

	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if ok && c.now().Sub(entry.fetchedAt) < c.ttl {
		return Quote{Rate: entry.rate, FetchedAt: entry.fetchedAt}, nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		return c.refresh(ctx, from, to)
	})
	if err == nil {
		return v.(Quote), nil
	}

	if ok {
		slog.Warn("Rate source unreachable, serving stale rate",
			"pair", key,
			"fetched_at", entry.fetchedAt,
			"error", err,
		)
		return Quote{Rate: entry.rate, FetchedAt: entry.fetchedAt, Stale: true}, nil
	}
	return Quote{}, err
}

// refresh fetches the pair from the source, retrying once with backoff.
// A missing direct rate is derived from the reverse quote.
func (c *Cache) refresh(ctx context.Context, from, to string) (Quote, error) {
	rate, err := c.fetchPair(ctx, from, to)
	if err != nil {
		select {
		case <-ctx.Done():
			return Quote{}, ctx.Err()
		default:
		}
		c.sleep(c.retryDelay)
		rate, err = c.fetchPair(ctx, from, to)
		if err != nil {
			return Quote{}, err
		}
	}

	fetchedAt := c.now()
	c.mu.Lock()
	c.entries[PairKey(from, to)] = cacheEntry{rate: rate, fetchedAt: fetchedAt}
	c.mu.Unlock()

	return Quote{Rate: rate, FetchedAt: fetchedAt}, nil
}

func (c *Cache) fetchPair(ctx context.Context, from, to string) (decimal.Decimal, error) {
	rates, err := c.source.Rates(ctx, from)
	if err == nil {
		if rate, ok := rates[to]; ok {
			return rate, nil
		}
	}

	// reverse quote: 1 / (to -> from)
	rates, revErr := c.source.Rates(ctx, to)
	if revErr == nil {
		if rate, ok := rates[from]; ok && rate.IsPositive() {
			return decimal.NewFromInt(1).Div(rate), nil
		}
	}

	if err != nil {
		return decimal.Zero, err
	}
	return decimal.Zero, fmt.Errorf("no rate for %s in source response", PairKey(from, to))
}
