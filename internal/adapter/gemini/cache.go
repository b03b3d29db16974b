package gemini

import (
	"context"
	"strings"
	"time"

	"github.com/couchcryptid/aqi-prediction-service/internal/domain"
	"github.com/couchcryptid/aqi-prediction-service/internal/observability"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

// CachedProvider wraps a ReadingsProvider with an expiring in-memory LRU
// keyed by normalized city name.
type CachedProvider struct {
	inner   domain.ReadingsProvider
	cache   *expirable.LRU[string, domain.CityReadings]
	metrics *observability.Metrics
}

// NewCachedProvider creates a cache decorator around a readings provider.
func NewCachedProvider(inner domain.ReadingsProvider, maxEntries int, ttl time.Duration, metrics *observability.Metrics) *CachedProvider {
	return &CachedProvider{
		inner:   inner,
		cache:   expirable.NewLRU[string, domain.CityReadings](maxEntries, nil, ttl),
		metrics: metrics,
	}
}

func (c *CachedProvider) CityReadings(ctx context.Context, city string) (domain.CityReadings, error) {
	key := cityKey(city)
	if r, ok := c.cache.Get(key); ok {
		c.metrics.ReadingsCache.WithLabelValues("hit").Inc()
		return r, nil
	}
	c.metrics.ReadingsCache.WithLabelValues("miss").Inc()

	r, err := c.inner.CityReadings(ctx, city)
	if err != nil {
		return r, err
	}
	// Failures are not cached so the next request retries upstream.
	c.cache.Add(key, r)
	return r, nil
}

// Len reports the number of live cache entries.
func (c *CachedProvider) Len() int {
	return c.cache.Len()
}

// cityKey folds case and collapses whitespace: " New  York" and "new york" share an entry.
func cityKey(city string) string {
	return strings.ToLower(strings.Join(strings.Fields(city), " "))
}
