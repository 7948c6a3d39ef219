package diseasesh

import (
	"context"
	"strconv"
	"time"

	"github.com/couchcryptid/outbreak-dashboard/internal/domain"
	"github.com/couchcryptid/outbreak-dashboard/internal/observability"
	"github.com/jonboulle/clockwork"
	"github.com/karlseguin/ccache"
)

// CachedSource wraps a DataSource with size-bounded in-memory caches whose
// entries expire after a TTL.
type CachedSource struct {
	inner     domain.DataSource
	metrics   *observability.Metrics
	summaries *ttlCache[domain.Summary]
	countries *ttlCache[[]domain.CountryRecord]
	timelines *ttlCache[domain.Timeline]
}

// NewCachedSource creates a cache decorator around a data source. A nil clock
// uses real time.
func NewCachedSource(inner domain.DataSource, maxEntries int, ttl time.Duration, clock clockwork.Clock, metrics *observability.Metrics) *CachedSource {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &CachedSource{
		inner:     inner,
		metrics:   metrics,
		summaries: newTTLCache[domain.Summary](maxEntries, ttl, clock),
		countries: newTTLCache[[]domain.CountryRecord](1, ttl, clock),
		timelines: newTTLCache[domain.Timeline](maxEntries, ttl, clock),
	}
}

func (c *CachedSource) Summary(ctx context.Context, region string) (domain.Summary, error) {
	if s, ok := c.summaries.get(region); ok {
		c.observe(QuerySummary, true)
		return s, nil
	}
	c.observe(QuerySummary, false)
	s, err := c.inner.Summary(ctx, region)
	if err != nil {
		return s, err
	}
	c.summaries.put(region, s)
	return s, nil
}

func (c *CachedSource) Countries(ctx context.Context) ([]domain.CountryRecord, error) {
	if rs, ok := c.countries.get(QueryCountries); ok {
		c.observe(QueryCountries, true)
		return rs, nil
	}
	c.observe(QueryCountries, false)
	rs, err := c.inner.Countries(ctx)
	if err != nil {
		return nil, err
	}
	// An empty list is more likely an upstream hiccup than reality; let the
	// next refresh try again.
	if len(rs) > 0 {
		c.countries.put(QueryCountries, rs)
	}
	return rs, nil
}

func (c *CachedSource) Historical(ctx context.Context, lastDays int) (domain.Timeline, error) {
	key := strconv.Itoa(lastDays)
	if tl, ok := c.timelines.get(key); ok {
		c.observe(QueryHistorical, true)
		return tl, nil
	}
	c.observe(QueryHistorical, false)
	tl, err := c.inner.Historical(ctx, lastDays)
	if err != nil {
		return tl, err
	}
	c.timelines.put(key, tl)
	return tl, nil
}

// Close stops the cache maintenance goroutines.
func (c *CachedSource) Close() {
	c.summaries.stop()
	c.countries.stop()
	c.timelines.stop()
}

func (c *CachedSource) observe(query string, hit bool) {
	if c.metrics == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	c.metrics.UpstreamCache.WithLabelValues(query, result).Inc()
}

// neverExpires stands in for a zero TTL when storing into ccache.
const neverExpires = 100 * 365 * 24 * time.Hour

// ttlCache is a typed view over a size-bounded ccache. Expiry is decided
// against the injected clock from the time an entry was stored.
type ttlCache[V any] struct {
	cache *ccache.Cache
	ttl   time.Duration
	clock clockwork.Clock
}

type cacheEntry[V any] struct {
	value    V
	storedAt time.Time
}

func newTTLCache[V any](maxEntries int, ttl time.Duration, clock clockwork.Clock) *ttlCache[V] {
	prune := max(maxEntries/10, 1)
	return &ttlCache[V]{
		cache: ccache.New(ccache.Configure().
			MaxSize(int64(maxEntries)).
			ItemsToPrune(uint32(prune))),
		ttl:   ttl,
		clock: clock,
	}
}

func (c *ttlCache[V]) get(key string) (V, bool) {
	var zero V
	item := c.cache.Get(key)
	if item == nil {
		return zero, false
	}
	e, ok := item.Value().(cacheEntry[V])
	if !ok || (c.ttl > 0 && c.clock.Since(e.storedAt) >= c.ttl) {
		c.cache.Delete(key)
		return zero, false
	}
	return e.value, true
}

func (c *ttlCache[V]) put(key string, value V) {
	keep := c.ttl
	if keep <= 0 {
		keep = neverExpires
	}
	c.cache.Set(key, cacheEntry[V]{value: value, storedAt: c.clock.Now()}, keep)
}

func (c *ttlCache[V]) stop() {
	c.cache.Stop()
}
