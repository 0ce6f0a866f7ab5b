package server

import (
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"github.com/mohammed1916/marine-anomaly/internal/metrics"
)

// ResultCache is a bounded, expiring cache of query results. Concurrent
// misses on one key run the loader once. Errors are not cached.
type ResultCache struct {
	name  string
	lru   *expirable.LRU[string, any]
	group singleflight.Group
}

// NewResultCache creates a cache holding at most size entries for ttl each.
func NewResultCache(name string, size int, ttl time.Duration) *ResultCache {
	return &ResultCache{
		name: name,
		lru:  expirable.NewLRU[string, any](max(size, 1), nil, ttl),
	}
}

// CacheKey composes the key of a file/time window result. resolution
// distinguishes results of the same window, e.g. heatmap cell sizes.
func CacheKey(file string, t0, t1 int64, resolution string) string {
	return fmt.Sprintf("%s|%d|%d|%s", file, t0, t1, resolution)
}

// Get returns the cached value of key.
func (c *ResultCache) Get(key string) (any, bool) {
	v, ok := c.lru.Get(key)
	if ok {
		metrics.CacheHits.WithLabelValues(c.name).Inc()
	} else {
		metrics.CacheMisses.WithLabelValues(c.name).Inc()
	}
	return v, ok
}

// Do returns the cached value of key, calling load on a miss.
func (c *ResultCache) Do(key string, load func() (any, error)) (any, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}
	v, err, _ := c.group.Do(key, func() (any, error) {
		if v, ok := c.lru.Peek(key); ok {
			return v, nil
		}
		v, err := load()
		if err != nil {
			return nil, err
		}
		c.lru.Add(key, v)
		return v, nil
	})
	return v, err
}

// Len returns the number of cached entries.
func (c *ResultCache) Len() int {
	return c.lru.Len()
}

// Purge drops every entry.
func (c *ResultCache) Purge() {
	c.lru.Purge()
}
