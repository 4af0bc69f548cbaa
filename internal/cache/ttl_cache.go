package cache

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/catherinevee/cloudboard/internal/metrics"
	"github.com/catherinevee/cloudboard/internal/shared/logger"
)

// CacheEntry represents a cached item with expiration
type CacheEntry struct {
	Value      interface{}
	ExpiresAt  time.Time
	CreatedAt  time.Time
	AccessedAt time.Time
	HitCount   int64
}

// CacheStats tracks cache performance
type CacheStats struct {
	Hits      int64
	Misses    int64
	Evictions int64
	Expired   int64
	TotalSets int64
}

// TTLCache provides thread-safe caching with TTL support
type TTLCache struct {
	items      map[string]*CacheEntry
	mu         sync.Mutex
	defaultTTL time.Duration
	maxSize    int
	stats      CacheStats
	generation uint64 // bumped by every invalidation
	loads      singleflight.Group
	metrics    *metrics.Collector
	log        zerolog.Logger
	now        func() time.Time
}

// NewTTLCache creates a cache. A maxSize of zero means unbounded.
func NewTTLCache(defaultTTL time.Duration, maxSize int, m *metrics.Collector) *TTLCache {
	return &TTLCache{
		items:      make(map[string]*CacheEntry),
		defaultTTL: defaultTTL,
		maxSize:    maxSize,
		metrics:    m,
		log:        logger.WithComponent("cache"),
		now:        time.Now,
	}
}

// SetDefaultTTL changes the TTL applied to future Sets
func (c *TTLCache) SetDefaultTTL(ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.defaultTTL = ttl
}

// Set adds or updates an item in the cache
func (c *TTLCache) Set(key string, value interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setLocked(key, value)
}

// setIfCurrent stores value only when no invalidation happened since gen
// was read
func (c *TTLCache) setIfCurrent(key string, value interface{}, gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.generation != gen {
		return false
	}
	c.setLocked(key, value)
	return true
}

func (c *TTLCache) setLocked(key string, value interface{}) {
	if _, exists := c.items[key]; !exists && c.maxSize > 0 && len(c.items) >= c.maxSize {
		c.evictOldest()
	}

	now := c.now()
	c.items[key] = &CacheEntry{
		Value:      value,
		ExpiresAt:  now.Add(c.defaultTTL),
		CreatedAt:  now,
		AccessedAt: now,
	}
	c.stats.TotalSets++
	c.metrics.SetCacheEntries(len(c.items))
}

// Get retrieves an unexpired item
func (c *TTLCache) Get(key string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, exists := c.items[key]
	if !exists {
		c.stats.Misses++
		c.metrics.ObserveCacheLookup(false)
		return nil, false
	}

	now := c.now()
	if !now.Before(entry.ExpiresAt) {
		delete(c.items, key)
		c.stats.Expired++
		c.stats.Misses++
		c.metrics.ObserveCacheLookup(false)
		c.metrics.SetCacheEntries(len(c.items))
		return nil, false
	}

	entry.AccessedAt = now
	entry.HitCount++
	c.stats.Hits++
	c.metrics.ObserveCacheLookup(true)
	return entry.Value, true
}

// GetWithLoader returns the cached value or runs loader and caches its
// result. Concurrent misses for the same key share one loader call. Loader
// errors are returned and never cached. A result whose load overlapped an
// invalidation is returned to its callers but not cached, and callers
// arriving after the invalidation start a new load.
func (c *TTLCache) GetWithLoader(key string, loader func() (interface{}, error)) (interface{}, error) {
	if val, ok := c.Get(key); ok {
		return val, nil
	}

	c.mu.Lock()
	gen := c.generation
	c.mu.Unlock()

	flight := key + "@" + strconv.FormatUint(gen, 10)
	val, err, _ := c.loads.Do(flight, func() (interface{}, error) {
		v, err := loader()
		if err != nil {
			return nil, err
		}
		if !c.setIfCurrent(key, v, gen) {
			c.log.Debug().Str("key", key).Msg("discarding load overlapped by invalidation")
		}
		return v, nil
	})
	return val, err
}

// invalidateLocked marks in-flight loads stale. Caller holds mu.
func (c *TTLCache) invalidateLocked() {
	c.generation++
}

// Delete removes an item from the cache
func (c *TTLCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.items, key)
	c.invalidateLocked()
	c.metrics.SetCacheEntries(len(c.items))
}

// DeletePrefix removes every item whose key starts with prefix and
// returns how many were removed
func (c *TTLCache) DeletePrefix(prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key := range c.items {
		if strings.HasPrefix(key, prefix) {
			delete(c.items, key)
			removed++
		}
	}
	c.invalidateLocked()
	c.metrics.SetCacheEntries(len(c.items))
	return removed
}

// Clear removes all items from the cache
func (c *TTLCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[string]*CacheEntry)
	c.invalidateLocked()
	c.metrics.SetCacheEntries(0)
	c.log.Debug().Msg("cache cleared")
}

// Size returns the number of items in the cache, expired ones included
func (c *TTLCache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// GetStats returns a snapshot of the cache statistics
func (c *TTLCache) GetStats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// evictOldest removes the least recently accessed item. Caller holds mu.
func (c *TTLCache) evictOldest() {
	var oldestKey string
	var oldestTime time.Time

	for key, entry := range c.items {
		if oldestKey == "" || entry.AccessedAt.Before(oldestTime) {
			oldestKey = key
			oldestTime = entry.AccessedAt
		}
	}

	if oldestKey != "" {
		delete(c.items, oldestKey)
		c.stats.Evictions++
		c.log.Debug().Str("key", oldestKey).Msg("cache eviction")
	}
}

// RemoveExpired drops expired items and returns how many were removed
func (c *TTLCache) RemoveExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for key, entry := range c.items {
		if !now.Before(entry.ExpiresAt) {
			delete(c.items, key)
			removed++
		}
	}
	c.stats.Expired += int64(removed)
	c.metrics.SetCacheEntries(len(c.items))
	return removed
}

// Janitor removes expired items every interval until ctx is done
func (c *TTLCache) Janitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := c.RemoveExpired(); n > 0 {
				c.log.Debug().Int("count", n).Msg("expired cache entries cleaned")
			}
		}
	}
}
