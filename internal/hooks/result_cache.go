package hooks

import (
	"sync"
	"time"
)

// resultCache is a TTL cache storing a Result per key, adapted from
// internal/cache's timestamp-only dedupe cache into one that also carries
// the cached value itself.
type resultCache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	maxSize int
}

type cacheEntry struct {
	result    Result
	expiresAt time.Time
}

func newResultCache(maxSize int) *resultCache {
	return &resultCache{
		entries: make(map[string]cacheEntry),
		maxSize: maxSize,
	}
}

func (c *resultCache) get(key string) (Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if !ok {
		return Result{}, false
	}
	if time.Now().After(entry.expiresAt) {
		delete(c.entries, key)
		return Result{}, false
	}
	return entry.result, true
}

func (c *resultCache) set(key string, result Result, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{result: result, expiresAt: time.Now().Add(ttl)}
	c.prune()
}

func (c *resultCache) prune() {
	now := time.Now()
	for k, v := range c.entries {
		if now.After(v.expiresAt) {
			delete(c.entries, k)
		}
	}
	if c.maxSize <= 0 {
		return
	}
	for len(c.entries) > c.maxSize {
		var oldestKey string
		var oldestExpiry time.Time
		first := true
		for k, v := range c.entries {
			if first || v.expiresAt.Before(oldestExpiry) {
				oldestKey, oldestExpiry, first = k, v.expiresAt, false
			}
		}
		if oldestKey == "" {
			break
		}
		delete(c.entries, oldestKey)
	}
}
