package server

import (
	"sync"
	"time"
)

// overlayCache is a concurrent-safe LRU cache with TTL expiration for
// rendered overlay GeoJSON documents, keyed by layer name.
type overlayCache struct {
	mu         sync.Mutex
	entries    map[string]*overlayCacheEntry
	order      []string // LRU order: front=oldest, back=newest
	maxEntries int
	ttl        time.Duration
}

type overlayCacheEntry struct {
	data      []byte
	createdAt time.Time
}

func newOverlayCache(maxEntries int, ttl time.Duration) *overlayCache {
	return &overlayCache{
		entries:    make(map[string]*overlayCacheEntry),
		maxEntries: maxEntries,
		ttl:        ttl,
	}
}

// Get retrieves a cached document. Returns nil on miss or expiration.
func (c *overlayCache) Get(key string) []byte {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		overlayCacheResults.WithLabelValues("miss").Inc()
		return nil
	}

	if time.Since(entry.createdAt) > c.ttl {
		delete(c.entries, key)
		c.removeFromOrder(key)
		overlayCacheResults.WithLabelValues("expired").Inc()
		return nil
	}

	// Move to back (most recently used).
	c.removeFromOrder(key)
	c.order = append(c.order, key)
	overlayCacheResults.WithLabelValues("hit").Inc()
	return entry.data
}

// Put stores a document, evicting the oldest entry if at capacity.
func (c *overlayCache) Put(key string, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[key]; ok {
		c.entries[key] = &overlayCacheEntry{data: data, createdAt: time.Now()}
		c.removeFromOrder(key)
		c.order = append(c.order, key)
		return
	}

	for len(c.entries) >= c.maxEntries && len(c.order) > 0 {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}

	c.entries[key] = &overlayCacheEntry{data: data, createdAt: time.Now()}
	c.order = append(c.order, key)
}

// Invalidate removes a single cached layer, e.g. after a dataset reload.
func (c *overlayCache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, key)
	c.removeFromOrder(key)
}

func (c *overlayCache) removeFromOrder(key string) {
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			return
		}
	}
}
