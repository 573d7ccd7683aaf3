package scan

import (
	"sync"
	"time"

	"github.com/quantlab/scanbridge/pkg/logger"
)

// Cache is a short-TTL in-memory cache of complete scan responses keyed by
// scan parameters. It shields the quote gateway from duplicate rapid calls;
// failures are cached under the same TTL so an immediate client retry gets
// the same failure instead of re-triggering the upstream limiter.
type Cache struct {
	ttl    time.Duration
	logger *logger.Logger

	mu      sync.RWMutex
	entries map[string]cacheEntry
}

type cacheEntry struct {
	createdAt time.Time
	response  *Response
}

// NewCache creates a scan response cache.
func NewCache(ttl time.Duration, log *logger.Logger) *Cache {
	return &Cache{
		ttl:     ttl,
		logger:  log.Component("scan-cache"),
		entries: make(map[string]cacheEntry),
	}
}

// Get returns the cached response for key, or nil once the entry's TTL
// has elapsed.
func (c *Cache) Get(key string) (*Response, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if time.Since(entry.createdAt) >= c.ttl {
		return nil, false
	}

	return entry.response, true
}

// Put stores a response under key.
func (c *Cache) Put(key string, resp *Response) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = cacheEntry{
		createdAt: time.Now(),
		response:  resp,
	}
}

// Len returns the number of entries, expired ones included.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Sweep removes expired entries and returns how many were dropped.
func (c *Cache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	dropped := 0
	for key, entry := range c.entries {
		if now.Sub(entry.createdAt) >= c.ttl {
			delete(c.entries, key)
			dropped++
		}
	}

	if dropped > 0 {
		c.logger.WithField("count", dropped).Debug("Swept expired scan responses")
	}

	return dropped
}
