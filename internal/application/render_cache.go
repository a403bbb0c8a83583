package application

import (
	"sync"
	"time"
)

// renderCache keeps recently rendered calendar bodies. Keys embed the
// selection and catalog versions, so a stale entry is never served after
// either changes; the TTL only bounds memory.
type renderCache struct {
	mu         sync.RWMutex
	now        func() time.Time
	ttl        time.Duration
	maxEntries int
	entries    map[string]renderCacheEntry
}

type renderCacheEntry struct {
	body      []byte
	expiresAt time.Time
}

func newRenderCache(ttl time.Duration, maxEntries int, now func() time.Time) *renderCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if maxEntries <= 0 {
		maxEntries = 512
	}
	if now == nil {
		now = time.Now
	}
	return &renderCache{
		now:        now,
		ttl:        ttl,
		maxEntries: maxEntries,
		entries:    make(map[string]renderCacheEntry),
	}
}

func (c *renderCache) Get(key string) ([]byte, bool) {
	if c == nil {
		return nil, false
	}
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if c.now().After(entry.expiresAt) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return nil, false
	}
	return append([]byte(nil), entry.body...), true
}

func (c *renderCache) Store(key string, body []byte) {
	if c == nil {
		return
	}
	cloned := append([]byte(nil), body...)
	expiry := c.now().Add(c.ttl)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.cleanupLocked()
	if len(c.entries) >= c.maxEntries {
		c.evictOneLocked()
	}
	c.entries[key] = renderCacheEntry{body: cloned, expiresAt: expiry}
}

func (c *renderCache) cleanupLocked() {
	now := c.now()
	for key, entry := range c.entries {
		if now.After(entry.expiresAt) {
			delete(c.entries, key)
		}
	}
}

func (c *renderCache) evictOneLocked() {
	for key := range c.entries {
		delete(c.entries, key)
		return
	}
}
