// Package cache memoizes fetched metadata per URL for a fixed freshness window.
package cache

import (
	"sync"
	"time"

	"github.com/starford/ogfetch/internal/metadata"
)

type entry struct {
	record   metadata.Record
	inserted time.Time
}

// Cache is a time-bounded map from URL to metadata. It does not collapse
// concurrent misses: two callers missing on the same URL both fetch.
type Cache struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]entry
}

// New creates a cache whose entries stay fresh for ttl. A ttl of zero or
// less disables caching. now defaults to time.Now.
func New(ttl time.Duration, now func() time.Time) *Cache {
	if now == nil {
		now = time.Now
	}
	return &Cache{ttl: ttl, now: now, entries: make(map[string]entry)}
}

// Get returns the record for url while it is fresh. Stale entries are left
// in place but never returned.
func (c *Cache) Get(url string) (metadata.Record, bool) {
	if c.ttl <= 0 {
		return metadata.Record{}, false
	}
	c.mu.Lock()
	e, ok := c.entries[url]
	c.mu.Unlock()
	if !ok || c.now().Sub(e.inserted) >= c.ttl {
		return metadata.Record{}, false
	}
	return e.record, true
}

// Put stores rec for url stamped with the current time.
func (c *Cache) Put(url string, rec metadata.Record) {
	if c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	c.entries[url] = entry{record: rec, inserted: c.now()}
	c.mu.Unlock()
}

// Invalidate drops the entry for url.
func (c *Cache) Invalidate(url string) {
	c.mu.Lock()
	delete(c.entries, url)
	c.mu.Unlock()
}

// Clear drops every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]entry)
	c.mu.Unlock()
}

// Len returns the number of stored entries, fresh or stale.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
