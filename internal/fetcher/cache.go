package fetcher

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// DefaultCacheTTL bounds how long a memoized response stays servable.
const DefaultCacheTTL = 180 * time.Second

// RequestCache memoizes fetch responses by request signature for a short
// TTL, deduplicating identical outbound requests within a single run. It
// lives for the process only and is never persisted. Concurrent callers
// asking for the same signature share a single underlying fetch.
type RequestCache struct {
	delegate Doer
	ttl      time.Duration
	now      func() time.Time

	mu      sync.Mutex
	entries map[string]cacheEntry
	group   singleflight.Group
}

type cacheEntry struct {
	body     []byte
	captured time.Time
}

// NewRequestCache wraps delegate with response memoization. A ttl <= 0
// selects the default of 180 seconds.
func NewRequestCache(delegate Doer, ttl time.Duration) *RequestCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &RequestCache{
		delegate: delegate,
		ttl:      ttl,
		now:      time.Now,
		entries:  make(map[string]cacheEntry),
	}
}

// Do returns the cached body when an unexpired entry exists for the
// request signature; otherwise it delegates, stores the result with the
// current timestamp, and returns it. Expired entries are evicted lazily
// here, not swept.
func (c *RequestCache) Do(ctx context.Context, req Request) ([]byte, error) {
	key := req.Key()
	if body, ok := c.lookup(key); ok {
		return body, nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		if body, ok := c.lookup(key); ok {
			return body, nil
		}
		body, err := c.delegate.Do(ctx, req)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.entries[key] = cacheEntry{body: body, captured: c.now()}
		c.mu.Unlock()
		return body, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

func (c *RequestCache) lookup(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.now().Sub(entry.captured) >= c.ttl {
		delete(c.entries, key)
		return nil, false
	}
	return entry.body, true
}

// Len reports the number of live and not-yet-evicted entries.
func (c *RequestCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Clear drops every entry immediately. Used for explicit resets and test
// isolation, not part of normal request flow.
func (c *RequestCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]cacheEntry)
}
