// Package cache provides the shared, expiring key/value store used to reuse
// generated drafts across resolution calls.
package cache

import (
	"context"
	"sync"
	"time"
)

// Cache is a content-addressed store with independent per-key expiry.
// Concurrent Set calls on the same key are last-write-wins.
type Cache interface {
	// Get returns the stored value and true, or false when absent or expired
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set stores value under key for ttl
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

type entry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryCache is an in-process Cache guarded by a mutex.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]entry
	now     func() time.Time
}

// NewMemoryCache creates an empty in-memory cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]entry),
		now:     time.Now,
	}
}

// Get returns a copy of the value stored under key if it has not expired.
func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		return nil, false, nil
	}
	if !c.now().Before(e.expiresAt) {
		c.mu.Lock()
		// Re-check: a concurrent Set may have refreshed the key
		if cur, still := c.entries[key]; still && !c.now().Before(cur.expiresAt) {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return nil, false, nil
	}

	return append([]byte(nil), e.value...), true, nil
}

// Set stores a copy of value under key. A non-positive ttl deletes the key.
func (c *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ttl <= 0 {
		delete(c.entries, key)
		return nil
	}
	c.entries[key] = entry{
		value:     append([]byte(nil), value...),
		expiresAt: c.now().Add(ttl),
	}
	return nil
}

// Sweep removes every expired entry and returns how many were removed.
func (c *MemoryCache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for key, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of stored entries, including expired ones not yet swept.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
