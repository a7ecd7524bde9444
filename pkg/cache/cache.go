// Package cache is a small in-process TTL cache.
package cache

import (
	"context"
	"sync"
	"time"
)

type item[V any] struct {
	value     V
	expiresAt time.Time
}

func (it item[V]) expired(now time.Time) bool {
	return !it.expiresAt.IsZero() && now.After(it.expiresAt)
}

// Options configures a Cache.
type Options struct {
	// TTL is the default lifetime. Zero keeps items until evicted.
	TTL time.Duration
	// MaxItems bounds the cache; the entry closest to expiry is evicted
	// first. Zero means unbounded.
	MaxItems int
}

// Cache is a thread-safe map with per-item expiration.
type Cache[K comparable, V any] struct {
	mu    sync.RWMutex
	items map[K]item[V]
	opts  Options
	now   func() time.Time
}

// New creates an empty cache.
func New[K comparable, V any](opts Options) *Cache[K, V] {
	return &Cache[K, V]{
		items: make(map[K]item[V]),
		opts:  opts,
		now:   time.Now,
	}
}

// Set stores value under key with the default TTL.
func (c *Cache[K, V]) Set(key K, value V) {
	c.SetWithTTL(key, value, c.opts.TTL)
}

// SetWithTTL stores value under key for ttl. A zero ttl never expires.
func (c *Cache[K, V]) SetWithTTL(key K, value V, ttl time.Duration) {
	now := c.now()
	var exp time.Time
	if ttl > 0 {
		exp = now.Add(ttl)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.items[key]; !exists && c.opts.MaxItems > 0 && len(c.items) >= c.opts.MaxItems {
		c.evictLocked(now)
	}
	c.items[key] = item[V]{value: value, expiresAt: exp}
}

// Get returns the live value for key.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.RLock()
	it, ok := c.items[key]
	c.mu.RUnlock()

	if !ok || it.expired(c.now()) {
		var zero V
		return zero, false
	}
	return it.value, true
}

// GetOrLoad returns the cached value or stores the result of load. Errors
// are not cached.
func (c *Cache[K, V]) GetOrLoad(key K, load func() (V, error)) (V, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}
	v, err := load()
	if err != nil {
		return v, err
	}
	c.Set(key, v)
	return v, nil
}

// Delete removes key.
func (c *Cache[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
}

// Flush removes everything.
func (c *Cache[K, V]) Flush() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[K]item[V])
}

// Len counts stored items, expired ones included until swept.
func (c *Cache[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Run sweeps expired items every interval until ctx is done.
func (c *Cache[K, V]) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.deleteExpired()
		}
	}
}

func (c *Cache[K, V]) deleteExpired() {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, it := range c.items {
		if it.expired(now) {
			delete(c.items, k)
		}
	}
}

// evictLocked drops an expired item if there is one, otherwise the item
// closest to expiry. Items without expiry go last.
func (c *Cache[K, V]) evictLocked(now time.Time) {
	var (
		victim  K
		soonest time.Time
		found   bool
	)
	for k, it := range c.items {
		if it.expired(now) {
			delete(c.items, k)
			return
		}
		if it.expiresAt.IsZero() {
			if !found {
				victim, found = k, true
			}
			continue
		}
		if !found || soonest.IsZero() || it.expiresAt.Before(soonest) {
			victim, soonest, found = k, it.expiresAt, true
		}
	}
	if found {
		delete(c.items, victim)
	}
}
