// Package cache provides a small in-memory cache with per-entry expiry.
package cache

import (
	"sync"
	"time"

	"github.com/drallgood/plex-audiobook-cache/internal/logger"
)

// Cache stores values for a limited time
type Cache[K comparable, V any] interface {
	// Set stores value under key. A ttl <= 0 never expires.
	Set(key K, value V, ttl time.Duration)
	// Get returns the value for key unless it is missing or expired
	Get(key K) (V, bool)
	Delete(key K)
	Clear()
	// Len counts stored entries, including expired ones not yet evicted
	Len() int
}

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

func (e entry[V]) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

type memoryCache[K comparable, V any] struct {
	mu    sync.RWMutex
	items map[K]entry[V]
	now   func() time.Time
	log   *logger.Logger
}

// NewMemoryCache creates an empty in-memory cache
func NewMemoryCache[K comparable, V any](log *logger.Logger) Cache[K, V] {
	return newMemoryCache[K, V](log, time.Now)
}

func newMemoryCache[K comparable, V any](log *logger.Logger, now func() time.Time) *memoryCache[K, V] {
	return &memoryCache[K, V]{
		items: make(map[K]entry[V]),
		now:   now,
		log:   log,
	}
}

func (c *memoryCache[K, V]) Set(key K, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = now.Add(ttl)
	}

	// evict lazily so the map cannot grow without bound
	for k, e := range c.items {
		if e.expired(now) {
			delete(c.items, k)
		}
	}
	c.items[key] = entry[V]{value: value, expiresAt: expiresAt}

	c.log.Debug("Cache entry stored", map[string]interface{}{
		"key":        key,
		"cache_size": len(c.items),
	})
}

func (c *memoryCache[K, V]) Get(key K) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	item, found := c.items[key]
	if !found || item.expired(c.now()) {
		var zero V
		return zero, false
	}
	return item.value, true
}

func (c *memoryCache[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
}

func (c *memoryCache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[K]entry[V])
}

func (c *memoryCache[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// WithTTL returns a view of cache whose Set ignores its ttl argument and
// uses ttl instead
func WithTTL[K comparable, V any](cache Cache[K, V], ttl time.Duration) Cache[K, V] {
	return &ttlWrapper[K, V]{Cache: cache, ttl: ttl}
}

type ttlWrapper[K comparable, V any] struct {
	Cache[K, V]
	ttl time.Duration
}

func (w *ttlWrapper[K, V]) Set(key K, value V, _ time.Duration) {
	w.Cache.Set(key, value, w.ttl)
}
