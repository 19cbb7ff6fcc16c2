// Package cache provides a typed in-process TTL cache.
package cache

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
)

const (
	DefaultExpiration      = 10 * time.Minute
	DefaultCleanupInterval = 30 * time.Minute
)

// TTL is a typed wrapper over go-cache. A zero or negative ttl on Set falls
// back to the cache default.
type TTL[V any] struct {
	name  string
	cache *gocache.Cache
}

// New builds a cache. name is used only for diagnostics.
func New[V any](name string, defaultExpiration, cleanupInterval time.Duration) *TTL[V] {
	if defaultExpiration <= 0 {
		defaultExpiration = DefaultExpiration
	}
	return &TTL[V]{name: name, cache: gocache.New(defaultExpiration, cleanupInterval)}
}

// Name returns the cache label.
func (c *TTL[V]) Name() string { return c.name }

// Get returns the cached value for key.
func (c *TTL[V]) Get(key string) (V, bool) {
	var zero V
	value, found := c.cache.Get(key)
	if !found {
		return zero, false
	}
	v, ok := value.(V)
	if !ok {
		return zero, false
	}
	return v, true
}

// Set stores value under key.
func (c *TTL[V]) Set(key string, value V, ttl time.Duration) {
	if ttl <= 0 {
		ttl = gocache.DefaultExpiration
	}
	c.cache.Set(key, value, ttl)
}

// Delete removes keys.
func (c *TTL[V]) Delete(keys ...string) {
	for _, key := range keys {
		c.cache.Delete(key)
	}
}

// Len reports the number of stored items, including expired ones not yet
// cleaned up.
func (c *TTL[V]) Len() int { return c.cache.ItemCount() }

// Flush drops every item.
func (c *TTL[V]) Flush() { c.cache.Flush() }
