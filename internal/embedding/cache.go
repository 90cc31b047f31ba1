package embedding

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// Cache is an LRU cache keyed by K. A non-positive capacity disables caching.
type Cache[K comparable, V any] struct {
	lru *lru.Cache[K, V]
}

// NewCache creates a new cache with the given capacity.
func NewCache[K comparable, V any](capacity int) *Cache[K, V] {
	if capacity <= 0 {
		return &Cache[K, V]{}
	}
	c, err := lru.New[K, V](capacity)
	if err != nil {
		return &Cache[K, V]{}
	}
	return &Cache[K, V]{lru: c}
}

// Get returns the cached value for key if present and marks it most recently used.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	if c.lru == nil {
		var zero V
		return zero, false
	}
	return c.lru.Get(key)
}

// Set stores value for key, evicting the least recently used entry if at capacity.
func (c *Cache[K, V]) Set(key K, value V) {
	if c.lru == nil {
		return
	}
	c.lru.Add(key, value)
}

// Len returns the number of cached entries.
func (c *Cache[K, V]) Len() int {
	if c.lru == nil {
		return 0
	}
	return c.lru.Len()
}
