// Package cache provides an in-memory TTL cache with sliding expiry and eviction hooks.
package cache

import (
	"sync"
	"time"
)

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// TTL is a concurrency-safe map whose entries expire ttl after their last write or touch.
// Expired entries are never returned; a background loop removes them every cleanupInterval.
type TTL[K comparable, V any] struct {
	mu      sync.RWMutex
	entries map[K]entry[V]
	ttl     time.Duration
	onEvict func(K, V)
	now     func() time.Time

	stopCleanup chan struct{}
	stopOnce    sync.Once
}

// New starts the cleanup loop. onEvict, if set, runs outside the lock for every entry
// removed by expiry, Delete or Clear.
func New[K comparable, V any](ttl, cleanupInterval time.Duration, onEvict func(K, V)) *TTL[K, V] {
	c := &TTL[K, V]{
		entries:     make(map[K]entry[V]),
		ttl:         ttl,
		onEvict:     onEvict,
		now:         time.Now,
		stopCleanup: make(chan struct{}),
	}
	if cleanupInterval <= 0 {
		cleanupInterval = time.Minute
	}
	go func() {
		ticker := time.NewTicker(cleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.evictExpired()
			case <-c.stopCleanup:
				return
			}
		}
	}()
	return c
}

func (c *TTL[K, V]) Get(key K) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	if !ok || c.now().After(e.expiresAt) {
		var zero V
		return zero, false
	}
	return e.value, true
}

func (c *TTL[K, V]) Set(key K, value V) {
	c.mu.Lock()
	old, had := c.entries[key]
	c.entries[key] = entry[V]{value: value, expiresAt: c.now().Add(c.ttl)}
	c.mu.Unlock()
	if had && c.onEvict != nil {
		c.onEvict(key, old.value)
	}
}

// GetOrCreate returns the live value for key, extending its expiry, or stores the
// result of create. The second result reports whether the value already existed.
func (c *TTL[K, V]) GetOrCreate(key K, create func() V) (V, bool) {
	c.mu.Lock()
	now := c.now()
	e, ok := c.entries[key]
	if ok && !now.After(e.expiresAt) {
		e.expiresAt = now.Add(c.ttl)
		c.entries[key] = e
		c.mu.Unlock()
		return e.value, true
	}
	v := create()
	c.entries[key] = entry[V]{value: v, expiresAt: now.Add(c.ttl)}
	c.mu.Unlock()
	if ok && c.onEvict != nil {
		c.onEvict(key, e.value)
	}
	return v, false
}

func (c *TTL[K, V]) Delete(key K) {
	c.mu.Lock()
	e, ok := c.entries[key]
	delete(c.entries, key)
	c.mu.Unlock()
	if ok && c.onEvict != nil {
		c.onEvict(key, e.value)
	}
}

// DeleteFunc removes every key matching predicate.
func (c *TTL[K, V]) DeleteFunc(predicate func(key K) bool) {
	c.mu.Lock()
	removed := make(map[K]V)
	for key, e := range c.entries {
		if predicate(key) {
			removed[key] = e.value
			delete(c.entries, key)
		}
	}
	c.mu.Unlock()
	c.evicted(removed)
}

func (c *TTL[K, V]) Clear() {
	c.mu.Lock()
	removed := make(map[K]V, len(c.entries))
	for key, e := range c.entries {
		removed[key] = e.value
	}
	c.entries = make(map[K]entry[V])
	c.mu.Unlock()
	c.evicted(removed)
}

// Len counts stored entries, expired ones included.
func (c *TTL[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *TTL[K, V]) Close() {
	c.stopOnce.Do(func() { close(c.stopCleanup) })
}

func (c *TTL[K, V]) evictExpired() {
	c.mu.Lock()
	now := c.now()
	removed := make(map[K]V)
	for key, e := range c.entries {
		if now.After(e.expiresAt) {
			removed[key] = e.value
			delete(c.entries, key)
		}
	}
	c.mu.Unlock()
	c.evicted(removed)
}

func (c *TTL[K, V]) evicted(removed map[K]V) {
	if c.onEvict == nil {
		return
	}
	for key, v := range removed {
		c.onEvict(key, v)
	}
}
