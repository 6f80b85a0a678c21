// Copyright (C) 2025 TaskMate (dev@taskmate.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ai

import (
	"container/list"
	"sync"
	"time"
)

// CacheConfig bounds the response cache.
type CacheConfig struct {
	// MaxEntries caps the number of cached responses. Default: 256.
	MaxEntries int

	// SuggestTTL is the lifetime of suggestion entries. Default: 5m.
	SuggestTTL time.Duration

	// SummaryTTL is the lifetime of summary entries. Default: 10m.
	SummaryTTL time.Duration
}

// DefaultCacheConfig returns production cache bounds.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		MaxEntries: 256,
		SuggestTTL: 5 * time.Minute,
		SummaryTTL: 10 * time.Minute,
	}
}

type cacheEntry struct {
	key       string
	value     any
	expiresAt time.Time
}

// responseCache is a bounded TTL cache with LRU eviction. It is
// injected into the Service explicitly so its bounds are visible at
// construction time.
//
// Thread Safety: Safe for concurrent use.
type responseCache struct {
	mu         sync.Mutex
	maxEntries int
	order      *list.List // front = most recently used
	entries    map[string]*list.Element
	now        func() time.Time
}

func newResponseCache(maxEntries int) *responseCache {
	if maxEntries <= 0 {
		maxEntries = 256
	}
	return &responseCache{
		maxEntries: maxEntries,
		order:      list.New(),
		entries:    make(map[string]*list.Element),
		now:        time.Now,
	}
}

// get returns the cached value, or ok=false when absent or expired.
func (c *responseCache) get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	entry := elem.Value.(*cacheEntry)
	if c.now().After(entry.expiresAt) {
		c.order.Remove(elem)
		delete(c.entries, key)
		return nil, false
	}
	c.order.MoveToFront(elem)
	return entry.value, true
}

// put stores a value with the given lifetime, evicting the least
// recently used entry when the cache is full.
func (c *responseCache) put(key string, value any, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[key]; ok {
		entry := elem.Value.(*cacheEntry)
		entry.value = value
		entry.expiresAt = c.now().Add(ttl)
		c.order.MoveToFront(elem)
		return
	}

	for len(c.entries) >= c.maxEntries {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*cacheEntry).key)
	}

	elem := c.order.PushFront(&cacheEntry{
		key:       key,
		value:     value,
		expiresAt: c.now().Add(ttl),
	})
	c.entries[key] = elem
}

// len returns the number of entries, expired included.
func (c *responseCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
