package rhi

import (
	"sync"
	"sync/atomic"
)

// StateCache is a content-keyed dedup cache for immutable fixed-function
// state descriptors. Identical descriptors share one handle. The maps are
// read-mostly: insertion only happens from the conveyor's compile path.
type StateCache[K comparable] struct {
	mu      sync.RWMutex
	handles map[K]StateHandle
	next    StateHandle

	hits   atomic.Uint64
	misses atomic.Uint64
}

// NewStateCache creates an empty StateCache.
func NewStateCache[K comparable]() *StateCache[K] {
	return &StateCache[K]{
		handles: make(map[K]StateHandle),
		next:    1, // handle 0 is reserved as "no state"
	}
}

// GetOrCreate returns the handle for the descriptor, allocating one on first
// sight.
func (c *StateCache[K]) GetOrCreate(key K) StateHandle {
	c.mu.RLock()
	h, ok := c.handles[key]
	c.mu.RUnlock()
	if ok {
		c.hits.Add(1)
		return h
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if h, ok := c.handles[key]; ok {
		c.hits.Add(1)
		return h
	}
	h = c.next
	c.next++
	c.handles[key] = h
	c.misses.Add(1)
	return h
}

// Len returns the number of distinct state objects cached.
func (c *StateCache[K]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.handles)
}

// Stats returns hit and miss counts.
func (c *StateCache[K]) Stats() (hits, misses uint64) {
	return c.hits.Load(), c.misses.Load()
}

// Release drops all cached state objects. Handles become invalid.
func (c *StateCache[K]) Release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handles = make(map[K]StateHandle)
	c.next = 1
}
