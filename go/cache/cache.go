// Package cache provides a thread-safe LRU cache keyed by strings.
package cache

import (
	"sync"

	"github.com/golang/groupcache/lru"
)

// LRU is a generic LRU cache interface.
type LRU interface {
	// Add adds a key-value pair to the cache, evicting the least recently
	// used entry if the cache is full.
	Add(key string, value interface{})

	// Get returns the value for key. If ok is true the fetch was successful.
	Get(key string) (value interface{}, ok bool)

	// Len returns the current size of the cache.
	Len() int
}

// MemLRUCache implements LRU in memory.
type MemLRUCache struct {
	cache *lru.Cache
	// lru.Cache mutates its recency list on Get, so every access takes the
	// write lock.
	mutex sync.Mutex
}

// NewMemLRUCache returns a cache holding at most maxEntries values. Zero
// means no limit.
func NewMemLRUCache(maxEntries int) *MemLRUCache {
	return &MemLRUCache{
		cache: lru.New(maxEntries),
	}
}

// Add implements LRU.
func (m *MemLRUCache) Add(key string, value interface{}) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.cache.Add(key, value)
}

// Get implements LRU.
func (m *MemLRUCache) Get(key string) (interface{}, bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.cache.Get(key)
}

// Len implements LRU.
func (m *MemLRUCache) Len() int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.cache.Len()
}

var _ LRU = (*MemLRUCache)(nil)
