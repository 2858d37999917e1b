package sandbox

import (
	"sync"
	"time"

	"github.com/dop251/goja"
)

type cachedProgram struct {
	prg      *goja.Program
	cachedAt time.Time
}

// InMemoryProgramCache is a simple in-memory implementation of ProgramCache
// Thread-safe for concurrent access
type InMemoryProgramCache struct {
	entries map[uint64]cachedProgram
	config  CacheConfig
	now     func() time.Time
	mu      sync.RWMutex
}

// NewInMemoryProgramCache creates a new in-memory program cache
func NewInMemoryProgramCache(config CacheConfig) *InMemoryProgramCache {
	return &InMemoryProgramCache{
		entries: make(map[uint64]cachedProgram),
		config:  config,
		now:     time.Now,
	}
}

// Get retrieves a cached program
// Returns nil if missing or expired
func (c *InMemoryProgramCache) Get(key uint64) *goja.Program {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil
	}

	if c.expired(entry) {
		return nil
	}

	return entry.prg
}

// Set stores a program, evicting the oldest entry when the cache is full
func (c *InMemoryProgramCache) Set(key uint64, prg *goja.Program) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && c.config.MaxEntries > 0 && len(c.entries) >= c.config.MaxEntries {
		c.evictOldest()
	}

	c.entries[key] = cachedProgram{prg: prg, cachedAt: c.now()}
}

// Invalidate clears the cache
func (c *InMemoryProgramCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[uint64]cachedProgram)
}

// Len returns the number of unexpired entries
func (c *InMemoryProgramCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	n := 0
	for _, entry := range c.entries {
		if !c.expired(entry) {
			n++
		}
	}
	return n
}

func (c *InMemoryProgramCache) expired(entry cachedProgram) bool {
	if c.config.TTL <= 0 {
		return false
	}
	return c.now().Sub(entry.cachedAt) > c.config.TTL
}

// evictOldest must be called with the write lock held.
func (c *InMemoryProgramCache) evictOldest() {
	var (
		oldestKey uint64
		oldestAt  time.Time
		found     bool
	)
	for k, entry := range c.entries {
		if !found || entry.cachedAt.Before(oldestAt) {
			oldestKey, oldestAt, found = k, entry.cachedAt, true
		}
	}
	if found {
		delete(c.entries, oldestKey)
	}
}
