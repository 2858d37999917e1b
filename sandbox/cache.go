package sandbox

import (
	"time"

	"github.com/dop251/goja"
)

// ProgramCache provides an abstraction for caching compiled script programs,
// keyed by a hash of the wrapped source. A *goja.Program is immutable and may
// be run by many runtimes at once.
type ProgramCache interface {
	// Get returns the cached program, or nil on a miss or an expired entry
	Get(key uint64) *goja.Program

	// Set stores a program
	Set(key uint64, prg *goja.Program)

	// Invalidate drops every entry
	Invalidate()

	// Len reports the number of live entries
	Len() int
}

// CacheConfig holds configuration for program cache behavior
type CacheConfig struct {
	// TTL is the time-to-live for cached programs.
	// Set to 0 for no expiration.
	TTL time.Duration

	// MaxEntries bounds the cache; the oldest entry is evicted first.
	// Set to 0 for no bound.
	MaxEntries int
}

// DefaultCacheConfig returns the defaults used by NewManager
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		TTL:        0,
		MaxEntries: 1024,
	}
}
