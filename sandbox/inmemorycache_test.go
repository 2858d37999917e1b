package sandbox

import (
	"testing"
	"time"

	"github.com/dop251/goja"
)

func mustCompile(t *testing.T, src string) *goja.Program {
	t.Helper()
	prg, err := goja.Compile("test", src, false)
	if err != nil {
		t.Fatalf("compile %q: %v", src, err)
	}
	return prg
}

// TestInMemoryProgramCache_GetSet verifies basic storage and invalidation
func TestInMemoryProgramCache_GetSet(t *testing.T) {
	cache := NewInMemoryProgramCache(CacheConfig{})

	if cache.Get(1) != nil {
		t.Fatal("expected miss on empty cache")
	}

	prg := mustCompile(t, "1")
	cache.Set(1, prg)

	if got := cache.Get(1); got != prg {
		t.Errorf("expected cached program, got %v", got)
	}
	if cache.Len() != 1 {
		t.Errorf("expected 1 entry, got %d", cache.Len())
	}

	cache.Invalidate()
	if cache.Get(1) != nil {
		t.Error("expected miss after invalidate")
	}
}

// TestInMemoryProgramCache_TTL verifies entries expire after the configured TTL
func TestInMemoryProgramCache_TTL(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	cache := NewInMemoryProgramCache(CacheConfig{TTL: time.Minute})
	cache.now = func() time.Time { return now }

	cache.Set(7, mustCompile(t, "7"))

	now = now.Add(30 * time.Second)
	if cache.Get(7) == nil {
		t.Fatal("entry expired too early")
	}

	now = now.Add(31 * time.Second)
	if cache.Get(7) != nil {
		t.Error("expected entry to expire")
	}
	if cache.Len() != 0 {
		t.Errorf("expected expired entry to be excluded from Len, got %d", cache.Len())
	}
}

// TestInMemoryProgramCache_Eviction verifies the oldest entry goes first when full
func TestInMemoryProgramCache_Eviction(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	cache := NewInMemoryProgramCache(CacheConfig{MaxEntries: 2})
	cache.now = func() time.Time { return now }

	for key := uint64(1); key <= 3; key++ {
		cache.Set(key, mustCompile(t, "0"))
		now = now.Add(time.Second)
	}

	if cache.Get(1) != nil {
		t.Error("expected oldest entry to be evicted")
	}
	if cache.Get(2) == nil || cache.Get(3) == nil {
		t.Error("expected newer entries to survive")
	}

	// overwriting an existing key does not evict
	cache.Set(3, mustCompile(t, "3"))
	if cache.Len() != 2 {
		t.Errorf("expected 2 entries, got %d", cache.Len())
	}
}
