package cache

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T, cfg Config, opts ...Option[string]) Cache[string] {
	t.Helper()
	c, err := New[string](context.Background(), cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	ctx := context.Background()

	_, err := New[string](ctx, Config{MaxEntries: 0, MaxCost: 100, TTL: time.Minute})
	assert.Error(t, err)

	_, err = New[string](ctx, Config{MaxEntries: 10, MaxCost: 0, TTL: time.Minute})
	assert.Error(t, err)

	_, err = New[string](ctx, Config{MaxEntries: 10, MaxCost: 100, TTL: 0})
	assert.Error(t, err)
}

func TestSetGet(t *testing.T) {
	c := newTestCache(t, Config{MaxEntries: 10, MaxCost: 1000, TTL: time.Minute})

	created, err := c.Set("ev1", "a")
	require.NoError(t, err)
	assert.True(t, created)

	v, ok := c.Get("ev1")
	assert.True(t, ok)
	assert.Equal(t, "a", v)

	_, ok = c.Get("missing")
	assert.False(t, ok)

	// Empty key rejected
	_, err = c.Set("", "x")
	assert.Error(t, err)
}

func TestSetIfAbsent(t *testing.T) {
	c := newTestCache(t, Config{MaxEntries: 10, MaxCost: 1000, TTL: time.Minute})

	inserted, err := c.SetIfAbsent("ev1", "a")
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = c.SetIfAbsent("ev1", "b")
	require.NoError(t, err)
	assert.False(t, inserted)

	// Original value untouched
	v, ok := c.Get("ev1")
	assert.True(t, ok)
	assert.Equal(t, "a", v)
}

func TestSetIfAbsent_ConcurrentSingleWinner(t *testing.T) {
	c := newTestCache(t, Config{MaxEntries: 100, MaxCost: 10000, TTL: time.Minute})

	const goroutines = 32
	var wg sync.WaitGroup
	var winners int64
	var mu sync.Mutex

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			inserted, err := c.SetIfAbsent("same-id", "v")
			require.NoError(t, err)
			if inserted {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), winners, "exactly one concurrent admit must win")
}

func TestEntryCountBound(t *testing.T) {
	c := newTestCache(t, Config{MaxEntries: 3, MaxCost: 100000, TTL: time.Minute})

	for i := 0; i < 5; i++ {
		_, err := c.Set(fmt.Sprintf("key%d", i), "v")
		require.NoError(t, err)
	}

	assert.Equal(t, 3, c.Size())

	// Oldest entries evicted
	_, ok := c.Get("key0")
	assert.False(t, ok)
	_, ok = c.Get("key4")
	assert.True(t, ok)
}

func TestCostBound(t *testing.T) {
	// Default cost function is key length; 64-char ids at MaxCost 200 fit 3.
	id := func(i int) string {
		return fmt.Sprintf("%064d", i)
	}
	c := newTestCache(t, Config{MaxEntries: 100, MaxCost: 200, TTL: time.Minute})

	for i := 0; i < 5; i++ {
		_, err := c.Set(id(i), "v")
		require.NoError(t, err)
	}

	assert.Equal(t, 3, c.Size())
	assert.LessOrEqual(t, c.Cost(), int64(200))

	_, ok := c.Get(id(4))
	assert.True(t, ok)
	_, ok = c.Get(id(0))
	assert.False(t, ok)
}

func TestTTLExpiry(t *testing.T) {
	c := newTestCache(t, Config{
		MaxEntries:      10,
		MaxCost:         1000,
		TTL:             50 * time.Millisecond,
		CleanupInterval: 10 * time.Millisecond,
	})

	_, err := c.Set("ev1", "a")
	require.NoError(t, err)

	_, ok := c.Get("ev1")
	assert.True(t, ok)

	time.Sleep(80 * time.Millisecond)

	_, ok = c.Get("ev1")
	assert.False(t, ok)

	// Expired slot can be re-admitted
	inserted, err := c.SetIfAbsent("ev1", "b")
	require.NoError(t, err)
	assert.True(t, inserted)
}

func TestDelete(t *testing.T) {
	c := newTestCache(t, Config{MaxEntries: 10, MaxCost: 1000, TTL: time.Minute})

	_, err := c.Set("ev1", "a")
	require.NoError(t, err)

	deleted, err := c.Delete("ev1")
	require.NoError(t, err)
	assert.True(t, deleted)

	// Deleting the id unblocks a corrected resend
	inserted, err := c.SetIfAbsent("ev1", "b")
	require.NoError(t, err)
	assert.True(t, inserted)

	deleted, err = c.Delete("never-seen")
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestEvictionCallback(t *testing.T) {
	var evicted []string
	var mu sync.Mutex

	c := newTestCache(t, Config{MaxEntries: 2, MaxCost: 100000, TTL: time.Minute},
		WithEvictionCallback[string](func(key string, _ string) {
			mu.Lock()
			evicted = append(evicted, key)
			mu.Unlock()
		}))

	for _, k := range []string{"a", "b", "c"} {
		_, err := c.Set(k, "v")
		require.NoError(t, err)
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, evicted, "a")
}

func TestStats(t *testing.T) {
	c := newTestCache(t, Config{MaxEntries: 10, MaxCost: 1000, TTL: time.Minute})

	_, _ = c.Set("ev1", "a")
	_, _ = c.Get("ev1")
	_, _ = c.Get("nope")

	stats := c.Stats().Summary()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, int64(1), stats.Sets)
	assert.Equal(t, int64(1), stats.CurrentSize)
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 500, cfg.MaxEntries)
	assert.Equal(t, int64(5000), cfg.MaxCost)
	assert.Equal(t, 5*time.Minute, cfg.TTL)
}
