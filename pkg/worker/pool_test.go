package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolProcessesWork(t *testing.T) {
	var processed int64

	pool := NewPool[int](2, 10, func(_ context.Context, _ int) error {
		atomic.AddInt64(&processed, 1)
		return nil
	})

	require.NoError(t, pool.Start(context.Background()))

	for i := 0; i < 5; i++ {
		require.NoError(t, pool.Submit(i))
	}

	require.NoError(t, pool.Stop(2*time.Second))
	assert.Equal(t, int64(5), atomic.LoadInt64(&processed))

	stats := pool.Stats()
	assert.Equal(t, int64(5), stats.Submitted)
	assert.Equal(t, int64(5), stats.Processed)
	assert.Equal(t, int64(0), stats.Failed)
}

func TestSubmitBeforeStart(t *testing.T) {
	pool := NewPool[int](1, 1, func(_ context.Context, _ int) error { return nil })

	err := pool.Submit(1)
	assert.ErrorIs(t, err, ErrPoolNotStarted)
}

func TestSubmitAfterStop(t *testing.T) {
	pool := NewPool[int](1, 1, func(_ context.Context, _ int) error { return nil })
	require.NoError(t, pool.Start(context.Background()))
	require.NoError(t, pool.Stop(time.Second))

	err := pool.Submit(1)
	assert.ErrorIs(t, err, ErrPoolStopped)
}

func TestDoubleStart(t *testing.T) {
	pool := NewPool[int](1, 1, func(_ context.Context, _ int) error { return nil })
	require.NoError(t, pool.Start(context.Background()))
	defer func() { _ = pool.Stop(time.Second) }()

	assert.ErrorIs(t, pool.Start(context.Background()), ErrPoolAlreadyStarted)
}

func TestQueueFullDropsWork(t *testing.T) {
	block := make(chan struct{})

	pool := NewPool[int](1, 1, func(_ context.Context, _ int) error {
		<-block
		return nil
	})
	require.NoError(t, pool.Start(context.Background()))

	// First item occupies the worker, second fills the queue.
	require.NoError(t, pool.Submit(1))
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, pool.Submit(2))

	err := pool.Submit(3)
	assert.ErrorIs(t, err, ErrQueueFull)
	assert.Equal(t, int64(1), pool.Stats().Dropped)

	close(block)
	require.NoError(t, pool.Stop(2*time.Second))
}

func TestFailedWorkCounted(t *testing.T) {
	pool := NewPool[int](1, 10, func(_ context.Context, n int) error {
		if n%2 == 0 {
			return errors.New("boom")
		}
		return nil
	})
	require.NoError(t, pool.Start(context.Background()))

	for i := 0; i < 4; i++ {
		require.NoError(t, pool.Submit(i))
	}
	require.NoError(t, pool.Stop(2*time.Second))

	stats := pool.Stats()
	assert.Equal(t, int64(4), stats.Processed)
	assert.Equal(t, int64(2), stats.Failed)
}

func TestNilProcessorPanics(t *testing.T) {
	assert.Panics(t, func() {
		NewPool[int](1, 1, nil)
	})
}

func TestStopDrainsQueue(t *testing.T) {
	var mu sync.Mutex
	var seen []int

	pool := NewPool[int](1, 100, func(_ context.Context, n int) error {
		mu.Lock()
		seen = append(seen, n)
		mu.Unlock()
		return nil
	})
	require.NoError(t, pool.Start(context.Background()))

	for i := 0; i < 20; i++ {
		require.NoError(t, pool.Submit(i))
	}
	require.NoError(t, pool.Stop(2*time.Second))

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, seen, 20)
}
