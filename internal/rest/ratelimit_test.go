package rest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiterAdmitsUpToMax(t *testing.T) {
	l := NewLimiter(3, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, l.Acquire(ctx))
	}
	assert.Equal(t, 3, l.Pending())
}

func TestLimiterBlocksUntilWindowFrees(t *testing.T) {
	l := NewLimiter(2, 100*time.Millisecond)
	ctx := context.Background()

	require.NoError(t, l.Acquire(ctx))
	require.NoError(t, l.Acquire(ctx))

	start := time.Now()
	require.NoError(t, l.Acquire(ctx))
	elapsed := time.Since(start)

	assert.GreaterOrEqual(t, elapsed, 50*time.Millisecond, "third acquire should wait for the window")
}

func TestLimiterNeverExceedsMaxInWindow(t *testing.T) {
	window := 150 * time.Millisecond
	l := NewLimiter(5, window)
	ctx := context.Background()

	var (
		mu     sync.Mutex
		stamps []time.Time
		wg     sync.WaitGroup
	)
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := l.Acquire(ctx); err != nil {
				t.Error(err)
				return
			}
			mu.Lock()
			stamps = append(stamps, time.Now())
			mu.Unlock()
		}()
	}
	wg.Wait()

	// Count admissions inside any trailing window anchored at each stamp.
	for _, anchor := range stamps {
		count := 0
		for _, s := range stamps {
			if !s.Before(anchor.Add(-window)) && !s.After(anchor) {
				count++
			}
		}
		// Allow slack for scheduling jitter between Acquire returning and
		// the stamp being taken.
		assert.LessOrEqual(t, count, 6)
	}
}

func TestLimiterAcquireCancelled(t *testing.T) {
	l := NewLimiter(1, time.Minute)
	require.NoError(t, l.Acquire(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Acquire(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("acquire did not honor cancellation")
	}
}

func TestLimiterSweepEvictsStaleStamps(t *testing.T) {
	l := NewLimiter(10, 20*time.Millisecond)
	ctx := context.Background()
	for i := 0; i < 4; i++ {
		require.NoError(t, l.Acquire(ctx))
	}
	assert.Equal(t, 4, l.Pending())

	time.Sleep(40 * time.Millisecond)
	l.mu.Lock()
	l.evictLocked(l.now())
	l.mu.Unlock()
	assert.Equal(t, 0, l.Pending())
}
