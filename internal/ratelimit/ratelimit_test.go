package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiter_Allow(t *testing.T) {
	t.Parallel()

	t.Run("burst then deny", func(t *testing.T) {
		t.Parallel()
		l := New(3, 0)
		for range 3 {
			assert.True(t, l.Allow())
		}
		assert.False(t, l.Allow())
	})

	t.Run("refills over time", func(t *testing.T) {
		t.Parallel()
		l := New(1, 100)
		require.True(t, l.Allow())
		time.Sleep(30 * time.Millisecond)
		assert.True(t, l.Allow())
	})

	t.Run("concurrent callers never exceed burst", func(t *testing.T) {
		t.Parallel()
		l := New(10, 0)
		var allowed atomic.Int32
		var wg sync.WaitGroup
		for range 50 {
			wg.Go(func() {
				if l.Allow() {
					allowed.Add(1)
				}
			})
		}
		wg.Wait()
		assert.Equal(t, int32(10), allowed.Load())
	})
}

func TestLimiter_Wait(t *testing.T) {
	t.Parallel()

	l := New(1, 50)
	require.True(t, l.Allow())
	require.NoError(t, l.Wait(context.Background()))

	empty := New(1, 0)
	empty.Allow()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, empty.Wait(ctx), context.DeadlineExceeded)
}

func TestLimiter_IsFullAndReset(t *testing.T) {
	t.Parallel()
	l := New(2, 0)
	assert.True(t, l.IsFull())
	l.Allow()
	assert.False(t, l.IsFull())
	assert.InDelta(t, 1.0, l.Available(), 0.01)
	l.Reset()
	assert.True(t, l.IsFull())
}
