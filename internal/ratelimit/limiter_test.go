package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiterAllowsWithinWindow(t *testing.T) {
	l := New(Config{MaxPerWindow: 3, WindowMs: 1000})

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, l.Acquire(ctx))
	}
}

func TestLimiterBlocksBeyondWindowUntilDeadline(t *testing.T) {
	l := New(Config{MaxPerWindow: 1, WindowMs: 1000})

	require.NoError(t, l.Acquire(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := l.Acquire(ctx)
	assert.Error(t, err)
}

func TestLimiterBurstCap(t *testing.T) {
	l := New(Config{MaxPerWindow: 100, WindowMs: 60000, BurstMax: 2, BurstWindowMs: 1000})

	ctx := context.Background()
	require.NoError(t, l.Acquire(ctx))
	require.NoError(t, l.Acquire(ctx))

	shortCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	assert.Error(t, l.Acquire(shortCtx))
}

func TestLimiterWaitsThenGrantsAfterWindowSlides(t *testing.T) {
	l := New(Config{MaxPerWindow: 1, WindowMs: 50})

	ctx := context.Background()
	require.NoError(t, l.Acquire(ctx))

	start := time.Now()
	require.NoError(t, l.Acquire(ctx))
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}
