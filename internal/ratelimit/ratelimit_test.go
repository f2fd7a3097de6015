package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEverySpacesRequests(t *testing.T) {
	th := Every(30*time.Millisecond, 1)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 4; i++ {
		require.NoError(t, th.Wait(ctx))
	}
	elapsed := time.Since(start)

	// first call is free, the next three wait one interval each
	assert.GreaterOrEqual(t, elapsed, 80*time.Millisecond)
}

func TestEveryZeroIsNoOp(t *testing.T) {
	th := Every(0, 1)
	assert.IsType(t, NoOp{}, th)

	start := time.Now()
	for i := 0; i < 100; i++ {
		require.NoError(t, th.Wait(context.Background()))
	}
	assert.Less(t, time.Since(start), 50*time.Millisecond)
	assert.True(t, th.Allow())
}

func TestWaitHonoursCancellation(t *testing.T) {
	th := Every(time.Hour, 1)
	require.True(t, th.Allow())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	assert.Error(t, th.Wait(ctx))
	assert.False(t, th.Allow())

	cancelled, stop := context.WithCancel(context.Background())
	stop()
	assert.ErrorIs(t, NoOp{}.Wait(cancelled), context.Canceled)
}

func TestLimiterBurst(t *testing.T) {
	l := NewLimiter(1, 3)
	assert.True(t, l.Allow())
	assert.True(t, l.Allow())
	assert.True(t, l.Allow())
	assert.False(t, l.Allow())
	assert.Greater(t, l.Reserve(), time.Duration(0))
}
