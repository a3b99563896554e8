package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaycore/orchestrator/internal/clockid"
	"github.com/relaycore/orchestrator/kv"
)

func TestSlidingWindow_DeniesAfterLimitWithinHorizon(t *testing.T) {
	ctx := context.Background()
	clock := clockid.NewFakeClock(time.Unix(10_000, 0))
	window := NewSlidingWindow(kv.NewMemoryStore(), clock)

	for i := 0; i < 3; i++ {
		ok, err := window.CheckAndAdd(ctx, "deepseek", 3, DefaultHorizon)
		require.NoError(t, err)
		assert.Truef(t, ok, "request %d should be admitted under the limit", i)
	}

	ok, err := window.CheckAndAdd(ctx, "deepseek", 3, DefaultHorizon)
	require.NoError(t, err)
	assert.False(t, ok, "fourth request within the horizon should be denied")
}

func TestSlidingWindow_AdmitsAgainAfterHorizonElapses(t *testing.T) {
	ctx := context.Background()
	clock := clockid.NewFakeClock(time.Unix(20_000, 0))
	window := NewSlidingWindow(kv.NewMemoryStore(), clock)

	for i := 0; i < 2; i++ {
		_, err := window.CheckAndAdd(ctx, "openai", 2, DefaultHorizon)
		require.NoError(t, err)
	}
	ok, err := window.CheckAndAdd(ctx, "openai", 2, DefaultHorizon)
	require.NoError(t, err)
	require.False(t, ok)

	clock.Advance(DefaultHorizon + time.Second)
	ok, err = window.CheckAndAdd(ctx, "openai", 2, DefaultHorizon)
	require.NoError(t, err)
	assert.True(t, ok, "entries older than the horizon must be garbage-collected before the count check")
}

func TestSlidingWindow_Occupancy(t *testing.T) {
	ctx := context.Background()
	clock := clockid.NewFakeClock(time.Unix(30_000, 0))
	window := NewSlidingWindow(kv.NewMemoryStore(), clock)

	for i := 0; i < 3; i++ {
		_, err := window.CheckAndAdd(ctx, "anthropic", 10, DefaultHorizon)
		require.NoError(t, err)
	}

	occ, err := window.Occupancy(ctx, "anthropic", DefaultHorizon)
	require.NoError(t, err)
	assert.Equal(t, 3, occ)
}
