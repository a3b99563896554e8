package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGlobalGate_NeverExceedsCapacity(t *testing.T) {
	gate := NewGlobalGate(2)
	ctx := context.Background()

	p1, err := gate.Acquire(ctx)
	require.NoError(t, err)
	p2, err := gate.Acquire(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, gate.InUse())

	acquired := make(chan struct{})
	go func() {
		p3, err := gate.Acquire(ctx)
		require.NoError(t, err)
		close(acquired)
		p3.Release()
	}()

	select {
	case <-acquired:
		t.Fatal("third acquire must block while capacity is exhausted")
	case <-time.After(50 * time.Millisecond):
	}

	p1.Release()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("third acquire should unblock once a permit is released")
	}
	p2.Release()
}

func TestGlobalGate_HonorsCancellation(t *testing.T) {
	gate := NewGlobalGate(1)
	ctx := context.Background()

	p, err := gate.Acquire(ctx)
	require.NoError(t, err)
	defer p.Release()

	cancelCtx, cancel := context.WithTimeout(ctx, 30*time.Millisecond)
	defer cancel()

	_, err = gate.Acquire(cancelCtx)
	require.Error(t, err)
	assert.Equal(t, 1, gate.InUse(), "a cancelled acquire must not leak a permit")
}

func TestGlobalGate_FIFOOrdering(t *testing.T) {
	gate := NewGlobalGate(1)
	ctx := context.Background()

	p, err := gate.Acquire(ctx)
	require.NoError(t, err)

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup

	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			time.Sleep(time.Duration(i) * 10 * time.Millisecond)
			pi, err := gate.Acquire(ctx)
			require.NoError(t, err)
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			pi.Release()
		}(i)
		time.Sleep(5 * time.Millisecond) // stagger enqueue order deterministically
	}

	p.Release()
	wg.Wait()

	assert.Equal(t, []int{0, 1, 2}, order, "waiters should be admitted in arrival order")
}
