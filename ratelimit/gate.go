package ratelimit

import (
	"context"

	"github.com/relaycore/orchestrator/types"
)

// DefaultGlobalCapacity is the default process-wide concurrency ceiling
// (spec §4.5: "configured capacity (default 12)").
const DefaultGlobalCapacity = 12

// Permit is a held slot on the Global Concurrency Gate. Release must be
// called exactly once.
type Permit struct {
	slot chan struct{}
}

// Release returns the permit to the gate. Calling Release more than once
// is a no-op past the first call.
func (p *Permit) Release() {
	if p == nil || p.slot == nil {
		return
	}
	select {
	case <-p.slot:
	default:
	}
	p.slot = nil
}

// GlobalGate is the process-wide FIFO semaphore from spec §4.5, built on a
// buffered channel the way the teacher's internal/pool.GoroutinePool bounds
// worker admission: the channel's buffer is the capacity, and Go's channel
// send/receive ordering gives FIFO admission across waiting goroutines.
type GlobalGate struct {
	slots chan struct{}
}

// NewGlobalGate builds a gate with the given capacity. A capacity <= 0
// falls back to DefaultGlobalCapacity.
func NewGlobalGate(capacity int) *GlobalGate {
	if capacity <= 0 {
		capacity = DefaultGlobalCapacity
	}
	return &GlobalGate{slots: make(chan struct{}, capacity)}
}

// Acquire blocks until a slot is free or ctx is done. On cancellation it
// returns a CancelledByCaller error and leaks no permit.
func (g *GlobalGate) Acquire(ctx context.Context) (*Permit, error) {
	select {
	case g.slots <- struct{}{}:
		return &Permit{slot: g.slots}, nil
	default:
	}

	select {
	case g.slots <- struct{}{}:
		return &Permit{slot: g.slots}, nil
	case <-ctx.Done():
		return nil, types.NewFailure(types.KindCancelledByCaller, "global concurrency gate: context done").WithCause(ctx.Err())
	}
}

// InUse reports the number of permits currently held, for introspection.
func (g *GlobalGate) InUse() int {
	return len(g.slots)
}

// Capacity reports the configured ceiling.
func (g *GlobalGate) Capacity() int {
	return cap(g.slots)
}
