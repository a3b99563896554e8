package ratelimit

import (
	"context"
	"time"

	"github.com/relaycore/orchestrator/internal/clockid"
	"github.com/relaycore/orchestrator/kv"
)

// DefaultHorizon is the trailing interval the sliding window enforces,
// per spec §4.3.
const DefaultHorizon = 60 * time.Second

// SlidingWindow is the per-provider request-timestamp window from spec §4.3:
// it forbids clustering more than `limit` requests in any trailing horizon,
// even if the token bucket would momentarily permit a burst.
type SlidingWindow struct {
	store     kv.Store
	clock     clockid.Clock
	keyPrefix string
}

// NewSlidingWindow builds a window backed by store.
func NewSlidingWindow(store kv.Store, clock clockid.Clock) *SlidingWindow {
	if clock == nil {
		clock = clockid.RealClock{}
	}
	return &SlidingWindow{store: store, clock: clock, keyPrefix: "window:"}
}

func (w *SlidingWindow) key(provider string) string {
	return w.keyPrefix + provider
}

// CheckAndAdd implements `check_and_add(provider, limit, horizon) -> ok|denied`
// from spec §4.3. It trims stale entries, then optimistically adds this
// request's member before counting: under concurrent callers, reading the
// count before adding leaves a window where two callers can both observe
// "under limit" and both add, overshooting it. Adding first and pruning our
// own member back out if the post-add count exceeds the limit guarantees the
// window never holds more than `limit` members, at the cost of occasionally
// denying a request that a different interleaving would have admitted —
// acceptable since a denial here is retried through the Rate Gate, not
// surfaced as an error.
func (w *SlidingWindow) CheckAndAdd(ctx context.Context, provider string, limit int, horizon time.Duration) (bool, error) {
	if horizon <= 0 {
		horizon = DefaultHorizon
	}
	now := w.clock.Now()
	cutoff := float64(now.Add(-horizon).UnixNano())
	nowScore := float64(now.UnixNano())
	key := w.key(provider)
	memberID := clockid.NewID()

	if _, err := w.store.ZRemRangeByScore(ctx, key, 0, cutoff); err != nil {
		return false, err
	}

	if err := w.store.ZAdd(ctx, key, kv.Z{Score: nowScore, Member: memberID}); err != nil {
		return false, err
	}
	_ = w.store.Expire(ctx, key, horizon)

	count, err := w.store.ZCount(ctx, key, cutoff, nowScore)
	if err != nil {
		return false, err
	}

	if int(count) <= limit {
		return true, nil
	}

	// Over limit: prune the member we just added. nowScore carries
	// nanosecond precision, so collisions with another concurrent member
	// at the exact same score are astronomically unlikely in practice.
	if _, err := w.store.ZRemRangeByScore(ctx, key, nowScore, nowScore); err != nil {
		return false, err
	}
	return false, nil
}

// Occupancy reports the current member count within horizon, for
// provider_status introspection (spec §6).
func (w *SlidingWindow) Occupancy(ctx context.Context, provider string, horizon time.Duration) (int, error) {
	if horizon <= 0 {
		horizon = DefaultHorizon
	}
	now := w.clock.Now()
	cutoff := float64(now.Add(-horizon).UnixNano())
	count, err := w.store.ZCount(ctx, w.key(provider), cutoff, float64(now.UnixNano()))
	if err != nil {
		return 0, err
	}
	return int(count), nil
}
