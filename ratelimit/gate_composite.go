package ratelimit

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/relaycore/orchestrator/internal/clockid"
	"github.com/relaycore/orchestrator/internal/metrics"
	"github.com/relaycore/orchestrator/kv"
	"github.com/relaycore/orchestrator/types"
)

// Limits is the static rate configuration for one provider, independent of
// the adaptive throttle's current effective value.
type Limits struct {
	RPM             int
	Burst           int
	TokensPerMinute int
}

// RateGate is the composite described in spec §4.6. Composition order is a
// contract: Global Gate → Sliding Window → Token Bucket. The global gate
// prevents thundering-herd on the store; the window is the cheapest precise
// check; the bucket is the final admission. A failure at the window or
// bucket step releases the global permit before returning.
type RateGate struct {
	global   *GlobalGate
	window   *SlidingWindow
	bucket   *TokenBucket
	throttle *Throttle
	logger   *zap.Logger
	metrics  *metrics.Collector
}

// SetMetricsCollector attaches the metrics.Collector Acquire reports
// rate_gate_denied_total to. A nil collector (the default) disables
// recording.
func (g *RateGate) SetMetricsCollector(c *metrics.Collector) {
	g.metrics = c
}

// NewRateGate wires the three layers together against a shared store.
func NewRateGate(store kv.Store, clock clockid.Clock, globalCapacity int, logger *zap.Logger) *RateGate {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RateGate{
		global:   NewGlobalGate(globalCapacity),
		window:   NewSlidingWindow(store, clock),
		bucket:   NewTokenBucket(store, clock),
		throttle: NewThrottle(store, clock, logger),
		logger:   logger.With(zap.String("component", "ratelimit.gate")),
	}
}

// Handle represents a successful acquisition across all three layers.
// Release is a no-op for the window and bucket (they are event-based) and
// releases only the global permit, per spec §4.6.
type Handle struct {
	permit *Permit
}

// Release returns the global-gate slot held by this handle.
func (h *Handle) Release() {
	if h == nil {
		return
	}
	h.permit.Release()
}

// Denied is returned when the window or bucket refuses admission after the
// global permit was already acquired (and has been released).
type Denied struct {
	WaitHint time.Duration
	Reason   string
}

// Acquire walks Global Gate → Sliding Window → Token Bucket in order. It
// returns a Handle on success, a *Denied value (no error) when the provider
// itself is rate-limited, or a *types.Error (CancelledByCaller) if ctx was
// cancelled while waiting on the global gate.
func (g *RateGate) Acquire(ctx context.Context, provider string, limits Limits) (*Handle, *Denied, error) {
	permit, err := g.global.Acquire(ctx)
	if err != nil {
		return nil, nil, err
	}

	effectiveRPM, err := g.throttle.EffectiveRPM(ctx, provider, limits.RPM)
	if err != nil {
		permit.Release()
		return nil, nil, types.NewFailure(types.KindNetwork, "rate gate: read effective rpm failed").WithCause(err)
	}

	admitted, err := g.window.CheckAndAdd(ctx, provider, effectiveRPM, DefaultHorizon)
	if err != nil {
		permit.Release()
		return nil, nil, types.NewFailure(types.KindNetwork, "rate gate: sliding window check failed").WithCause(err)
	}
	if !admitted {
		permit.Release()
		g.metrics.RecordRateGateDenied(provider)
		return nil, &Denied{WaitHint: DefaultHorizon, Reason: "sliding window limit reached"}, nil
	}

	result, err := g.bucket.TryAcquire(ctx, provider, limits.Burst, effectiveRPM)
	if err != nil {
		permit.Release()
		return nil, nil, types.NewFailure(types.KindNetwork, "rate gate: token bucket check failed").WithCause(err)
	}
	if !result.OK {
		permit.Release()
		g.metrics.RecordRateGateDenied(provider)
		return nil, &Denied{WaitHint: result.WaitHint, Reason: "token bucket exhausted"}, nil
	}

	return &Handle{permit: permit}, nil, nil
}

// RecordOutcome feeds a completed call's result back into the adaptive
// throttle, per spec §4.4/§4.7 ("every 429 is reported to the Spike
// Detector regardless of whether the retry eventually succeeds").
func (g *RateGate) RecordOutcome(ctx context.Context, provider string, configuredRPM int, rateLimited bool) error {
	if rateLimited {
		return g.throttle.Record429(ctx, provider, configuredRPM)
	}
	return g.throttle.RecordSuccess(ctx, provider, configuredRPM)
}

// Status derives the provider_status introspection row from spec §6.
type Status struct {
	Provider        string
	ConfiguredRPM   int
	EffectiveRPM    int
	BucketTokens    int
	WindowOccupancy int
	Recent429Count  int64
	Healthy         bool
}

// ProviderStatus reports the current rate-state snapshot for one provider.
func (g *RateGate) ProviderStatus(ctx context.Context, provider string, limits Limits) (Status, error) {
	effectiveRPM, err := g.throttle.EffectiveRPM(ctx, provider, limits.RPM)
	if err != nil {
		return Status{}, err
	}
	tokens, err := g.bucket.AvailableTokens(ctx, provider, limits.Burst, effectiveRPM)
	if err != nil {
		return Status{}, err
	}
	occupancy, err := g.window.Occupancy(ctx, provider, DefaultHorizon)
	if err != nil {
		return Status{}, err
	}
	recent429, err := g.throttle.RecentFailureCount(ctx, provider)
	if err != nil {
		return Status{}, err
	}

	return Status{
		Provider:        provider,
		ConfiguredRPM:   limits.RPM,
		EffectiveRPM:    effectiveRPM,
		BucketTokens:    tokens,
		WindowOccupancy: occupancy,
		Recent429Count:  recent429,
		Healthy:         recent429 < spikeThreshold,
	}, nil
}
