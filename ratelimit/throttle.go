package ratelimit

import (
	"context"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/relaycore/orchestrator/internal/clockid"
	"github.com/relaycore/orchestrator/kv"
)

const (
	spikeHorizon       = 60 * time.Second
	spikeThreshold     = 3
	throttleDropFactor = 0.8
	throttleFloorRatio = 0.5
	restoreStep        = 0.1
	restoreInterval    = 60 * time.Second
)

// Throttle implements the spike detector and adaptive throttle from spec
// §4.4: it tracks 429 timestamps per provider, drops the effective RPM on a
// spike, and restores it gradually once the provider stops erroring.
type Throttle struct {
	store  kv.Store
	clock  clockid.Clock
	logger *zap.Logger
}

// NewThrottle builds a Throttle backed by store.
func NewThrottle(store kv.Store, clock clockid.Clock, logger *zap.Logger) *Throttle {
	if clock == nil {
		clock = clockid.RealClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Throttle{store: store, clock: clock, logger: logger.With(zap.String("component", "ratelimit.throttle"))}
}

func spikeKey(provider string) string    { return "spike:" + provider }
func throttleKey(provider string) string { return "throttle_state:" + provider }
func effectiveRPMKey(provider string) string {
	return "effective_rpm:" + provider
}

// EffectiveRPM implements `effective_rpm(provider) -> int` from spec §4.4.
// configuredRPM is the provider's static configured RPM, used as both the
// default value and the ceiling.
func (t *Throttle) EffectiveRPM(ctx context.Context, provider string, configuredRPM int) (int, error) {
	val, err := t.store.Get(ctx, effectiveRPMKey(provider))
	if err != nil {
		if err == kv.ErrNotFound {
			return configuredRPM, nil
		}
		return 0, err
	}
	n, parseErr := strconv.Atoi(val)
	if parseErr != nil || n <= 0 {
		return configuredRPM, nil
	}
	if n > configuredRPM {
		return configuredRPM, nil
	}
	return n, nil
}

func (t *Throttle) setEffectiveRPM(ctx context.Context, provider string, rpm int) error {
	return t.store.Set(ctx, effectiveRPMKey(provider), strconv.Itoa(rpm))
}

// RecordSuccess implements `record_success(provider)` from spec §4.4:
// "every successful minute of operation (i.e. no new 429 in the last 60s
// window) increases effective RPM by 10% of configured RPM, capped at 100%."
// Restoration is monotonic per observation interval — it never lowers the
// current cap, and a recent 429 suppresses any increase this call.
func (t *Throttle) RecordSuccess(ctx context.Context, provider string, configuredRPM int) error {
	now := t.clock.Now()

	spiking, err := t.isSpiking(ctx, provider, now)
	if err != nil {
		return err
	}
	if spiking {
		return nil
	}

	current, err := t.EffectiveRPM(ctx, provider, configuredRPM)
	if err != nil {
		return err
	}
	if current >= configuredRPM {
		return nil
	}

	lastRestoreStr, err := t.store.HGet(ctx, throttleKey(provider), "last_restore")
	var lastRestore time.Time
	if err != nil {
		if err != kv.ErrNotFound {
			return err
		}
	} else if unix, parseErr := strconv.ParseInt(lastRestoreStr, 10, 64); parseErr == nil {
		lastRestore = time.Unix(0, unix)
	}

	if !lastRestore.IsZero() && now.Sub(lastRestore) < restoreInterval {
		return nil
	}

	newRPM := current + int(float64(configuredRPM)*restoreStep)
	if newRPM < current+1 {
		newRPM = current + 1
	}
	if newRPM > configuredRPM {
		newRPM = configuredRPM
	}

	if err := t.setEffectiveRPM(ctx, provider, newRPM); err != nil {
		return err
	}
	if err := t.store.HSet(ctx, throttleKey(provider), "last_restore", strconv.FormatInt(now.UnixNano(), 10)); err != nil {
		return err
	}

	t.logger.Info("effective rpm restored",
		zap.String("provider", provider),
		zap.Int("effective_rpm", newRPM),
		zap.Int("configured_rpm", configuredRPM),
	)
	return nil
}

// Record429 implements `record_429(provider)` from spec §4.4: it records
// the 429 in the spike tracker and, on transition into "spiking" (≥3 in the
// trailing 60s), drops effective RPM by 20%, floored at 50% of configured.
func (t *Throttle) Record429(ctx context.Context, provider string, configuredRPM int) error {
	now := t.clock.Now()
	key := spikeKey(provider)
	cutoff := float64(now.Add(-spikeHorizon).UnixNano())

	if _, err := t.store.ZRemRangeByScore(ctx, key, 0, cutoff); err != nil {
		return err
	}
	if err := t.store.ZAdd(ctx, key, kv.Z{Score: float64(now.UnixNano()), Member: clockid.NewID()}); err != nil {
		return err
	}
	_ = t.store.Expire(ctx, key, spikeHorizon)

	count, err := t.store.ZCount(ctx, key, cutoff, float64(now.UnixNano()))
	if err != nil {
		return err
	}

	// Resetting the restoration clock here means a 429 during an active
	// restoration delays (but does not undo) the next increase.
	if err := t.store.HSet(ctx, throttleKey(provider), "last_restore", strconv.FormatInt(now.UnixNano(), 10)); err != nil {
		return err
	}

	// Only the 429 that brings the count up to the threshold is the
	// transition into spiking; later 429s while still spiking do not drop
	// the rate again.
	if count != spikeThreshold {
		return nil
	}

	current, err := t.EffectiveRPM(ctx, provider, configuredRPM)
	if err != nil {
		return err
	}

	floor := int(float64(configuredRPM) * throttleFloorRatio)
	dropped := int(float64(current) * throttleDropFactor)
	if dropped < floor {
		dropped = floor
	}
	if dropped >= current {
		return nil
	}

	if err := t.setEffectiveRPM(ctx, provider, dropped); err != nil {
		return err
	}

	t.logger.Warn("provider spiking, effective rpm dropped",
		zap.String("provider", provider),
		zap.Int("effective_rpm", dropped),
		zap.Int("configured_rpm", configuredRPM),
		zap.Int64("recent_429_count", count),
	)
	return nil
}

// RecentFailureCount reports the 429 count within the trailing horizon, for
// provider_status introspection (spec §6).
func (t *Throttle) RecentFailureCount(ctx context.Context, provider string) (int64, error) {
	now := t.clock.Now()
	cutoff := float64(now.Add(-spikeHorizon).UnixNano())
	return t.store.ZCount(ctx, spikeKey(provider), cutoff, float64(now.UnixNano()))
}

func (t *Throttle) isSpiking(ctx context.Context, provider string, now time.Time) (bool, error) {
	cutoff := float64(now.Add(-spikeHorizon).UnixNano())
	count, err := t.store.ZCount(ctx, spikeKey(provider), cutoff, float64(now.UnixNano()))
	if err != nil {
		return false, err
	}
	return count >= spikeThreshold, nil
}
