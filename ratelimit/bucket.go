package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/relaycore/orchestrator/internal/clockid"
	"github.com/relaycore/orchestrator/kv"
)

// TokenBucket is the per-provider token bucket described in spec §4.2: it
// refills continuously based on elapsed wall-clock time and RPM, rather than
// on a fixed tick, so it needs no background goroutine.
type TokenBucket struct {
	store     kv.Store
	clock     clockid.Clock
	keyPrefix string
}

// NewTokenBucket builds a bucket backed by store, using clock as its time
// source (clockid.RealClock in production).
func NewTokenBucket(store kv.Store, clock clockid.Clock) *TokenBucket {
	if clock == nil {
		clock = clockid.RealClock{}
	}
	return &TokenBucket{store: store, clock: clock, keyPrefix: "bucket:"}
}

func (b *TokenBucket) key(provider string) string {
	return b.keyPrefix + provider
}

// AcquireResult reports the outcome of a TryAcquire call.
type AcquireResult struct {
	OK       bool
	WaitHint time.Duration
}

// TryAcquire implements `try_acquire(provider) -> {ok, wait_hint}` from
// spec §4.2. burst is the configured burst capacity; rpm is the *effective*
// RPM (already adjusted by the adaptive throttle, per spec §4.4: "the Token
// Bucket... must consult effective_rpm on every acquisition").
func (b *TokenBucket) TryAcquire(ctx context.Context, provider string, burst, rpm int) (AcquireResult, error) {
	if rpm <= 0 {
		return AcquireResult{}, fmt.Errorf("ratelimit: rpm must be positive, got %d", rpm)
	}

	now := b.clock.Now()
	key := b.key(provider)

	tokens, lastRefill, err := b.load(ctx, key, burst, now)
	if err != nil {
		return AcquireResult{}, err
	}

	elapsed := now.Sub(lastRefill).Seconds()
	if elapsed > 0 {
		tokens += elapsed * float64(rpm) / 60.0
		if tokens > float64(burst) {
			tokens = float64(burst)
		}
	}

	if tokens >= 1 {
		tokens -= 1
		if err := b.persist(ctx, key, tokens, now); err != nil {
			return AcquireResult{}, err
		}
		return AcquireResult{OK: true}, nil
	}

	waitSeconds := (1 - tokens) * 60.0 / float64(rpm)
	if err := b.persist(ctx, key, tokens, now); err != nil {
		return AcquireResult{}, err
	}
	return AcquireResult{OK: false, WaitHint: time.Duration(waitSeconds * float64(time.Second))}, nil
}

// AvailableTokens reports the integer tokens currently available, for
// provider_status introspection (spec §6). It does not mutate state.
func (b *TokenBucket) AvailableTokens(ctx context.Context, provider string, burst, rpm int) (int, error) {
	now := b.clock.Now()
	key := b.key(provider)

	tokens, lastRefill, err := b.load(ctx, key, burst, now)
	if err != nil {
		return 0, err
	}
	elapsed := now.Sub(lastRefill).Seconds()
	if elapsed > 0 {
		tokens += elapsed * float64(rpm) / 60.0
		if tokens > float64(burst) {
			tokens = float64(burst)
		}
	}
	return int(tokens), nil
}

func (b *TokenBucket) load(ctx context.Context, key string, burst int, now time.Time) (tokens float64, lastRefill time.Time, err error) {
	tokensStr, err := b.store.HGet(ctx, key, "tokens")
	if err != nil {
		if err == kv.ErrNotFound {
			return float64(burst), now, nil
		}
		return 0, time.Time{}, err
	}
	refillStr, err := b.store.HGet(ctx, key, "last_refill")
	if err != nil {
		if err == kv.ErrNotFound {
			return float64(burst), now, nil
		}
		return 0, time.Time{}, err
	}

	tokens, parseErr := strconv.ParseFloat(tokensStr, 64)
	if parseErr != nil {
		tokens = float64(burst)
	}
	refillUnix, parseErr := strconv.ParseInt(refillStr, 10, 64)
	if parseErr != nil {
		lastRefill = now
	} else {
		lastRefill = time.Unix(0, refillUnix)
	}
	return tokens, lastRefill, nil
}

func (b *TokenBucket) persist(ctx context.Context, key string, tokens float64, at time.Time) error {
	if err := b.store.HSet(ctx, key, "tokens", strconv.FormatFloat(tokens, 'f', -1, 64)); err != nil {
		return err
	}
	return b.store.HSet(ctx, key, "last_refill", strconv.FormatInt(at.UnixNano(), 10))
}
