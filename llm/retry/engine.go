package retry

import (
	"context"
	"math"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/relaycore/orchestrator/internal/clockid"
	"github.com/relaycore/orchestrator/types"
)

// Policy configures the FailureKind-aware retry policy from spec §4.7. It is
// deliberately distinct from RetryPolicy above: RetryPolicy is the teacher's
// generic error-agnostic retryer, while Policy drives decisions off the
// FailureKind taxonomy every provider adapter reports.
type Policy struct {
	MaxAttempts int           // spec default: 5
	BaseDelay   time.Duration // spec default: 1s
	MaxDelay    time.Duration // spec default: 30s cap
	Factor      float64       // spec default: 2 (exponential)
	Jitter      float64       // spec default: 0.2 (±20%)
}

// DefaultPolicy returns the policy spec §4.7 specifies.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 5,
		BaseDelay:   time.Second,
		MaxDelay:    30 * time.Second,
		Factor:      2.0,
		Jitter:      0.2,
	}
}

// Engine wraps a single provider call with the outcome table from spec
// §4.7: successful calls return immediately; 429s sleep for the
// Retry-After hint if present or exponential backoff otherwise; 5xx and
// network/timeout failures use the same backoff; BadRequest and AuthFailed
// are surfaced without retrying.
type Engine struct {
	policy Policy
	clock  clockid.Clock
	logger *zap.Logger
}

// NewEngine builds an Engine. A zero-value Policy field falls back to
// DefaultPolicy's value for that field, except Jitter, where only a
// negative value falls back; zero disables jitter.
func NewEngine(policy Policy, clock clockid.Clock, logger *zap.Logger) *Engine {
	def := DefaultPolicy()
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = def.MaxAttempts
	}
	if policy.BaseDelay <= 0 {
		policy.BaseDelay = def.BaseDelay
	}
	if policy.MaxDelay <= 0 {
		policy.MaxDelay = def.MaxDelay
	}
	if policy.Factor < 1 {
		policy.Factor = def.Factor
	}
	if policy.Jitter < 0 {
		policy.Jitter = def.Jitter
	}
	if clock == nil {
		clock = clockid.RealClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{policy: policy, clock: clock, logger: logger.With(zap.String("component", "retry.engine"))}
}

// On429 is invoked once per 429 response observed, regardless of whether the
// overall call eventually succeeds — spec §4.7: "Every 429 is reported to
// the Spike Detector regardless of whether the retry eventually succeeds."
type On429 func(ctx context.Context)

// Do executes fn, retrying per the FailureKind-aware policy. fn must return
// an error that is either nil, a *types.Error carrying a FailureKind, or any
// other error (treated as a non-retryable opaque failure).
func Do[T any](ctx context.Context, e *Engine, provider string, on429 On429, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 1; attempt <= e.policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, types.NewFailure(types.KindCancelledByCaller, "retry engine: context done before attempt").WithCause(err)
		}

		result, err := fn(ctx)
		if err == nil {
			if attempt > 1 {
				e.logger.Info("provider call succeeded after retry",
					zap.String("provider", provider),
					zap.Int("attempt", attempt),
				)
			}
			return result, nil
		}
		lastErr = err

		typedErr, _ := err.(*types.Error)
		kind, _ := types.GetFailureKind(err)

		switch kind {
		case types.KindBadRequest, types.KindAuthFailed, types.KindCancelledByCaller, types.KindChainExhausted, types.KindQualityRejected:
			return zero, err

		case types.KindRateLimited:
			if on429 != nil {
				on429(ctx)
			}
			if attempt == e.policy.MaxAttempts {
				return zero, err
			}
			var delay time.Duration
			if typedErr != nil && typedErr.RetryAfter > 0 {
				delay = typedErr.RetryAfter
			} else {
				delay = e.backoffDelay(attempt)
			}
			if !e.sleep(ctx, delay) {
				return zero, types.NewFailure(types.KindCancelledByCaller, "retry engine: context done during 429 backoff").WithCause(ctx.Err())
			}

		case types.KindTimeout, types.KindNetwork, types.KindServerError:
			if attempt == e.policy.MaxAttempts {
				return zero, err
			}
			if !e.sleep(ctx, e.backoffDelay(attempt)) {
				return zero, types.NewFailure(types.KindCancelledByCaller, "retry engine: context done during backoff").WithCause(ctx.Err())
			}

		default:
			// Unclassified error: treat as non-retryable rather than
			// guessing at a retry policy for it.
			return zero, err
		}
	}

	return zero, lastErr
}

// backoffDelay computes exponential backoff with base e.policy.BaseDelay,
// factor e.policy.Factor, capped at e.policy.MaxDelay, with ±jitter.
func (e *Engine) backoffDelay(attempt int) time.Duration {
	delay := float64(e.policy.BaseDelay) * math.Pow(e.policy.Factor, float64(attempt-1))
	if delay > float64(e.policy.MaxDelay) {
		delay = float64(e.policy.MaxDelay)
	}
	if e.policy.Jitter > 0 {
		spread := delay * e.policy.Jitter
		delay += (rand.Float64()*2 - 1) * spread
	}
	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}

// sleep waits for d or until ctx is done, reporting which happened first.
func (e *Engine) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
