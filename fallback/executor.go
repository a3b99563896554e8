// Package fallback implements the Fallback Executor from spec.md §4.9: given
// an agent's provider chain and a materialized request, it walks the chain in
// strict order, gating and retrying each hop, validating the response
// quality of every success, and escalating or surfacing failures per the
// spec's outcome table.
package fallback

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/relaycore/orchestrator/config"
	"github.com/relaycore/orchestrator/internal/metrics"
	"github.com/relaycore/orchestrator/llm"
	"github.com/relaycore/orchestrator/llm/providers"
	"github.com/relaycore/orchestrator/llm/retry"
	"github.com/relaycore/orchestrator/quality"
	"github.com/relaycore/orchestrator/ratelimit"
	"github.com/relaycore/orchestrator/types"
)

// tracer is the OTel tracer for every span the Fallback Executor starts. It
// resolves against whatever global TracerProvider internal/telemetry.Init
// registered; with telemetry disabled this is a safe no-op tracer.
var tracer = otel.Tracer("github.com/relaycore/orchestrator/fallback")

const bossTier = "boss"

// rateGateRetries bounds how many times Execute re-polls a denied Rate Gate
// for a single chain link before giving up on that link and advancing —
// "may wait" in spec.md §4.9 is not unbounded.
const rateGateRetries = 3

// LinkFailure records one chain hop's outcome when it did not produce the
// accepted response.
type LinkFailure struct {
	Provider string
	Kind     types.FailureKind
	Message  string
}

// Result is a successful Execute outcome.
type Result struct {
	Response *types.LLMResponse
	Provider string
	// Failures lists every chain link that was attempted and did not
	// produce the final response, in the order they were tried.
	Failures []LinkFailure
}

// Executor composes the Rate Gate, Retry Engine, and Quality Validator over
// a fixed set of constructed provider adapters, per spec.md §4.9.
type Executor struct {
	providers map[string]llm.Provider
	configs   map[string]config.ProviderConfig
	gate      *ratelimit.RateGate
	retry     *retry.Engine
	validator *quality.Validator
	logger    *zap.Logger
	metrics   *metrics.Collector
}

// SetMetricsCollector attaches the metrics.Collector call reports
// llm_requests_total/llm_request_duration_seconds to. A nil collector (the
// default) disables recording.
func (e *Executor) SetMetricsCollector(c *metrics.Collector) {
	e.metrics = c
}

// NewExecutor builds an Executor. providers and configs must be keyed by the
// same provider names used in config.AgentChain entries.
func NewExecutor(
	providerMap map[string]llm.Provider,
	configs map[string]config.ProviderConfig,
	gate *ratelimit.RateGate,
	retryEngine *retry.Engine,
	validator *quality.Validator,
	logger *zap.Logger,
) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		providers: providerMap,
		configs:   configs,
		gate:      gate,
		retry:     retryEngine,
		validator: validator,
		logger:    logger.With(zap.String("component", "fallback.executor")),
	}
}

// Execute walks chain.Providers() in order, returning the first accepted
// response, the as-is response of a quality-rejected terminal link, or a
// ChainExhausted error listing every link's failure.
// Options carries per-call behavior flags that do not belong on the
// provider/config/gate wiring fixed at construction time.
type Options struct {
	// SkipQuality bypasses the Quality Validator entirely — the "yolo" mode
	// spec.md §4.14 names, which leaves path sandbox and rate limits
	// enforced but drops response-quality gating.
	SkipQuality bool
}

func (e *Executor) Execute(ctx context.Context, chain config.AgentChain, req *llm.ChatRequest) (*Result, error) {
	return e.ExecuteWithOptions(ctx, chain, req, Options{})
}

// ExecuteWithOptions is Execute with caller-controlled behavior flags.
func (e *Executor) ExecuteWithOptions(ctx context.Context, chain config.AgentChain, req *llm.ChatRequest, opts Options) (*Result, error) {
	ctx, span := tracer.Start(ctx, "fallback.execute", trace.WithAttributes(
		attribute.String("agent.chain_primary", chain.Primary),
		attribute.Bool("skip_quality", opts.SkipQuality),
	))
	defer span.End()

	names := chain.Providers()
	var failures []LinkFailure

	for i, name := range names {
		result, err := e.tryLink(ctx, name, i, names, req, opts, &failures)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		if result != nil {
			span.SetAttributes(attribute.String("provider", result.Provider))
			return result, nil
		}
	}

	err := e.chainExhausted(failures)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return nil, err
}

// tryLink attempts one chain hop. It returns (result, nil) on a usable
// response, (nil, nil) when the hop failed and the loop should advance to
// the next link (failures has been appended to), or (nil, err) when the
// whole chain must abort immediately.
func (e *Executor) tryLink(
	ctx context.Context,
	name string,
	i int,
	names []string,
	req *llm.ChatRequest,
	opts Options,
	failures *[]LinkFailure,
) (*Result, error) {
	ctx, span := tracer.Start(ctx, "fallback.chain_hop", trace.WithAttributes(
		attribute.String("provider", name),
		attribute.Int("chain_index", i),
	))
	defer span.End()

	if err := ctx.Err(); err != nil {
		return nil, types.NewFailure(types.KindCancelledByCaller, "fallback executor: context done before chain link").WithCause(err)
	}

	cfg, hasCfg := e.configs[name]
	provider, hasProvider := e.providers[name]
	if !hasCfg || !hasProvider {
		*failures = append(*failures, LinkFailure{Provider: name, Kind: types.KindNetwork, Message: "provider not registered"})
		span.SetStatus(codes.Error, "provider not registered")
		return nil, nil
	}

	handle, denyFailure, acquireErr := e.acquire(ctx, name, cfg)
	if acquireErr != nil {
		return nil, acquireErr
	}
	if denyFailure != nil {
		*failures = append(*failures, *denyFailure)
		span.SetStatus(codes.Error, denyFailure.Message)
		return nil, nil
	}

	llmResp, callErr := e.call(ctx, provider, name, cfg, req)
	handle.Release()

	if callErr != nil {
		kind, _ := types.GetFailureKind(callErr)
		span.RecordError(callErr)
		span.SetStatus(codes.Error, callErr.Error())

		if kind == types.KindBadRequest || kind == types.KindAuthFailed {
			return nil, callErr
		}
		if kind == types.KindCancelledByCaller {
			return nil, callErr
		}

		_ = e.gate.RecordOutcome(ctx, name, cfg.RPM, kind == types.KindRateLimited)
		*failures = append(*failures, LinkFailure{Provider: name, Kind: kind, Message: callErr.Error()})
		return nil, nil
	}

	_ = e.gate.RecordOutcome(ctx, name, cfg.RPM, false)

	if opts.SkipQuality {
		return &Result{Response: llmResp, Provider: name, Failures: *failures}, nil
	}

	if qualityErr := e.validator.ValidateOrError(llmResp.Content, cfg.Tier); qualityErr != nil {
		if cfg.Tier != bossTier && e.hasBossTierAfter(names, i) {
			*failures = append(*failures, LinkFailure{Provider: name, Kind: types.KindQualityRejected, Message: qualityErr.Error()})
			span.SetStatus(codes.Error, qualityErr.Error())
			return nil, nil
		}
		// No boss tier left to escalate to: policy is to return the
		// response as-is rather than exhaust the chain.
		return &Result{Response: llmResp, Provider: name, Failures: *failures}, nil
	}

	return &Result{Response: llmResp, Provider: name, Failures: *failures}, nil
}

// acquire polls the Rate Gate for one chain link, waiting out the gate's
// WaitHint up to rateGateRetries times before giving up on this link.
func (e *Executor) acquire(ctx context.Context, name string, cfg config.ProviderConfig) (*ratelimit.Handle, *LinkFailure, error) {
	limits := ratelimit.Limits{RPM: cfg.RPM, Burst: cfg.Burst, TokensPerMinute: cfg.TokensPerMinute}

	for attempt := 0; attempt < rateGateRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, nil, types.NewFailure(types.KindCancelledByCaller, "fallback executor: context done while acquiring rate gate").WithCause(err)
		}

		handle, denied, err := e.gate.Acquire(ctx, name, limits)
		if err != nil {
			return nil, nil, err
		}
		if denied == nil {
			return handle, nil, nil
		}

		if attempt == rateGateRetries-1 {
			return nil, &LinkFailure{Provider: name, Kind: types.KindRateLimited, Message: denied.Reason}, nil
		}
		if !sleepCtx(ctx, denied.WaitHint) {
			return nil, nil, types.NewFailure(types.KindCancelledByCaller, "fallback executor: context done while waiting on rate gate").WithCause(ctx.Err())
		}
	}

	return nil, &LinkFailure{Provider: name, Kind: types.KindRateLimited, Message: "rate gate denied admission"}, nil
}

// call invokes the provider through the Retry Engine, normalizing the wire
// response into types.LLMResponse on success.
func (e *Executor) call(ctx context.Context, provider llm.Provider, name string, cfg config.ProviderConfig, req *llm.ChatRequest) (*types.LLMResponse, error) {
	chainReq := *req
	if chainReq.Model == "" {
		chainReq.Model = cfg.Model
	}

	on429 := func(ctx context.Context) {
		_ = e.gate.RecordOutcome(ctx, name, cfg.RPM, true)
	}

	return retry.Do(ctx, e.retry, name, on429, func(ctx context.Context) (*types.LLMResponse, error) {
		start := time.Now()
		chatResp, err := provider.Completion(ctx, &chainReq)
		duration := time.Since(start)
		if err != nil {
			outcome := "error"
			if kind, ok := types.GetFailureKind(err); ok {
				outcome = string(kind)
			}
			e.metrics.RecordLLMRequest(name, outcome, duration)
			if _, ok := types.GetFailureKind(err); ok {
				return nil, err
			}
			return nil, providers.NetworkFailure(err, name)
		}
		e.metrics.RecordLLMRequest(name, "success", duration)
		return providers.ToLLMResponse(chatResp, duration), nil
	})
}

// hasBossTierAfter reports whether a boss-tier provider appears later in the
// chain than index i.
func (e *Executor) hasBossTierAfter(names []string, i int) bool {
	for _, name := range names[i+1:] {
		if cfg, ok := e.configs[name]; ok && cfg.Tier == bossTier {
			return true
		}
	}
	return false
}

func (e *Executor) chainExhausted(failures []LinkFailure) error {
	parts := make([]string, 0, len(failures))
	attempts := make([]types.ProviderAttempt, 0, len(failures))
	for _, f := range failures {
		parts = append(parts, fmt.Sprintf("%s: %s (%s)", f.Provider, f.Message, f.Kind))
		attempts = append(attempts, types.ProviderAttempt{Provider: f.Provider, Kind: f.Kind, Message: f.Message})
	}
	msg := "fallback chain exhausted"
	if len(parts) > 0 {
		msg = fmt.Sprintf("%s: %s", msg, strings.Join(parts, "; "))
	}
	return types.NewFailure(types.KindChainExhausted, msg).WithAttempts(attempts)
}

// sleepCtx waits for d or until ctx is done, reporting which happened first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
