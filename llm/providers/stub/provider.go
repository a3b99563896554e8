// Package stub provides a deterministic, network-free llm.Provider
// implementation for local development, integration tests, and demos where
// wiring a real vendor key is impractical. It never calls out over HTTP.
package stub

import (
	"context"
	"fmt"
	"time"

	"github.com/relaycore/orchestrator/llm"
	"github.com/relaycore/orchestrator/types"
)

// Config controls the stub's canned behavior.
type Config struct {
	// Name identifies this stub instance as a provider (e.g. "stub-a"),
	// letting a fallback chain exercise more than one deterministic hop.
	Name string

	// Latency is injected into every call via a context-aware sleep, so
	// callers can exercise timeout/cancellation paths deterministically.
	Latency time.Duration

	// FailEveryNth, when > 0, makes every Nth call (1-indexed) return
	// RateLimited instead of a canned response — useful for exercising
	// retry/throttle behavior without a real provider's variance.
	FailEveryNth int
}

// Provider is a deterministic llm.Provider: given the same request (same
// message count and content), it always produces the same response shape.
type Provider struct {
	cfg   Config
	calls int
}

// New builds a stub provider.
func New(cfg Config) *Provider {
	if cfg.Name == "" {
		cfg.Name = "stub"
	}
	return &Provider{cfg: cfg}
}

func (p *Provider) Name() string { return p.cfg.Name }

func (p *Provider) SupportsNativeFunctionCalling() bool { return true }

func (p *Provider) HealthCheck(ctx context.Context) (*llm.HealthStatus, error) {
	return &llm.HealthStatus{Healthy: true, Latency: 0}, nil
}

func (p *Provider) ListModels(ctx context.Context) ([]llm.Model, error) {
	return []llm.Model{{ID: "stub-model", Object: "model", OwnedBy: p.cfg.Name}}, nil
}

// Completion echoes a deterministic reply derived from the last user
// message, so test assertions can predict content without recording
// fixtures. Usage reports the message count as prompt tokens and the byte
// length of the reply as completion tokens.
func (p *Provider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	p.calls++
	if p.cfg.FailEveryNth > 0 && p.calls%p.cfg.FailEveryNth == 0 {
		return nil, &llm.Error{
			Code: llm.ErrRateLimited, Message: "stub: synthetic rate limit",
			HTTPStatus: 429, Retryable: true, Provider: p.Name(), Kind: types.KindRateLimited,
		}
	}

	if p.cfg.Latency > 0 {
		timer := time.NewTimer(p.cfg.Latency)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return nil, &llm.Error{
				Code: llm.ErrInternalError, Message: "stub: context cancelled during latency",
				Provider: p.Name(), Kind: types.KindCancelledByCaller,
			}
		}
	}

	lastUser := lastUserContent(req.Messages)
	content := fmt.Sprintf("stub reply to: %s", lastUser)

	return &llm.ChatResponse{
		ID:       fmt.Sprintf("stub-%d", p.calls),
		Provider: p.Name(),
		Model:    chooseModel(req),
		Choices: []llm.ChatChoice{{
			Index:        0,
			FinishReason: "stop",
			Message:      types.NewAssistantMessage(content),
		}},
		Usage: llm.ChatUsage{
			PromptTokens:     len(req.Messages),
			CompletionTokens: len(content),
			TotalTokens:      len(req.Messages) + len(content),
		},
		CreatedAt: time.Now(),
	}, nil
}

// Stream replays Completion's reply as one content chunk followed by a final
// chunk carrying FinishReason "stop" and the usage.
func (p *Provider) Stream(ctx context.Context, req *llm.ChatRequest) (<-chan llm.StreamChunk, error) {
	resp, err := p.Completion(ctx, req)
	if err != nil {
		return nil, err
	}

	ch := make(chan llm.StreamChunk)
	go func() {
		defer close(ch)
		content := resp.Choices[0].Message.Content
		select {
		case ch <- llm.StreamChunk{ID: resp.ID, Provider: p.Name(), Model: resp.Model, Delta: types.NewAssistantMessage(content)}:
		case <-ctx.Done():
			return
		}
		select {
		case ch <- llm.StreamChunk{ID: resp.ID, Provider: p.Name(), Model: resp.Model, FinishReason: "stop", Usage: &resp.Usage}:
		case <-ctx.Done():
		}
	}()
	return ch, nil
}

func lastUserContent(msgs []llm.Message) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == llm.RoleUser {
			return msgs[i].Content
		}
	}
	return ""
}

func chooseModel(req *llm.ChatRequest) string {
	if req.Model != "" {
		return req.Model
	}
	return "stub-model"
}
