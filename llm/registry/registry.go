// Package registry builds the map[string]llm.Provider every chain-walking
// component (the Fallback Executor, provider_status introspection) consumes,
// from config.Config's provider table. It is the one place in the module
// that knows how a config.ProviderConfig becomes a concrete vendor adapter.
package registry

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/relaycore/orchestrator/config"
	"github.com/relaycore/orchestrator/llm"
	"github.com/relaycore/orchestrator/llm/providers"
	"github.com/relaycore/orchestrator/llm/providers/anthropic"
	"github.com/relaycore/orchestrator/llm/providers/deepseek"
	"github.com/relaycore/orchestrator/llm/providers/mistral"
	"github.com/relaycore/orchestrator/llm/providers/openai"
	"github.com/relaycore/orchestrator/llm/providers/openaicompat"
	"github.com/relaycore/orchestrator/llm/providers/stub"
)

// Build constructs one llm.Provider per entry in cfgs, keyed by the same map
// key the caller used (the instance alias referenced from config.AgentChain
// entries, e.g. "claude-worker"). Disabled providers are skipped entirely —
// a chain that still references one fails at Validate() time, not here.
// cfg.Name selects the vendor adapter: "anthropic" | "openai" | "deepseek" |
// "mistral" | "openaicompat" | "stub".
func Build(cfgs map[string]config.ProviderConfig, logger *zap.Logger) (map[string]llm.Provider, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	out := make(map[string]llm.Provider, len(cfgs))
	for key, cfg := range cfgs {
		if !cfg.Enabled {
			continue
		}
		provider, err := build(key, cfg, logger)
		if err != nil {
			return nil, fmt.Errorf("registry: building provider %q: %w", key, err)
		}
		out[key] = provider
	}
	return out, nil
}

func build(key string, cfg config.ProviderConfig, logger *zap.Logger) (llm.Provider, error) {
	base := providers.BaseProviderConfig{
		APIKey:  cfg.APIKey(),
		BaseURL: cfg.BaseURL,
		Model:   cfg.Model,
		Timeout: cfg.Timeout,
	}

	switch cfg.Name {
	case "anthropic", "claude":
		return anthropic.NewClaudeProvider(providers.ClaudeConfig{BaseProviderConfig: base}, logger), nil

	case "openai":
		return openai.NewOpenAIProvider(providers.OpenAIConfig{BaseProviderConfig: base}, logger), nil

	case "deepseek":
		return deepseek.NewDeepSeekProvider(providers.DeepSeekConfig{BaseProviderConfig: base}, logger), nil

	case "mistral":
		return mistral.NewMistralProvider(providers.MistralConfig{BaseProviderConfig: base}, logger), nil

	case "openaicompat", "openai-compat":
		if cfg.BaseURL == "" {
			return nil, fmt.Errorf("provider %q: openaicompat requires base_url", key)
		}
		return openaicompat.New(openaicompat.Config{
			ProviderName: key,
			APIKey:       base.APIKey,
			BaseURL:      base.BaseURL,
			DefaultModel: base.Model,
			Timeout:      base.Timeout,
		}, logger), nil

	case "stub":
		return stub.New(stub.Config{Name: key}), nil

	default:
		return nil, fmt.Errorf("provider %q: unknown vendor %q", key, cfg.Name)
	}
}
