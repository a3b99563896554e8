package orchestrator

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	contextwindow "github.com/relaycore/orchestrator/agent/contextwindow"
	"github.com/relaycore/orchestrator/agent/declarative"
	"github.com/relaycore/orchestrator/config"
	"github.com/relaycore/orchestrator/conversation"
	"github.com/relaycore/orchestrator/fallback"
	"github.com/relaycore/orchestrator/internal/metrics"
	"github.com/relaycore/orchestrator/llm"
	"github.com/relaycore/orchestrator/llm/tools"
	"github.com/relaycore/orchestrator/ratelimit"
	"github.com/relaycore/orchestrator/types"
)

// tracer is the OTel tracer Execute starts its top-level span from. It
// resolves against whatever global TracerProvider internal/telemetry.Init
// registered; with telemetry disabled this is a safe no-op tracer.
var tracer = otel.Tracer("github.com/relaycore/orchestrator/orchestrator")

// defaultMaxToolCalls is the fallback Rate cap (spec.md §4.11) when the
// caller wires no config.ToolsConfig into New.
const defaultMaxToolCalls = 20

// Mode selects the safety posture of one Execute call, per spec.md §4.14.
type Mode string

const (
	// ModeNormal runs every safety check, including the Quality Validator.
	ModeNormal Mode = "normal"
	// ModeYolo bypasses the Quality Validator only. Path sandbox and rate
	// limits still apply — yolo is informational, not a privilege
	// escalation.
	ModeYolo Mode = "yolo"
)

// maxToolTurns bounds the tool-call loop per spec.md §4.14 step 6.
const maxToolTurns = 10

// defaultOverallTimeout is the orchestrator-wide deadline spec.md §5 names
// when the caller's context carries none of its own.
const defaultOverallTimeout = 120 * time.Second

// Result carries everything spec.md §4.14 step 8 requires an Execute call
// to return.
type Result struct {
	Content       string
	Provider      string
	Model         string
	LatencyMS     int64
	TokensInput   int
	TokensOutput  int
	FallbackUsed  bool
	ToolCallCount int
	Turns         int
	Mode          Mode
	LoopTruncated bool
}

// AgentSummary is one row of the list_agents() outbound interface
// (spec.md §6).
type AgentSummary struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	Title          string   `json:"title"`
	Icon           string   `json:"icon,omitempty"`
	AvailableTools []string `json:"available_tools,omitempty"`
}

// Orchestrator is the top-level component from spec.md §4.14: it wires the
// Agent Loader, Conversation Store, Context Engineer, Tool Registry &
// Executor, and Fallback Executor into the single execute_agent contract.
type Orchestrator struct {
	agents          *declarative.Service
	conversations   *conversation.Store
	fallbackExec    *fallback.Executor
	toolRegistry    tools.ToolRegistry
	toolExecutor    tools.ToolExecutor
	contextManager  *contextwindow.AgentContextManager
	chains          map[string]config.AgentChain
	providerConfigs map[string]config.ProviderConfig
	gate            *ratelimit.RateGate
	logger          *zap.Logger
	overallTimeout  time.Duration
	maxToolCalls    int
}

// New builds an Orchestrator. chains and providerConfigs must be keyed the
// way config.Config stores them — by agent id and by provider name
// respectively. toolsCfg supplies the tool-call Rate cap (spec.md §4.11); a
// zero MaxCallsPerRun falls back to defaultMaxToolCalls. metricsCollector is
// propagated to the Rate Gate and, when toolExecutor is a
// *tools.DefaultExecutor, to the tool executor too — a nil collector
// disables recording on both.
func New(
	agents *declarative.Service,
	conversations *conversation.Store,
	fallbackExec *fallback.Executor,
	toolRegistry tools.ToolRegistry,
	toolExecutor tools.ToolExecutor,
	contextManager *contextwindow.AgentContextManager,
	chains map[string]config.AgentChain,
	providerConfigs map[string]config.ProviderConfig,
	gate *ratelimit.RateGate,
	toolsCfg config.ToolsConfig,
	metricsCollector *metrics.Collector,
	logger *zap.Logger,
) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	maxToolCalls := toolsCfg.MaxCallsPerRun
	if maxToolCalls <= 0 {
		maxToolCalls = defaultMaxToolCalls
	}

	if gate != nil {
		gate.SetMetricsCollector(metricsCollector)
	}
	if fallbackExec != nil {
		fallbackExec.SetMetricsCollector(metricsCollector)
	}
	if de, ok := toolExecutor.(*tools.DefaultExecutor); ok {
		de.SetMetricsCollector(metricsCollector)
	}

	return &Orchestrator{
		agents:          agents,
		conversations:   conversations,
		fallbackExec:    fallbackExec,
		toolRegistry:    toolRegistry,
		toolExecutor:    toolExecutor,
		contextManager:  contextManager,
		chains:          chains,
		providerConfigs: providerConfigs,
		gate:            gate,
		logger:          logger.With(zap.String("component", "orchestrator")),
		overallTimeout:  defaultOverallTimeout,
		maxToolCalls:    maxToolCalls,
	}
}

// Execute implements execute_agent(user_id, agent_id, task, mode) from
// spec.md §6, following the state machine in spec.md §4.14.
func (o *Orchestrator) Execute(ctx context.Context, userID, agentID, task string, mode Mode) (_ *Result, execErr error) {
	ctx, cancel := context.WithTimeout(ctx, o.overallTimeout)
	defer cancel()

	ctx, span := tracer.Start(ctx, "orchestrator.execute", trace.WithAttributes(
		attribute.String("agent_id", agentID),
		attribute.String("mode", string(mode)),
	))
	defer func() {
		if execErr != nil {
			span.RecordError(execErr)
			span.SetStatus(codes.Error, execErr.Error())
		}
		span.End()
	}()

	start := time.Now()

	// RESOLVE_AGENT
	def, err := o.agents.Get(agentID)
	if err != nil {
		return nil, err
	}

	chain, ok := o.chains[agentID]
	if !ok {
		return nil, types.NewError(types.ErrChainExhausted, fmt.Sprintf("no provider chain configured for agent %q", agentID))
	}

	// BUILD_CONTEXT
	history, err := o.conversations.History(ctx, userID, agentID)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: load history: %w", err)
	}

	systemPrompt := declarative.BuildPrompt(def, declarative.RuntimeConfig{CommunicationLanguage: def.CommunicationLanguage})
	messages := make([]types.Message, 0, len(history)+2)
	messages = append(messages, types.NewSystemMessage(systemPrompt))
	messages = append(messages, history...)
	messages = append(messages, types.NewUserMessage(task))

	if o.contextManager != nil {
		messages, err = o.contextManager.PrepareMessages(ctx, messages, task)
		if err != nil {
			return nil, fmt.Errorf("orchestrator: trim context: %w", err)
		}
	}

	toolSchemas := o.toolRegistry.List()

	result := &Result{Mode: mode}
	var finalContent string
	loopTruncated := true

	// DISPATCH / EXECUTE_TOOLS loop
	for turn := 0; turn < maxToolTurns; turn++ {
		if err := ctx.Err(); err != nil {
			return nil, types.NewFailure(types.KindCancelledByCaller, "orchestrator: context done during dispatch").WithCause(err)
		}

		req := &llm.ChatRequest{
			TraceID:  fmt.Sprintf("%s:%s:%d", userID, agentID, turn),
			UserID:   userID,
			Messages: messages,
			Tools:    toolSchemas,
		}

		opts := fallback.Options{SkipQuality: mode == ModeYolo}
		dispatched, err := o.fallbackExec.ExecuteWithOptions(ctx, chain, req, opts)
		if err != nil {
			return nil, err
		}

		result.Turns = turn + 1
		result.Provider = dispatched.Provider
		result.Model = dispatched.Response.Model
		result.LatencyMS = dispatched.Response.LatencyMS
		result.TokensInput = dispatched.Response.TokensInput
		result.TokensOutput = dispatched.Response.TokensOutput
		result.FallbackUsed = dispatched.Provider != chain.Primary || len(dispatched.Failures) > 0

		if len(dispatched.Response.ToolCalls) == 0 {
			finalContent = dispatched.Response.Content
			loopTruncated = false
			break
		}

		finalContent = dispatched.Response.Content
		messages = append(messages, types.Message{
			Role:      types.RoleAssistant,
			Content:   dispatched.Response.Content,
			ToolCalls: dispatched.Response.ToolCalls,
		})

		toolResults := o.toolExecutor.Execute(ctx, dispatched.Response.ToolCalls)
		result.ToolCallCount += len(toolResults)

		for _, tr := range toolResults {
			content := string(tr.Result)
			if tr.Error != "" {
				content = tr.Error
			}
			messages = append(messages, types.NewToolMessage(tr.ToolCallID, tr.Name, content))
		}

		// Rate cap (spec.md §4.11): at most maxToolCalls tool calls per
		// orchestrator invocation. Hitting it surfaces the last assistant
		// message with loop_truncated=true rather than a hard error, per
		// spec.md §7's ToolLimitExceeded behavior.
		if result.ToolCallCount >= o.maxToolCalls {
			o.logger.Warn("tool call rate cap reached",
				zap.String("agent_id", agentID),
				zap.Int("tool_call_count", result.ToolCallCount),
				zap.Int("max_calls_per_run", o.maxToolCalls),
			)
			break
		}
	}

	result.Content = finalContent
	result.LoopTruncated = loopTruncated

	// PERSIST — tool messages are not stored, only the user task and the
	// final assistant content.
	if err := ctx.Err(); err != nil {
		return nil, types.NewFailure(types.KindCancelledByCaller, "orchestrator: context done before persist").WithCause(err)
	}
	if err := o.conversations.Append(ctx, userID, agentID, types.NewUserMessage(task)); err != nil {
		return nil, fmt.Errorf("orchestrator: persist user task: %w", err)
	}
	if err := o.conversations.Append(ctx, userID, agentID, types.NewAssistantMessage(finalContent)); err != nil {
		return nil, fmt.Errorf("orchestrator: persist assistant reply: %w", err)
	}

	o.logger.Info("agent execution complete",
		zap.String("user_id", userID),
		zap.String("agent_id", agentID),
		zap.String("provider", result.Provider),
		zap.Int("turns", result.Turns),
		zap.Int("tool_calls", result.ToolCallCount),
		zap.Bool("fallback_used", result.FallbackUsed),
		zap.Bool("loop_truncated", result.LoopTruncated),
		zap.Duration("wall_time", time.Since(start)),
	)

	return result, nil
}

// ListAgents implements list_agents() from spec.md §6.
func (o *Orchestrator) ListAgents() []AgentSummary {
	defs := o.agents.List()
	out := make([]AgentSummary, 0, len(defs))
	availableTools := toolNames(o.toolRegistry.List())
	for _, def := range defs {
		out = append(out, AgentSummary{
			ID:             def.ID,
			Name:           def.Name,
			Title:          def.Title,
			Icon:           def.Icon,
			AvailableTools: availableTools,
		})
	}
	return out
}

func toolNames(schemas []llm.ToolSchema) []string {
	if len(schemas) == 0 {
		return nil
	}
	names := make([]string, len(schemas))
	for i, s := range schemas {
		names[i] = s.Name
	}
	return names
}

// ProviderStatus implements provider_status() from spec.md §6: a rate-state
// snapshot for every provider in providerConfigs, whether or not any agent
// chain references it.
func (o *Orchestrator) ProviderStatus(ctx context.Context) ([]ratelimit.Status, error) {
	out := make([]ratelimit.Status, 0, len(o.providerConfigs))
	for name, cfg := range o.providerConfigs {
		limits := ratelimit.Limits{RPM: cfg.RPM, Burst: cfg.Burst, TokensPerMinute: cfg.TokensPerMinute}
		status, err := o.gate.ProviderStatus(ctx, name, limits)
		if err != nil {
			return nil, fmt.Errorf("orchestrator: provider status for %q: %w", name, err)
		}
		out = append(out, status)
	}
	return out, nil
}
