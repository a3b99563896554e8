package claude

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/relaycore/orchestrator/internal/tlsutil"
	"github.com/relaycore/orchestrator/llm"
	"github.com/relaycore/orchestrator/llm/middleware"
	"github.com/relaycore/orchestrator/llm/providers"
	"github.com/relaycore/orchestrator/types"
)

// ClaudeProvider implements llm.Provider for Anthropic's Messages API, which
// diverges from the OpenAI-compatible shape in four ways: auth is an
// x-api-key header rather than Bearer, the system prompt travels in its own
// field rather than as a message, message content is an array of typed
// blocks (text/tool_use/tool_result) rather than a plain string, and tool
// results are wrapped as a user message's tool_result block.
type ClaudeProvider struct {
	cfg           providers.ClaudeConfig
	client        *http.Client
	logger        *zap.Logger
	rewriterChain *middleware.RewriterChain
}

// NewClaudeProvider builds a Claude provider. Default timeout is 60s (Claude
// responses can run long); default BaseURL is the public API.
func NewClaudeProvider(cfg providers.ClaudeConfig, logger *zap.Logger) *ClaudeProvider {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.anthropic.com"
	}
	if cfg.AnthropicVersion == "" {
		cfg.AnthropicVersion = "2023-06-01"
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &ClaudeProvider{
		cfg:    cfg,
		client: tlsutil.SecureHTTPClient(timeout),
		logger: logger,
		rewriterChain: middleware.NewRewriterChain(
			middleware.NewEmptyToolsCleaner(),
		),
	}
}

func (p *ClaudeProvider) Name() string { return "anthropic" }

func (p *ClaudeProvider) SupportsNativeFunctionCalling() bool { return true }

func (p *ClaudeProvider) buildHeaders(req *http.Request, apiKey string) {
	req.Header.Set("x-api-key", apiKey)
	req.Header.Set("anthropic-version", p.cfg.AnthropicVersion)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
}

func (p *ClaudeProvider) HealthCheck(ctx context.Context) (*llm.HealthStatus, error) {
	start := time.Now()
	endpoint := fmt.Sprintf("%s/v1/models", strings.TrimRight(p.cfg.BaseURL, "/"))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	p.buildHeaders(httpReq, p.cfg.APIKey)

	resp, err := p.client.Do(httpReq)
	latency := time.Since(start)
	if err != nil {
		return &llm.HealthStatus{Healthy: false, Latency: latency}, providers.NetworkFailure(err, p.Name())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg := readClaudeErrMsg(resp.Body)
		return &llm.HealthStatus{Healthy: false, Latency: latency}, mapClaudeError(resp.StatusCode, msg, p.Name())
	}
	return &llm.HealthStatus{Healthy: true, Latency: latency}, nil
}

func (p *ClaudeProvider) ListModels(ctx context.Context) ([]llm.Model, error) {
	return providers.ListModelsOpenAICompat(
		ctx, p.client, p.cfg.BaseURL, p.cfg.APIKey, p.Name(), "/v1/models", p.buildHeaders,
	)
}

// Claude's message shape diverges from OpenAI's: content is an array of
// typed blocks rather than a plain string.
type claudeMessage struct {
	Role    string          `json:"role"`
	Content []claudeContent `json:"content"`
}

type claudeContent struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   string          `json:"content,omitempty"`
}

type claudeTool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema"`
}

type claudeRequest struct {
	Model       string          `json:"model"`
	Messages    []claudeMessage `json:"messages"`
	System      string          `json:"system,omitempty"`
	MaxTokens   int             `json:"max_tokens"`
	Temperature float32         `json:"temperature,omitempty"`
	TopP        float32         `json:"top_p,omitempty"`
	StopSeq     []string        `json:"stop_sequences,omitempty"`
	Stream      bool            `json:"stream,omitempty"`
	Tools       []claudeTool    `json:"tools,omitempty"`
}

type claudeUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type claudeResponse struct {
	ID           string          `json:"id"`
	Type         string          `json:"type"`
	Role         string          `json:"role"`
	Content      []claudeContent `json:"content"`
	Model        string          `json:"model"`
	StopReason   string          `json:"stop_reason"`
	StopSequence string          `json:"stop_sequence,omitempty"`
	Usage        *claudeUsage    `json:"usage,omitempty"`
}

type claudeStreamEvent struct {
	Type         string          `json:"type"`
	Index        int             `json:"index,omitempty"`
	Delta        *claudeDelta    `json:"delta,omitempty"`
	ContentBlock *claudeContent  `json:"content_block,omitempty"`
	Message      *claudeResponse `json:"message,omitempty"`
	Usage        *claudeUsage    `json:"usage,omitempty"`
}

type claudeDelta struct {
	Type        string `json:"type"`
	Text        string `json:"text,omitempty"`
	PartialJSON string `json:"partial_json,omitempty"`
	StopReason  string `json:"stop_reason,omitempty"`
}

type claudeErrorResp struct {
	Type  string `json:"type"`
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// convertToClaudeMessages extracts the system message into its own field
// (Claude requires this) and rewrites tool-role messages as a user message
// carrying a tool_result content block.
func convertToClaudeMessages(msgs []llm.Message) (string, []claudeMessage) {
	var system string
	var out []claudeMessage

	for _, m := range msgs {
		if m.Role == llm.RoleSystem {
			system = m.Content
			continue
		}

		if m.Role == llm.RoleTool {
			out = append(out, claudeMessage{
				Role: "user",
				Content: []claudeContent{{
					Type:      "tool_result",
					ToolUseID: m.ToolCallID,
					Content:   m.Content,
				}},
			})
			continue
		}

		cm := claudeMessage{Role: string(m.Role)}
		if m.Content != "" {
			cm.Content = append(cm.Content, claudeContent{Type: "text", Text: m.Content})
		}
		for _, tc := range m.ToolCalls {
			cm.Content = append(cm.Content, claudeContent{
				Type: "tool_use", ID: tc.ID, Name: tc.Name, Input: tc.Arguments,
			})
		}
		if len(cm.Content) > 0 {
			out = append(out, cm)
		}
	}
	return system, out
}

func convertToClaudeTools(tools []llm.ToolSchema) []claudeTool {
	if len(tools) == 0 {
		return nil
	}
	out := make([]claudeTool, 0, len(tools))
	for _, t := range tools {
		out = append(out, claudeTool{Name: t.Name, Description: t.Description, InputSchema: t.Parameters})
	}
	return out
}

func chooseClaudeModel(req *llm.ChatRequest, configured string) string {
	if req != nil && req.Model != "" {
		return req.Model
	}
	if configured != "" {
		return configured
	}
	return "claude-sonnet-4-6"
}

func chooseMaxTokens(req *llm.ChatRequest) int {
	if req.MaxTokens > 0 {
		return req.MaxTokens
	}
	return 4096
}

func (p *ClaudeProvider) resolveAPIKey(ctx context.Context) string {
	if c, ok := llm.CredentialOverrideFromContext(ctx); ok {
		if strings.TrimSpace(c.APIKey) != "" {
			return strings.TrimSpace(c.APIKey)
		}
	}
	return p.cfg.APIKey
}

func (p *ClaudeProvider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	rewrittenReq, err := p.rewriterChain.Execute(ctx, req)
	if err != nil {
		return nil, &llm.Error{
			Code: llm.ErrInvalidRequest, Message: fmt.Sprintf("request rewrite failed: %v", err),
			HTTPStatus: http.StatusBadRequest, Provider: p.Name(), Kind: types.KindBadRequest,
		}
	}
	req = rewrittenReq

	apiKey := p.resolveAPIKey(ctx)
	system, messages := convertToClaudeMessages(req.Messages)

	body := claudeRequest{
		Model:       chooseClaudeModel(req, p.cfg.Model),
		Messages:    messages,
		System:      system,
		MaxTokens:   chooseMaxTokens(req),
		Temperature: req.Temperature,
		TopP:        req.TopP,
		StopSeq:     req.Stop,
		Tools:       convertToClaudeTools(req.Tools),
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	endpoint := fmt.Sprintf("%s/v1/messages", strings.TrimRight(p.cfg.BaseURL, "/"))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	p.buildHeaders(httpReq, apiKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, providers.NetworkFailure(err, p.Name())
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		msg := readClaudeErrMsg(resp.Body)
		mapped := mapClaudeError(resp.StatusCode, msg, p.Name())
		if mapped.Kind == types.KindRateLimited {
			mapped = mapped.WithRetryAfter(providers.ParseRetryAfter(resp.Header))
		}
		return nil, mapped
	}

	var claudeResp claudeResponse
	if err := json.NewDecoder(resp.Body).Decode(&claudeResp); err != nil {
		return nil, &llm.Error{
			Code: llm.ErrUpstreamError, Message: err.Error(),
			HTTPStatus: http.StatusBadGateway, Retryable: true, Provider: p.Name(), Kind: types.KindServerError,
		}
	}
	return toClaudeChatResponse(claudeResp, p.Name()), nil
}

func (p *ClaudeProvider) Stream(ctx context.Context, req *llm.ChatRequest) (<-chan llm.StreamChunk, error) {
	rewrittenReq, err := p.rewriterChain.Execute(ctx, req)
	if err != nil {
		return nil, &llm.Error{
			Code: llm.ErrInvalidRequest, Message: fmt.Sprintf("request rewrite failed: %v", err),
			HTTPStatus: http.StatusBadRequest, Provider: p.Name(), Kind: types.KindBadRequest,
		}
	}
	req = rewrittenReq

	apiKey := p.resolveAPIKey(ctx)
	system, messages := convertToClaudeMessages(req.Messages)

	body := claudeRequest{
		Model:     chooseClaudeModel(req, p.cfg.Model),
		Messages:  messages,
		System:    system,
		MaxTokens: chooseMaxTokens(req),
		Stream:    true,
		Tools:     convertToClaudeTools(req.Tools),
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	endpoint := fmt.Sprintf("%s/v1/messages", strings.TrimRight(p.cfg.BaseURL, "/"))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	p.buildHeaders(httpReq, apiKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, providers.NetworkFailure(err, p.Name())
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		msg := readClaudeErrMsg(resp.Body)
		return nil, mapClaudeError(resp.StatusCode, msg, p.Name())
	}

	ch := make(chan llm.StreamChunk)
	go func() {
		defer resp.Body.Close()
		defer close(ch)
		reader := bufio.NewReader(resp.Body)

		var currentID, currentModel string
		toolCallAccumulator := make(map[int]*llm.ToolCall)

		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				if err != io.EOF {
					ch <- llm.StreamChunk{Err: &llm.Error{
						Code: llm.ErrUpstreamError, Message: err.Error(),
						HTTPStatus: http.StatusBadGateway, Retryable: true, Provider: p.Name(), Kind: types.KindNetwork,
					}}
				}
				return
			}

			line = strings.TrimSpace(line)
			if line == "" || strings.HasPrefix(line, "event:") {
				continue
			}
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if data == "[DONE]" {
				return
			}

			var event claudeStreamEvent
			if err := json.Unmarshal([]byte(data), &event); err != nil {
				ch <- llm.StreamChunk{Err: &llm.Error{
					Code: llm.ErrUpstreamError, Message: err.Error(),
					HTTPStatus: http.StatusBadGateway, Retryable: true, Provider: p.Name(), Kind: types.KindServerError,
				}}
				return
			}

			switch event.Type {
			case "message_start":
				if event.Message != nil {
					currentID = event.Message.ID
					currentModel = event.Message.Model
				}

			case "content_block_start":
				if event.ContentBlock != nil && event.ContentBlock.Type == "tool_use" {
					toolCallAccumulator[event.Index] = &llm.ToolCall{
						ID:        event.ContentBlock.ID,
						Name:      event.ContentBlock.Name,
						Arguments: json.RawMessage("{}"),
					}
				}

			case "content_block_delta":
				if event.Delta != nil {
					chunk := llm.StreamChunk{
						ID: currentID, Provider: p.Name(), Model: currentModel, Index: event.Index,
						Delta: llm.Message{Role: llm.RoleAssistant},
					}
					switch event.Delta.Type {
					case "text_delta":
						chunk.Delta.Content = event.Delta.Text
					case "input_json_delta":
						if tc, ok := toolCallAccumulator[event.Index]; ok {
							tc.Arguments = append(tc.Arguments, []byte(event.Delta.PartialJSON)...)
						}
					}
					ch <- chunk
				}

			case "content_block_stop":
				if tc, ok := toolCallAccumulator[event.Index]; ok {
					ch <- llm.StreamChunk{
						ID: currentID, Provider: p.Name(), Model: currentModel, Index: event.Index,
						Delta: llm.Message{Role: llm.RoleAssistant, ToolCalls: []llm.ToolCall{*tc}},
					}
					delete(toolCallAccumulator, event.Index)
				}

			case "message_delta":
				if event.Delta != nil && event.Delta.StopReason != "" {
					ch <- llm.StreamChunk{ID: currentID, Provider: p.Name(), Model: currentModel, FinishReason: event.Delta.StopReason}
				}

			case "message_stop":
				if event.Usage != nil {
					ch <- llm.StreamChunk{
						ID: currentID, Provider: p.Name(), Model: currentModel,
						Usage: &llm.ChatUsage{
							PromptTokens:     event.Usage.InputTokens,
							CompletionTokens: event.Usage.OutputTokens,
							TotalTokens:      event.Usage.InputTokens + event.Usage.OutputTokens,
						},
					}
				}
				return
			}
		}
	}()

	return ch, nil
}

func toClaudeChatResponse(cr claudeResponse, provider string) *llm.ChatResponse {
	msg := llm.Message{Role: llm.RoleAssistant}
	for _, content := range cr.Content {
		switch content.Type {
		case "text":
			msg.Content += content.Text
		case "tool_use":
			msg.ToolCalls = append(msg.ToolCalls, llm.ToolCall{ID: content.ID, Name: content.Name, Arguments: content.Input})
		}
	}

	resp := &llm.ChatResponse{
		ID:       cr.ID,
		Provider: provider,
		Model:    cr.Model,
		Choices:  []llm.ChatChoice{{Index: 0, FinishReason: cr.StopReason, Message: msg}},
	}
	if cr.Usage != nil {
		resp.Usage = llm.ChatUsage{
			PromptTokens:     cr.Usage.InputTokens,
			CompletionTokens: cr.Usage.OutputTokens,
			TotalTokens:      cr.Usage.InputTokens + cr.Usage.OutputTokens,
		}
	}
	return resp
}

func readClaudeErrMsg(body io.Reader) string {
	data, _ := io.ReadAll(body)
	var errResp claudeErrorResp
	if err := json.Unmarshal(data, &errResp); err == nil && errResp.Error.Message != "" {
		return fmt.Sprintf("%s (type: %s)", errResp.Error.Message, errResp.Error.Type)
	}
	return string(data)
}

// mapClaudeError reuses the shared HTTP status mapping — Claude's error
// taxonomy (401/403/429/400/5xx/529 overloaded) matches the common table.
func mapClaudeError(status int, msg string, provider string) *llm.Error {
	return providers.MapHTTPError(status, msg, provider)
}
