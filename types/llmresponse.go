package types

// LLMResponse is the provider-agnostic result of a single completion call,
// the value every provider adapter normalizes its wire response into
// regardless of vendor. Orchestration, logging, and quality validation all
// operate on this shape rather than on any single vendor's response body.
type LLMResponse struct {
	Content      string     `json:"content"`
	TokensInput  int        `json:"tokens_input"`
	TokensOutput int        `json:"tokens_output"`
	LatencyMS    int64      `json:"latency_ms"`
	Model        string     `json:"model"`
	FinishReason string     `json:"finish_reason,omitempty"`
	ToolCalls    []ToolCall `json:"tool_calls,omitempty"`
}
