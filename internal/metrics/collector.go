// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector records the orchestration core's own metrics: per-provider LLM
// call outcomes and latency, Rate Gate denials, and tool execution
// outcomes. Registered against an injected prometheus.Registerer — this
// package exposes no HTTP handler of its own.
type Collector struct {
	llmRequestsTotal    *prometheus.CounterVec
	llmRequestDuration  *prometheus.HistogramVec
	rateGateDeniedTotal *prometheus.CounterVec
	toolExecutionsTotal *prometheus.CounterVec

	logger *zap.Logger
}

// NewCollector registers this core's counters/histograms against registerer
// under namespace and returns a Collector ready to record against them.
func NewCollector(registerer prometheus.Registerer, namespace string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	factory := promauto.With(registerer)

	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	c.llmRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_requests_total",
			Help:      "Total number of LLM provider requests dispatched by the Fallback Executor",
		},
		[]string{"provider", "outcome"},
	)

	c.llmRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_request_duration_seconds",
			Help:      "LLM provider request duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"provider"},
	)

	c.rateGateDeniedTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_gate_denied_total",
			Help:      "Total number of Rate Gate admission denials",
		},
		[]string{"provider"},
	)

	c.toolExecutionsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_executions_total",
			Help:      "Total number of tool executions by outcome",
		},
		[]string{"tool", "outcome"},
	)

	c.logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// RecordLLMRequest records one Fallback Executor chain-link attempt.
// outcome is "success" or the types.FailureKind string for a failed call.
func (c *Collector) RecordLLMRequest(provider, outcome string, duration time.Duration) {
	if c == nil {
		return
	}
	c.llmRequestsTotal.WithLabelValues(provider, outcome).Inc()
	c.llmRequestDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

// RecordRateGateDenied records one Rate Gate admission denial for provider.
func (c *Collector) RecordRateGateDenied(provider string) {
	if c == nil {
		return
	}
	c.rateGateDeniedTotal.WithLabelValues(provider).Inc()
}

// RecordToolExecution records one tool call's outcome. outcome is "success"
// or "error".
func (c *Collector) RecordToolExecution(tool, outcome string) {
	if c == nil {
		return
	}
	c.toolExecutionsTotal.WithLabelValues(tool, outcome).Inc()
}
