package metrics

import (
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

// =============================================================================
// 🧪 Collector 测试
// =============================================================================

func TestNewCollector(t *testing.T) {
	registry := prometheus.NewRegistry()
	collector := NewCollector(registry, "test", zap.NewNop())

	assert.NotNil(t, collector)
	assert.NotNil(t, collector.llmRequestsTotal)
	assert.NotNil(t, collector.llmRequestDuration)
	assert.NotNil(t, collector.rateGateDeniedTotal)
	assert.NotNil(t, collector.toolExecutionsTotal)
}

func TestCollector_RecordLLMRequest(t *testing.T) {
	registry := prometheus.NewRegistry()
	collector := NewCollector(registry, "test", zap.NewNop())

	collector.RecordLLMRequest("openai", "success", 500*time.Millisecond)
	collector.RecordLLMRequest("openai", "NETWORK", 1*time.Second)

	count := testutil.CollectAndCount(collector.llmRequestsTotal)
	assert.Equal(t, 2, count)

	durationCount := testutil.CollectAndCount(collector.llmRequestDuration)
	assert.Equal(t, 1, durationCount, "both calls share the provider label, one histogram series")
}

func TestCollector_RecordRateGateDenied(t *testing.T) {
	registry := prometheus.NewRegistry()
	collector := NewCollector(registry, "test", zap.NewNop())

	collector.RecordRateGateDenied("anthropic")

	count := testutil.CollectAndCount(collector.rateGateDeniedTotal)
	assert.Equal(t, 1, count)
}

func TestCollector_RecordToolExecution(t *testing.T) {
	registry := prometheus.NewRegistry()
	collector := NewCollector(registry, "test", zap.NewNop())

	collector.RecordToolExecution("load_file", "success")
	collector.RecordToolExecution("load_file", "error")

	count := testutil.CollectAndCount(collector.toolExecutionsTotal)
	assert.Equal(t, 2, count)
}

func TestCollector_NilCollectorRecordsAreNoOps(t *testing.T) {
	var collector *Collector
	assert.NotPanics(t, func() {
		collector.RecordLLMRequest("openai", "success", time.Millisecond)
		collector.RecordRateGateDenied("openai")
		collector.RecordToolExecution("load_file", "success")
	})
}

func TestCollector_ConcurrentRecording(t *testing.T) {
	registry := prometheus.NewRegistry()
	collector := NewCollector(registry, "test", zap.NewNop())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			collector.RecordLLMRequest("openai", "success", 500*time.Millisecond)
			collector.RecordRateGateDenied("openai")
			collector.RecordToolExecution("load_file", "success")
		}()
	}
	wg.Wait()

	assert.Equal(t, float64(10), testutil.ToFloat64(collector.llmRequestsTotal.WithLabelValues("openai", "success")))
	assert.Equal(t, float64(10), testutil.ToFloat64(collector.rateGateDeniedTotal.WithLabelValues("openai")))
	assert.Equal(t, float64(10), testutil.ToFloat64(collector.toolExecutionsTotal.WithLabelValues("load_file", "success")))
}

func TestCollector_RegistersAgainstInjectedRegisterer(t *testing.T) {
	registry := prometheus.NewRegistry()
	collector := NewCollector(registry, "test", zap.NewNop())
	collector.RecordLLMRequest("openai", "success", time.Millisecond)

	families, err := registry.Gather()
	assert.NoError(t, err)
	assert.NotEmpty(t, families)
}
