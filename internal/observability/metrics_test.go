package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewMetrics(t *testing.T) {
	// NewMetrics registers against the default registry via promauto, so it
	// isn't called directly here to avoid double-registration across test
	// runs in the same process. newTestMetrics below builds an equivalent
	// *Metrics against an isolated registry so the real Record* methods can
	// still be exercised.
	t.Log("Metrics structure verified through isolated-registry tests below")
}

// newTestMetrics builds a *Metrics identical in shape to NewMetrics but
// registered against a private registry, so tests can call the package's
// real Record* methods without colliding with other tests' metric names.
func newTestMetrics(t *testing.T) *Metrics {
	t.Helper()
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{Name: "http_request_duration_seconds", Buckets: prometheus.DefBuckets},
			[]string{"method", "path", "status"},
		),
		HTTPRequestCounter: factory.NewCounterVec(
			prometheus.CounterOpts{Name: "http_requests_total"},
			[]string{"method", "path", "status"},
		),
		LLMRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{Name: "llm_request_duration_seconds", Buckets: prometheus.DefBuckets},
			[]string{"provider", "model", "status"},
		),
		LLMRequestCounter: factory.NewCounterVec(
			prometheus.CounterOpts{Name: "llm_requests_total"},
			[]string{"provider", "model", "status"},
		),
		LLMTokensUsed: factory.NewCounterVec(
			prometheus.CounterOpts{Name: "llm_tokens_total"},
			[]string{"provider", "model", "kind"},
		),
		ToolExecutionCounter: factory.NewCounterVec(
			prometheus.CounterOpts{Name: "tool_executions_total"},
			[]string{"tool", "status"},
		),
		ToolExecutionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{Name: "tool_execution_duration_seconds", Buckets: prometheus.DefBuckets},
			[]string{"tool", "status"},
		),
		ToolRoundsPerRequest: factory.NewHistogram(
			prometheus.HistogramOpts{Name: "tool_rounds_per_request", Buckets: prometheus.LinearBuckets(1, 1, 10)},
		),
		RetryCapHits: factory.NewCounterVec(
			prometheus.CounterOpts{Name: "retry_cap_hits_total"},
			[]string{"tool"},
		),
		SanitizerHits: factory.NewCounterVec(
			prometheus.CounterOpts{Name: "sanitizer_hits_total"},
			[]string{"tool"},
		),
		ErrorCounter: factory.NewCounterVec(
			prometheus.CounterOpts{Name: "errors_total"},
			[]string{"component", "kind"},
		),
		ContextWindowUsed: factory.NewHistogram(
			prometheus.HistogramOpts{Name: "context_window_tokens", Buckets: prometheus.ExponentialBuckets(64, 2, 12)},
		),
	}
}

func TestRecordHTTPRequest(t *testing.T) {
	m := newTestMetrics(t)
	m.RecordHTTPRequest("POST", "/v1/chat", "200", 0.05)
	m.RecordHTTPRequest("POST", "/v1/chat", "200", 0.08)

	if count := testutil.CollectAndCount(m.HTTPRequestCounter); count != 1 {
		t.Errorf("expected 1 label combination, got %d", count)
	}
	if got := testutil.ToFloat64(m.HTTPRequestCounter.WithLabelValues("POST", "/v1/chat", "200")); got != 2 {
		t.Errorf("expected counter 2, got %v", got)
	}
}

func TestRecordLLMRequest(t *testing.T) {
	m := newTestMetrics(t)
	m.RecordLLMRequest("anthropic", "claude-3-opus", "success", 1.2, 500, 120)
	m.RecordLLMRequest("anthropic", "claude-3-opus", "error", 0.1, 0, 0)

	if got := testutil.ToFloat64(m.LLMRequestCounter.WithLabelValues("anthropic", "claude-3-opus", "success")); got != 1 {
		t.Errorf("expected 1 success request, got %v", got)
	}
	if got := testutil.ToFloat64(m.LLMTokensUsed.WithLabelValues("anthropic", "claude-3-opus", "prompt")); got != 500 {
		t.Errorf("expected 500 prompt tokens, got %v", got)
	}
	if got := testutil.ToFloat64(m.LLMTokensUsed.WithLabelValues("anthropic", "claude-3-opus", "completion")); got != 120 {
		t.Errorf("expected 120 completion tokens, got %v", got)
	}
}

func TestRecordToolExecution(t *testing.T) {
	m := newTestMetrics(t)
	m.RecordToolExecution("search_flights", "success", 0.42)
	m.RecordToolExecution("search_flights", "success", 0.10)
	m.RecordToolExecution("search_flights", "error", 0.05)

	if got := testutil.ToFloat64(m.ToolExecutionCounter.WithLabelValues("search_flights", "success")); got != 2 {
		t.Errorf("expected 2 successful executions, got %v", got)
	}
	if got := testutil.ToFloat64(m.ToolExecutionCounter.WithLabelValues("search_flights", "error")); got != 1 {
		t.Errorf("expected 1 failed execution, got %v", got)
	}
}

func TestRecordToolRounds(t *testing.T) {
	m := newTestMetrics(t)
	m.RecordToolRounds(3)
	m.RecordToolRounds(1)

	if count := testutil.CollectAndCount(m.ToolRoundsPerRequest); count != 1 {
		t.Errorf("expected 1 histogram series, got %d", count)
	}
}

func TestRecordRetryCapHit(t *testing.T) {
	m := newTestMetrics(t)
	m.RecordRetryCapHit("search_flights")
	m.RecordRetryCapHit("search_flights")

	if got := testutil.ToFloat64(m.RetryCapHits.WithLabelValues("search_flights")); got != 2 {
		t.Errorf("expected 2 retry cap hits, got %v", got)
	}
}

func TestRecordSanitizerHit(t *testing.T) {
	m := newTestMetrics(t)
	m.RecordSanitizerHit("create_trip")

	if got := testutil.ToFloat64(m.SanitizerHits.WithLabelValues("create_trip")); got != 1 {
		t.Errorf("expected 1 sanitizer hit, got %v", got)
	}
}

func TestRecordError(t *testing.T) {
	m := newTestMetrics(t)
	m.RecordError("orchestrator", "timeout")
	m.RecordError("orchestrator", "timeout")
	m.RecordError("router", "validation_failed")

	if count := testutil.CollectAndCount(m.ErrorCounter); count != 2 {
		t.Errorf("expected 2 label combinations, got %d", count)
	}
}

func TestRecordContextWindow(t *testing.T) {
	m := newTestMetrics(t)
	m.RecordContextWindow(1024)
	m.RecordContextWindow(2048)

	if count := testutil.CollectAndCount(m.ContextWindowUsed); count != 1 {
		t.Errorf("expected 1 histogram series, got %d", count)
	}
}

func TestConcurrentMetrics(t *testing.T) {
	m := newTestMetrics(t)

	done := make(chan bool)
	iterations := 100

	go func() {
		for i := 0; i < iterations; i++ {
			m.RecordToolExecution("tool_a", "success", 0.01)
			time.Sleep(time.Microsecond)
		}
		done <- true
	}()

	go func() {
		for i := 0; i < iterations; i++ {
			m.RecordToolExecution("tool_b", "success", 0.01)
			time.Sleep(time.Microsecond)
		}
		done <- true
	}()

	<-done
	<-done

	if got := testutil.ToFloat64(m.ToolExecutionCounter.WithLabelValues("tool_a", "success")); got != float64(iterations) {
		t.Errorf("expected %d recorded for tool_a, got %v", iterations, got)
	}
	if got := testutil.ToFloat64(m.ToolExecutionCounter.WithLabelValues("tool_b", "success")); got != float64(iterations) {
		t.Errorf("expected %d recorded for tool_b, got %v", iterations, got)
	}
}
