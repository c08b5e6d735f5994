package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for the chat orchestration core.
// All metrics are registered against the default registry via promauto at
// construction time; call NewMetrics once per process.
type Metrics struct {
	// HTTP request metrics
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPRequestCounter  *prometheus.CounterVec

	// LLM provider call metrics
	LLMRequestDuration *prometheus.HistogramVec
	LLMRequestCounter  *prometheus.CounterVec
	LLMTokensUsed      *prometheus.CounterVec

	// Tool dispatch metrics
	ToolExecutionCounter *prometheus.CounterVec
	ToolExecutionDuration *prometheus.HistogramVec

	// Tool-call loop metrics (round count and per-tool retry-cap hits)
	ToolRoundsPerRequest prometheus.Histogram
	RetryCapHits         *prometheus.CounterVec
	SanitizerHits        *prometheus.CounterVec

	// General error and context-window metrics
	ErrorCounter      *prometheus.CounterVec
	ContextWindowUsed prometheus.Histogram
}

// NewMetrics creates and registers all Prometheus collectors. Panics if a
// metric with a conflicting name is already registered against the default
// registry (promauto's behavior); callers should construct Metrics once.
func NewMetrics() *Metrics {
	return &Metrics{
		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "chatcore_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chatcore_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		LLMRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "chatcore_llm_request_duration_seconds",
				Help:    "LLM provider request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"provider", "model", "status"},
		),
		LLMRequestCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chatcore_llm_requests_total",
				Help: "Total number of LLM provider requests",
			},
			[]string{"provider", "model", "status"},
		),
		LLMTokensUsed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chatcore_llm_tokens_total",
				Help: "Total number of LLM tokens consumed",
			},
			[]string{"provider", "model", "kind"},
		),
		ToolExecutionCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chatcore_tool_executions_total",
				Help: "Total number of tool executions",
			},
			[]string{"tool", "status"},
		),
		ToolExecutionDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "chatcore_tool_execution_duration_seconds",
				Help:    "Tool execution duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"tool", "status"},
		),
		ToolRoundsPerRequest: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "chatcore_tool_rounds_per_request",
				Help:    "Number of LLM↔tool rounds consumed per chat request",
				Buckets: prometheus.LinearBuckets(1, 1, 10),
			},
		),
		RetryCapHits: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chatcore_retry_cap_hits_total",
				Help: "Total number of times a tool's retry cap was hit within a single loop",
			},
			[]string{"tool"},
		),
		SanitizerHits: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chatcore_sanitizer_hits_total",
				Help: "Total number of tool calls whose arguments were modified by sanitization",
			},
			[]string{"tool"},
		),
		ErrorCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chatcore_errors_total",
				Help: "Total number of errors by component and kind",
			},
			[]string{"component", "kind"},
		),
		ContextWindowUsed: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "chatcore_context_window_tokens",
				Help:    "Number of tokens selected into the LLM context window per request",
				Buckets: prometheus.ExponentialBuckets(64, 2, 12),
			},
		),
	}
}

// RecordHTTPRequest records the duration and outcome of an HTTP request.
func (m *Metrics) RecordHTTPRequest(method, path, status string, durationSeconds float64) {
	m.HTTPRequestDuration.WithLabelValues(method, path, status).Observe(durationSeconds)
	m.HTTPRequestCounter.WithLabelValues(method, path, status).Inc()
}

// RecordLLMRequest records the duration, outcome, and token usage of an LLM
// provider call.
func (m *Metrics) RecordLLMRequest(provider, model, status string, durationSeconds float64, promptTokens, completionTokens int) {
	m.LLMRequestDuration.WithLabelValues(provider, model, status).Observe(durationSeconds)
	m.LLMRequestCounter.WithLabelValues(provider, model, status).Inc()
	if promptTokens > 0 {
		m.LLMTokensUsed.WithLabelValues(provider, model, "prompt").Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		m.LLMTokensUsed.WithLabelValues(provider, model, "completion").Add(float64(completionTokens))
	}
}

// RecordToolExecution records the duration and outcome of a single tool
// dispatch, keyed by tool name.
func (m *Metrics) RecordToolExecution(toolName, status string, durationSeconds float64) {
	m.ToolExecutionCounter.WithLabelValues(toolName, status).Inc()
	m.ToolExecutionDuration.WithLabelValues(toolName, status).Observe(durationSeconds)
}

// RecordToolRounds records the number of LLM↔tool rounds a single chat
// request consumed before terminating.
func (m *Metrics) RecordToolRounds(rounds int) {
	m.ToolRoundsPerRequest.Observe(float64(rounds))
}

// RecordRetryCapHit records that toolName hit its per-loop retry cap.
func (m *Metrics) RecordRetryCapHit(toolName string) {
	m.RetryCapHits.WithLabelValues(toolName).Inc()
}

// RecordSanitizerHit records that toolName's arguments were modified by the
// input sanitizer before dispatch.
func (m *Metrics) RecordSanitizerHit(toolName string) {
	m.SanitizerHits.WithLabelValues(toolName).Inc()
}

// RecordError records an error by originating component and error kind.
func (m *Metrics) RecordError(component, kind string) {
	m.ErrorCounter.WithLabelValues(component, kind).Inc()
}

// RecordContextWindow records the number of tokens selected into the LLM
// context window for a single request.
func (m *Metrics) RecordContextWindow(tokens int) {
	m.ContextWindowUsed.Observe(float64(tokens))
}
