// Package observability provides the structured logging, Prometheus
// metrics, and span tracing used across the chat orchestration core.
//
// # Overview
//
// The package has three pillars:
//
//   - Logging: a slog-backed Logger with request_id/thread_id/user_id
//     correlation and redaction of secrets (API keys, bearer tokens,
//     passwords) before they ever reach a log sink.
//   - Metrics: a Metrics struct of Prometheus collectors covering HTTP,
//     LLM provider calls, tool dispatch, and the tool-call loop's round
//     and retry-cap bounds.
//   - Tracing: a Tracer wrapping OpenTelemetry's SDK, used to assign
//     trace_id/span_id per utterance and per tool call. Spans are sampled
//     in-process only; this core has no OTLP collector to export to, so
//     the only consumer of a span's IDs is the audit log, which stamps
//     them into audit.Event.Metadata for cross-referencing a tool call
//     back to the utterance that triggered it.
//
// # Logging
//
//	log := observability.NewLogger(observability.LogConfig{
//	    Level:  "info",
//	    Format: "json",
//	})
//	ctx = observability.AddThreadID(ctx, thread.ID)
//	log.Info(ctx, "dispatching tool call", "tool", "search_flights")
//
// WithContext attaches request_id/thread_id/user_id from the context to
// every subsequent log record without needing to pass them as args:
//
//	reqLog := log.WithContext(ctx)
//	reqLog.Info(ctx, "utterance received")
//
// # Metrics
//
//	metrics := observability.NewMetrics()
//	metrics.RecordToolExecution("search_flights", "success", 0.42)
//	metrics.RecordToolRounds(3)
//
// Metric names are prefixed chatcore_ to avoid collision with any other
// Prometheus-instrumented service sharing a registry.
//
// # Tracing
//
//	tracer, shutdown := observability.NewTracer(observability.TraceConfig{
//	    ServiceName: "chatcore",
//	})
//	defer shutdown(context.Background())
//
//	ctx, span := tracer.TraceToolExecution(ctx, "search_flights")
//	defer span.End()
//	traceID := observability.GetTraceID(ctx)
//	spanID := observability.GetSpanID(ctx)
package observability
