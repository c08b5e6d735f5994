package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Tracer wraps an OpenTelemetry tracer for the orchestration loop's span
// correlation. Spans are sampled and assigned real trace/span IDs, but are
// not exported off-process: the loop and router read GetTraceID/GetSpanID
// back out of the context to stamp audit.Event.Metadata, which is the only
// consumer this core has for trace correlation.
type Tracer struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
	config   TraceConfig
}

// TraceConfig configures tracing behavior.
type TraceConfig struct {
	// ServiceName identifies this service in spans (e.g. "chatcore").
	ServiceName string

	// ServiceVersion is the deployed version string.
	ServiceVersion string

	// Environment is the deployment environment (e.g. "production", "staging").
	Environment string

	// SamplingRate is the fraction of traces to sample (0.0 to 1.0).
	// 1.0 samples everything; 0.0 disables sampling.
	SamplingRate float64

	// Attributes are additional resource attributes to attach to every span.
	Attributes map[string]string
}

// NewTracer creates a new tracer with the given configuration. The returned
// shutdown function stops the tracer provider; callers should defer it.
func NewTracer(config TraceConfig) (*Tracer, func(context.Context) error) {
	if config.ServiceName == "" {
		config.ServiceName = "chatcore"
	}
	if config.SamplingRate == 0 {
		config.SamplingRate = 1.0
	}

	var sampler sdktrace.Sampler
	switch {
	case config.SamplingRate >= 1.0:
		sampler = sdktrace.AlwaysSample()
	case config.SamplingRate <= 0.0:
		sampler = sdktrace.NeverSample()
	default:
		sampler = sdktrace.TraceIDRatioBased(config.SamplingRate)
	}

	provider := sdktrace.NewTracerProvider(sdktrace.WithSampler(sampler))
	otel.SetTracerProvider(provider)

	t := &Tracer{
		provider: provider,
		tracer:   provider.Tracer(config.ServiceName),
		config:   config,
	}

	shutdown := func(ctx context.Context) error {
		return provider.Shutdown(ctx)
	}

	return t, shutdown
}

// SpanOptions configures a new span.
type SpanOptions struct {
	// Kind is the span kind (internal, server, client, producer, consumer).
	Kind trace.SpanKind

	// Attributes are key-value pairs attached to the span at creation.
	Attributes map[string]any
}

// Start begins a new span and returns the updated context and span.
// Callers must call span.End() when the span completes.
func (t *Tracer) Start(ctx context.Context, name string, opts ...SpanOptions) (context.Context, trace.Span) {
	var spanOpts []trace.SpanStartOption
	if len(opts) > 0 {
		opt := opts[0]
		if opt.Kind != trace.SpanKindUnspecified {
			spanOpts = append(spanOpts, trace.WithSpanKind(opt.Kind))
		}
		if len(opt.Attributes) > 0 {
			attrs := make([]attribute.KeyValue, 0, len(opt.Attributes))
			for k, v := range opt.Attributes {
				attrs = append(attrs, attributeFromValue(k, v))
			}
			spanOpts = append(spanOpts, trace.WithAttributes(attrs...))
		}
	}
	return t.tracer.Start(ctx, name, spanOpts...)
}

// StartSpan is an alias for Start, kept for call sites that prefer the
// explicit name.
func (t *Tracer) StartSpan(ctx context.Context, name string, opts ...SpanOptions) (context.Context, trace.Span) {
	return t.Start(ctx, name, opts...)
}

// RecordError records an error on the span and sets its status to Error.
// A nil err or nil span is a no-op.
func (t *Tracer) RecordError(span trace.Span, err error) {
	if span == nil || err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// SetAttributes sets additional attributes on an existing span. keyvals
// must be an even number of arguments alternating key (string) and value.
// Malformed pairs are skipped.
func (t *Tracer) SetAttributes(span trace.Span, keyvals ...any) {
	if span == nil {
		return
	}
	for i := 0; i+1 < len(keyvals); i += 2 {
		key, ok := keyvals[i].(string)
		if !ok {
			continue
		}
		span.SetAttributes(attributeFromValue(key, keyvals[i+1]))
	}
}

// AddEvent records a named event on the span with optional attributes.
func (t *Tracer) AddEvent(span trace.Span, name string, attrs map[string]any) {
	if span == nil {
		return
	}
	kvs := make([]attribute.KeyValue, 0, len(attrs))
	for k, v := range attrs {
		kvs = append(kvs, attributeFromValue(k, v))
	}
	span.AddEvent(name, trace.WithAttributes(kvs...))
}

// TraceLLMRequest starts a span for an outbound LLM provider call, one per
// streaming round in the tool-call loop.
func (t *Tracer) TraceLLMRequest(ctx context.Context, provider, model string) (context.Context, trace.Span) {
	return t.Start(ctx, "llm.request", SpanOptions{
		Kind: trace.SpanKindClient,
		Attributes: map[string]any{
			"llm.provider": provider,
			"llm.model":    model,
		},
	})
}

// TraceToolExecution starts a span for a single tool dispatch, covering the
// validate/sanitize/invoke/audit pipeline.
func (t *Tracer) TraceToolExecution(ctx context.Context, toolName string) (context.Context, trace.Span) {
	return t.Start(ctx, "tool.execute", SpanOptions{
		Kind: trace.SpanKindInternal,
		Attributes: map[string]any{
			"tool.name": toolName,
		},
	})
}

// SpanFromContext returns the current span from the context, or a no-op
// span if none is present.
func SpanFromContext(ctx context.Context) trace.Span {
	return trace.SpanFromContext(ctx)
}

// ContextWithSpan returns a new context with the given span attached.
func ContextWithSpan(ctx context.Context, span trace.Span) context.Context {
	return trace.ContextWithSpan(ctx, span)
}

// attributeFromValue converts a key-value pair into an OpenTelemetry
// attribute.KeyValue, dispatching on the value's Go type.
func attributeFromValue(key string, v any) attribute.KeyValue {
	switch val := v.(type) {
	case string:
		return attribute.String(key, val)
	case bool:
		return attribute.Bool(key, val)
	case int:
		return attribute.Int(key, val)
	case int64:
		return attribute.Int64(key, val)
	case float64:
		return attribute.Float64(key, val)
	default:
		return attribute.String(key, fmt.Sprintf("%v", val))
	}
}

// WithSpan runs fn inside a new span, recording any returned error and
// always ending the span.
func (t *Tracer) WithSpan(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	ctx, span := t.Start(ctx, name)
	defer span.End()
	err := fn(ctx)
	if err != nil {
		t.RecordError(span, err)
	}
	return err
}

// GetTraceID returns the hex-encoded trace ID of the span in ctx, or "" if
// no recording span is present.
func GetTraceID(ctx context.Context) string {
	span := trace.SpanFromContext(ctx)
	if !span.SpanContext().HasTraceID() {
		return ""
	}
	return span.SpanContext().TraceID().String()
}

// GetSpanID returns the hex-encoded span ID of the span in ctx, or "" if no
// recording span is present.
func GetSpanID(ctx context.Context) string {
	span := trace.SpanFromContext(ctx)
	if !span.SpanContext().HasSpanID() {
		return ""
	}
	return span.SpanContext().SpanID().String()
}
