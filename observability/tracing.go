package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// instrumentationName identifies this module's OTel tracer/meter, ported
// from the teacher's llm/observability/metrics.go convention of naming
// instrumentation after the importing module path.
const instrumentationName = "github.com/RobLe3/claudette-sub003"

// Tracer wraps every Runtime.Optimize call in an OpenTelemetry span the
// way the teacher's Metrics.StartRequest/EndRequest do, carrying routing
// decision and RAG status as span attributes (SPEC_FULL.md §4.9).
type Tracer struct {
	tracer trace.Tracer
	meter  metric.Meter
}

// NewTracer builds a Tracer against the global OTel providers; callers
// that want isolated providers (e.g. tests) should install a
// noop/sdktest TracerProvider via otel.SetTracerProvider before calling
// NewTracer.
func NewTracer() *Tracer {
	return &Tracer{
		tracer: otel.Tracer(instrumentationName),
		meter:  otel.Meter(instrumentationName),
	}
}

// RequestAttrs are the span attributes attached at the start of a call.
type RequestAttrs struct {
	RequestID string
	Backend   string
	UseRAG    bool
}

// ResponseAttrs are the span attributes recorded once a call completes.
type ResponseAttrs struct {
	BackendUsed     string
	CacheHit        bool
	RAGStatus       string
	RoutingDecision string
	ErrorCode       string
	Duration        time.Duration
	CostEUR         float64
}

// StartOptimize begins a span for one Runtime.Optimize call.
func (t *Tracer) StartOptimize(ctx context.Context, attrs RequestAttrs) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "claudette.optimize", trace.WithAttributes(
		attribute.String("claudette.request_id", attrs.RequestID),
		attribute.String("claudette.requested_backend", attrs.Backend),
		attribute.Bool("claudette.use_rag", attrs.UseRAG),
	))
}

// EndOptimize records the outcome attributes and ends the span.
func (t *Tracer) EndOptimize(span trace.Span, resp ResponseAttrs) {
	defer span.End()
	span.SetAttributes(
		attribute.String("claudette.backend_used", resp.BackendUsed),
		attribute.Bool("claudette.cache_hit", resp.CacheHit),
		attribute.String("claudette.rag_status", resp.RAGStatus),
		attribute.String("claudette.routing_decision", resp.RoutingDecision),
		attribute.Float64("claudette.cost_eur", resp.CostEUR),
		attribute.Float64("claudette.duration_ms", float64(resp.Duration.Milliseconds())),
	)
	if resp.ErrorCode != "" {
		span.SetAttributes(attribute.String("claudette.error_code", resp.ErrorCode))
	}
}
