package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

// TraceConfig configures the mesh's distributed tracing. Grounded on the
// teacher's observability.TraceConfig, trimmed to the fields this module
// actually exposes: it has no OTLP exporter wiring of its own, and an
// application that wants one supplies its own sdktrace.TracerProvider via
// NewTracerFromProvider instead.
type TraceConfig struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	SamplingRate   float64
}

// Tracer wraps an OpenTelemetry trace.Tracer with span helpers for the
// mesh's three instrumented operations: bus sends, tool executions, and
// A2A HTTP round trips.
type Tracer struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
}

// NewTracer builds a Tracer backed by an in-process OpenTelemetry SDK
// TracerProvider using the given sampling rate. It has no span exporter
// configured, so spans are created and sampled but not shipped anywhere
// — wiring a real OTLP/Jaeger exporter is an application concern (spec
// §1 Non-goals: "observability backends/UIs"). Use NewTracerFromProvider
// when the embedding application supplies its own configured provider.
func NewTracer(config TraceConfig) (*Tracer, func(context.Context) error) {
	if config.ServiceName == "" {
		config.ServiceName = "agentmesh"
	}
	if config.SamplingRate == 0 {
		config.SamplingRate = 1.0
	}

	attrs := []attribute.KeyValue{
		semconv.ServiceName(config.ServiceName),
		semconv.ServiceVersion(config.ServiceVersion),
	}
	if config.Environment != "" {
		attrs = append(attrs, semconv.DeploymentEnvironment(config.Environment))
	}
	res, err := resource.New(context.Background(), resource.WithAttributes(attrs...))
	if err != nil {
		res = resource.Default()
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(config.SamplingRate))),
	)

	return &Tracer{provider: provider, tracer: provider.Tracer(config.ServiceName)}, provider.Shutdown
}

// NewTracerFromProvider wraps an already-configured TracerProvider (an
// application's own OTLP exporter setup) instead of building one.
func NewTracerFromProvider(provider *sdktrace.TracerProvider, serviceName string) *Tracer {
	if serviceName == "" {
		serviceName = "agentmesh"
	}
	return &Tracer{provider: provider, tracer: provider.Tracer(serviceName)}
}

// Start begins a generic span. Callers that don't need one of the
// named Trace* helpers below use this directly.
func (t *Tracer) Start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if t == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return t.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// TraceBusSend spans one bus.Bus.Send call.
func (t *Tracer) TraceBusSend(ctx context.Context, messageID, targetKind string) (context.Context, trace.Span) {
	return t.Start(ctx, "bus.send",
		attribute.String("message_id", messageID),
		attribute.String("target_kind", targetKind),
	)
}

// TraceToolExecution spans one toolexec.Registry.Execute call.
func (t *Tracer) TraceToolExecution(ctx context.Context, toolID string) (context.Context, trace.Span) {
	return t.Start(ctx, "toolexec.execute", attribute.String("tool_id", toolID))
}

// TraceA2ARequest spans one outbound A2A HTTP round trip.
func (t *Tracer) TraceA2ARequest(ctx context.Context, method, url string) (context.Context, trace.Span) {
	return t.Start(ctx, "a2a.request",
		attribute.String("http.method", method),
		attribute.String("http.url", url),
		attribute.String("span.kind", "client"),
	)
}

// RecordError marks span as failed and attaches err, matching the
// teacher's RecordError helper.
func (t *Tracer) RecordError(span trace.Span, err error) {
	if span == nil || err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// Shutdown flushes and stops the underlying provider. Callers that built
// their own TracerProvider and passed it to NewTracerFromProvider should
// prefer shutting that provider down directly if they share it elsewhere.
func (t *Tracer) Shutdown(ctx context.Context) error {
	if t == nil || t.provider == nil {
		return nil
	}
	return t.provider.Shutdown(ctx)
}
