package observability

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestNewTracerProducesRecordingSpans(t *testing.T) {
	tracer, shutdown := NewTracer(TraceConfig{ServiceName: "agentmesh-test", SamplingRate: 1.0})
	defer func() { _ = shutdown(context.Background()) }()

	_, span := tracer.TraceBusSend(context.Background(), "m1", "direct")
	defer span.End()

	if !span.IsRecording() {
		t.Fatal("expected a sampled span to be recording")
	}
}

func TestTraceHelpersNameTheirSpans(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	tracer := NewTracerFromProvider(provider, "agentmesh-test")

	ctx, toolSpan := tracer.TraceToolExecution(context.Background(), "search")
	toolSpan.End()
	_, a2aSpan := tracer.TraceA2ARequest(ctx, "POST", "http://peer/a2a/message/private")
	a2aSpan.End()

	spans := exporter.GetSpans()
	if len(spans) != 2 {
		t.Fatalf("len(spans) = %d, want 2", len(spans))
	}
	if spans[0].Name != "toolexec.execute" {
		t.Fatalf("spans[0].Name = %q, want toolexec.execute", spans[0].Name)
	}
	if spans[1].Name != "a2a.request" {
		t.Fatalf("spans[1].Name = %q, want a2a.request", spans[1].Name)
	}
}

func TestRecordErrorSetsSpanStatus(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	tracer := NewTracerFromProvider(provider, "agentmesh-test")

	_, span := tracer.Start(context.Background(), "op")
	tracer.RecordError(span, errors.New("boom"))
	span.End()

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("len(spans) = %d, want 1", len(spans))
	}
	if spans[0].Status.Code != codes.Error {
		t.Fatalf("Status.Code = %v, want codes.Error", spans[0].Status.Code)
	}
}

func TestNilTracerStartIsSafe(t *testing.T) {
	var tracer *Tracer
	ctx, span := tracer.Start(context.Background(), "op")
	if ctx == nil || span == nil {
		t.Fatal("expected a non-nil no-op context/span from a nil Tracer")
	}
}
