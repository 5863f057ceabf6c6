package observe

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// useTracer installs an in-memory tracer provider as the global one for the
// duration of the test.
func useTracer(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	orig := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(orig)
		_ = tp.Shutdown(context.Background())
	})
	return exp
}

// captureLogs routes the default logger into a buffer for the test.
func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	orig := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(orig) })
	return &buf
}

func TestStartSpan_RecordsSpanAndCorrelationID(t *testing.T) {
	exp := useTracer(t)

	if got := CorrelationID(context.Background()); got != "" {
		t.Errorf("CorrelationID(background) = %q, want empty", got)
	}

	ctx, span := StartSpan(context.Background(), "synth.Generate")
	cid := CorrelationID(ctx)
	span.End()

	if len(cid) != 32 || strings.Trim(cid, "0123456789abcdef") != "" {
		t.Errorf("correlation ID = %q, want 32 hex chars", cid)
	}
	spans := exp.GetSpans()
	if len(spans) != 1 || spans[0].Name != "synth.Generate" {
		t.Fatalf("spans = %v", spans)
	}
	if spans[0].SpanContext.TraceID().String() != cid {
		t.Error("correlation ID does not match the recorded trace")
	}
}

func TestLogger_TraceIDs(t *testing.T) {
	useTracer(t)
	buf := captureLogs(t)

	Logger(context.Background()).Info("no span")
	if strings.Contains(buf.String(), "trace_id") {
		t.Errorf("log without span has trace_id: %s", buf)
	}
	buf.Reset()

	ctx, span := StartSpan(context.Background(), "stream")
	defer span.End()
	Logger(ctx).Info("with span")
	for _, want := range []string{"trace_id=" + CorrelationID(ctx), "span_id="} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("log output missing %q: %s", want, buf)
		}
	}
}

func TestWithLogAttrs(t *testing.T) {
	buf := captureLogs(t)

	base := WithLogAttrs(context.Background(), "user", "alice")
	child := WithLogAttrs(base, "topic", "minecraft", "mode", "game")

	Logger(child).Info("chat stream opened")
	out := buf.String()
	for _, want := range []string{"user=alice", "topic=minecraft", "mode=game"} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q: %s", want, out)
		}
	}
	buf.Reset()

	// The parent context is not affected by the child's attributes.
	Logger(base).Info("generate")
	if out := buf.String(); !strings.Contains(out, "user=alice") || strings.Contains(out, "topic=") {
		t.Errorf("parent logger = %s", out)
	}

	if ctx := context.Background(); WithLogAttrs(ctx) != ctx {
		t.Error("WithLogAttrs without args should return ctx unchanged")
	}
}
