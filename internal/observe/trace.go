package observe

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/MrWong99/chatsim"

// StartSpan starts a span on the global tracer. The caller must End it.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, name, opts...)
}

// CorrelationID is the trace id of the active span in ctx, or "". Clients
// see it as the X-Correlation-ID response header.
func CorrelationID(ctx context.Context) string {
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

type logAttrsKey struct{}

// WithLogAttrs returns a copy of ctx whose [Logger] adds args, in the
// key/value form of [slog.Logger.With]. Attributes accumulate across calls.
// Handlers use it to tag everything a request logs with the user and topic.
func WithLogAttrs(ctx context.Context, args ...any) context.Context {
	if len(args) == 0 {
		return ctx
	}
	prev, _ := ctx.Value(logAttrsKey{}).([]any)
	merged := make([]any, 0, len(prev)+len(args))
	merged = append(merged, prev...)
	merged = append(merged, args...)
	return context.WithValue(ctx, logAttrsKey{}, merged)
}

// Logger returns the default logger with the trace and span ids of ctx and
// any attributes added by [WithLogAttrs].
func Logger(ctx context.Context) *slog.Logger {
	l := slog.Default()
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		l = l.With(
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	if attrs, ok := ctx.Value(logAttrsKey{}).([]any); ok {
		l = l.With(attrs...)
	}
	return l
}
