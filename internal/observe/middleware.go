package observe

import (
	"bufio"
	"fmt"
	"log/slog"
	"mime"
	"net"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.39.0"
	"go.opentelemetry.io/otel/trace"
)

// Request kinds used as the "kind" attribute.
const (
	KindRequest = "request"
	KindStream  = "stream"
)

// quietRoutes are polled by infrastructure and logged at debug level only.
var quietRoutes = map[string]bool{
	"GET /healthz": true,
	"GET /readyz":  true,
	"GET /metrics": true,
}

// responseRecorder captures the status code and body size written by the
// downstream handler. It forwards Flush and Hijack so event streams and
// WebSocket upgrades keep working behind the middleware.
type responseRecorder struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func (r *responseRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	n, err := r.ResponseWriter.Write(b)
	r.bytes += int64(n)
	return n, err
}

// Flush implements [http.Flusher].
func (r *responseRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Hijack implements [http.Hijacker].
func (r *responseRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("observe: %T does not support hijacking", r.ResponseWriter)
	}
	r.status = http.StatusSwitchingProtocols
	return hj.Hijack()
}

// Unwrap lets [http.ResponseController] reach the underlying writer.
func (r *responseRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// kind reports whether the response was a chat stream (SSE or WebSocket).
func (r *responseRecorder) kind() string {
	if r.status == http.StatusSwitchingProtocols {
		return KindStream
	}
	if mt, _, err := mime.ParseMediaType(r.Header().Get("Content-Type")); err == nil && mt == "text/event-stream" {
		return KindStream
	}
	return KindRequest
}

// Middleware traces, measures and logs every request.
//
// The incoming W3C trace context is continued, the trace id is returned as
// X-Correlation-ID and the duration is recorded in
// [Metrics.HTTPRequestDuration] under the matched ServeMux pattern, so path
// values like topics never become label values. Chat streams are measured
// and logged once, when the client disconnects.
func Middleware(m *Metrics) func(http.Handler) http.Handler {
	prop := propagation.TraceContext{}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ctx := prop.Extract(r.Context(), propagation.HeaderCarrier(r.Header))
			ctx, span := StartSpan(ctx, "HTTP "+r.Method,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					semconv.HTTPRequestMethodKey.String(r.Method),
					semconv.URLPath(r.URL.Path),
				),
			)
			defer span.End()

			cid := CorrelationID(ctx)
			if cid != "" {
				w.Header().Set("X-Correlation-ID", cid)
			}

			r = r.WithContext(ctx)
			rec := &responseRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			// ServeMux records the matched pattern on the request it routed.
			route := r.Pattern
			if route == "" {
				route = "unmatched"
			} else {
				span.SetName("HTTP " + route)
				span.SetAttributes(semconv.HTTPRoute(route))
			}
			kind := rec.kind()
			duration := time.Since(start)

			m.HTTPRequestDuration.Record(ctx, duration.Seconds(),
				metric.WithAttributes(
					attribute.String("method", r.Method),
					attribute.String("route", route),
					attribute.String("kind", kind),
				),
			)
			span.SetAttributes(semconv.HTTPResponseStatusCode(rec.status))

			level := slog.LevelInfo
			if quietRoutes[route] {
				level = slog.LevelDebug
			}
			msg := "request completed"
			if kind == KindStream {
				msg = "stream closed"
			}
			slog.LogAttrs(ctx, level, msg,
				slog.String("trace_id", cid),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", rec.status),
				slog.Int64("bytes", rec.bytes),
				slog.Duration("duration", duration),
			)
		})
	}
}
