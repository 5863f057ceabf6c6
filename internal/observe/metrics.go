// Package observe provides the observability primitives of chatsim:
// OpenTelemetry metrics and tracing, a Prometheus scrape endpoint, a
// trace-aware logger and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API and bridged to
// Prometheus by [Init]. Tests should use [NewMetrics] with their own
// [metric.MeterProvider] instead of [DefaultMetrics] to avoid cross-test
// pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all chatsim metrics.
const meterName = "github.com/MrWong99/chatsim"

// Provider attempt outcomes used as the "status" attribute.
const (
	StatusOK      = "ok"
	StatusError   = "error"
	StatusTimeout = "timeout"
	StatusEmpty   = "empty"
)

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// ProviderDuration tracks the latency of a single provider attempt,
	// stream open through last chunk.
	ProviderDuration metric.Float64Histogram

	// GenerationDuration tracks a full phrase generation including failover.
	GenerationDuration metric.Float64Histogram

	// ProviderRequests counts provider attempts. Attributes:
	//   attribute.String("provider", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// ProviderErrors counts failed provider attempts. Attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// Generations counts phrase generation requests by result
	// (generated, cached, quota, rejected, failed, malformed).
	Generations metric.Int64Counter

	// PhraseLookups counts message-time phrase lookups by source
	// (cache, builtin, none).
	PhraseLookups metric.Int64Counter

	// MessagesEmitted counts chat messages pushed to clients. Attributes:
	//   attribute.String("transport", ...), attribute.String("mode", ...)
	MessagesEmitted metric.Int64Counter

	// ActiveSessions tracks the number of open chat streams.
	ActiveSessions metric.Int64UpDownCounter

	// HTTPRequestDuration tracks HTTP request processing time, and the
	// lifetime of chat streams. Attributes: "method", "route" (ServeMux
	// pattern) and "kind" (request or stream).
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// LLM completions, which routinely take several seconds.
var latencyBuckets = []float64{
	0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30, 60,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider].
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.ProviderDuration, err = m.Float64Histogram("chatsim.provider.duration",
		metric.WithDescription("Latency of a single AI provider attempt."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.GenerationDuration, err = m.Float64Histogram("chatsim.generation.duration",
		metric.WithDescription("Latency of phrase generation including provider failover."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	if met.ProviderRequests, err = m.Int64Counter("chatsim.provider.requests",
		metric.WithDescription("Total AI provider attempts by provider and status."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("chatsim.provider.errors",
		metric.WithDescription("Total AI provider failures by provider and kind."),
	); err != nil {
		return nil, err
	}
	if met.Generations, err = m.Int64Counter("chatsim.generations",
		metric.WithDescription("Total phrase generation requests by result."),
	); err != nil {
		return nil, err
	}
	if met.PhraseLookups, err = m.Int64Counter("chatsim.phrase.lookups",
		metric.WithDescription("Total phrase set lookups by source."),
	); err != nil {
		return nil, err
	}
	if met.MessagesEmitted, err = m.Int64Counter("chatsim.messages.emitted",
		metric.WithDescription("Total synthetic chat messages pushed to clients."),
	); err != nil {
		return nil, err
	}

	if met.ActiveSessions, err = m.Int64UpDownCounter("chatsim.active_sessions",
		metric.WithDescription("Number of open chat streams."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("chatsim.http.request.duration",
		metric.WithDescription("HTTP request and stream duration by method, route and kind."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Panics if instrument creation
// fails.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String].
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordProviderRequest records one provider attempt with its outcome.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError records one failed provider attempt.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

// RecordGeneration records the result of one generate-phrases request.
func (m *Metrics) RecordGeneration(ctx context.Context, result string) {
	m.Generations.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

// RecordPhraseLookup records where a message found its phrase set.
func (m *Metrics) RecordPhraseLookup(ctx context.Context, source string) {
	m.PhraseLookups.Add(ctx, 1, metric.WithAttributes(attribute.String("source", source)))
}

// RecordMessage records one chat message pushed over transport.
func (m *Metrics) RecordMessage(ctx context.Context, transport, mode string) {
	m.MessagesEmitted.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("transport", transport),
			attribute.String("mode", mode),
		),
	)
}
