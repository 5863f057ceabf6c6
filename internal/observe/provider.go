package observe

import (
	"context"
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.39.0"
)

// ProviderConfig configures [Init].
type ProviderConfig struct {
	// ServiceName is reported in telemetry. Default: "chatsim".
	ServiceName string

	ServiceVersion string

	// TraceExporter receives finished spans. When nil, spans are recorded
	// for log correlation but not exported.
	TraceExporter sdktrace.SpanExporter

	// Registry receives the OTel metrics plus Go runtime and process
	// collectors. When nil, a fresh registry is created.
	Registry *prometheus.Registry
}

// Telemetry owns the SDK providers installed by [Init].
type Telemetry struct {
	mp       *sdkmetric.MeterProvider
	tp       *sdktrace.TracerProvider
	registry *prometheus.Registry
	metrics  *Metrics
}

// Init sets up a meter provider bridged to Prometheus and a tracer provider,
// and installs both as the global OTel providers. Call [Telemetry.Shutdown]
// before exit to flush exporters.
func Init(ctx context.Context, cfg ProviderConfig) (*Telemetry, error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "chatsim"
	}
	reg := cfg.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	if err := reg.Register(collectors.NewGoCollector()); err != nil {
		return nil, err
	}
	if err := reg.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
		return nil, err
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
		),
	)
	if err != nil {
		return nil, err
	}

	exp, err := promexporter.New(promexporter.WithRegisterer(reg))
	if err != nil {
		return nil, err
	}
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithResource(res), sdkmetric.WithReader(exp))

	tpOpts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	if cfg.TraceExporter != nil {
		tpOpts = append(tpOpts, sdktrace.WithBatcher(cfg.TraceExporter))
	}
	tp := sdktrace.NewTracerProvider(tpOpts...)

	m, err := NewMetrics(mp)
	if err != nil {
		return nil, errors.Join(err, mp.Shutdown(ctx), tp.Shutdown(ctx))
	}

	otel.SetMeterProvider(mp)
	otel.SetTracerProvider(tp)
	return &Telemetry{mp: mp, tp: tp, registry: reg, metrics: m}, nil
}

// Metrics returns the instruments bound to this telemetry's meter provider.
func (t *Telemetry) Metrics() *Metrics {
	return t.metrics
}

// Handler serves the registry in the Prometheus exposition format.
func (t *Telemetry) Handler() http.Handler {
	return promhttp.HandlerFor(t.registry, promhttp.HandlerOpts{})
}

// Shutdown flushes and closes both providers.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	return errors.Join(t.mp.Shutdown(ctx), t.tp.Shutdown(ctx))
}

// MetricsHandler serves the default Prometheus registry. Used when no
// [Telemetry] was initialised.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
