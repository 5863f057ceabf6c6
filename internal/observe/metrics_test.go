package observe

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// newTestMetrics returns a Metrics instance backed by a ManualReader for
// programmatic metric inspection.
func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

// findMetric searches for a metric by name across all scope metrics.
func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

// sumFor returns the value of the data point of counter name that carries
// key=value, or -1 when there is none.
func sumFor(t *testing.T, rm metricdata.ResourceMetrics, name, key, value string) int64 {
	t.Helper()
	met := findMetric(rm, name)
	if met == nil {
		t.Fatalf("metric %q not found", name)
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("metric %q is not a sum", name)
	}
	for _, dp := range sum.DataPoints {
		if v, ok := dp.Attributes.Value(attribute.Key(key)); ok && v.AsString() == value {
			return dp.Value
		}
	}
	return -1
}

func TestHistogramObservation(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	histograms := []struct {
		name string
		h    metric.Float64Histogram
	}{
		{"chatsim.provider.duration", m.ProviderDuration},
		{"chatsim.generation.duration", m.GenerationDuration},
		{"chatsim.http.request.duration", m.HTTPRequestDuration},
	}
	for _, tc := range histograms {
		tc.h.Record(ctx, 1.5)
		tc.h.Record(ctx, 12)
	}

	rm := collect(t, reader)
	for _, tc := range histograms {
		t.Run(tc.name, func(t *testing.T) {
			met := findMetric(rm, tc.name)
			if met == nil {
				t.Fatalf("metric %q not found", tc.name)
			}
			hist, ok := met.Data.(metricdata.Histogram[float64])
			if !ok {
				t.Fatalf("metric %q is not a histogram", tc.name)
			}
			if len(hist.DataPoints) == 0 {
				t.Fatalf("metric %q has no data points", tc.name)
			}
			if got := hist.DataPoints[0].Count; got != 2 {
				t.Errorf("sample count = %d, want 2", got)
			}
		})
	}
}

func TestRecordProviderRequest(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordProviderRequest(ctx, "groq", StatusOK)
	m.RecordProviderRequest(ctx, "groq", StatusOK)
	m.RecordProviderRequest(ctx, "cerebras", StatusTimeout)

	rm := collect(t, reader)
	if got := sumFor(t, rm, "chatsim.provider.requests", "status", StatusOK); got != 2 {
		t.Errorf("ok requests = %d, want 2", got)
	}
	if got := sumFor(t, rm, "chatsim.provider.requests", "status", StatusTimeout); got != 1 {
		t.Errorf("timeout requests = %d, want 1", got)
	}
}

func TestRecordProviderError(t *testing.T) {
	m, reader := newTestMetrics(t)

	m.RecordProviderError(context.Background(), "cerebras", StatusEmpty)

	rm := collect(t, reader)
	if got := sumFor(t, rm, "chatsim.provider.errors", "provider", "cerebras"); got != 1 {
		t.Errorf("errors = %d, want 1", got)
	}
}

func TestDomainCounters(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordGeneration(ctx, "generated")
	m.RecordGeneration(ctx, "quota")
	m.RecordGeneration(ctx, "quota")
	m.RecordPhraseLookup(ctx, "builtin")
	m.RecordMessage(ctx, "sse", "game")
	m.RecordMessage(ctx, "sse", "game")
	m.RecordMessage(ctx, "ws", "justchatting")

	rm := collect(t, reader)
	tests := []struct {
		name, key, value string
		want             int64
	}{
		{"chatsim.generations", "result", "quota", 2},
		{"chatsim.generations", "result", "generated", 1},
		{"chatsim.phrase.lookups", "source", "builtin", 1},
		{"chatsim.messages.emitted", "transport", "sse", 2},
		{"chatsim.messages.emitted", "mode", "justchatting", 1},
	}
	for _, tt := range tests {
		if got := sumFor(t, rm, tt.name, tt.key, tt.value); got != tt.want {
			t.Errorf("%s{%s=%s} = %d, want %d", tt.name, tt.key, tt.value, got, tt.want)
		}
	}
}

func TestActiveSessions(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.ActiveSessions.Add(ctx, 1)
	m.ActiveSessions.Add(ctx, 1)
	m.ActiveSessions.Add(ctx, -1)

	rm := collect(t, reader)
	met := findMetric(rm, "chatsim.active_sessions")
	if met == nil {
		t.Fatal("metric not found")
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok || len(sum.DataPoints) == 0 {
		t.Fatal("metric is not a sum with data points")
	}
	if got := sum.DataPoints[0].Value; got != 1 {
		t.Errorf("active sessions = %d, want 1", got)
	}
}

func TestDefaultMetrics_ReturnsSameInstance(t *testing.T) {
	a := DefaultMetrics()
	b := DefaultMetrics()
	if a != b {
		t.Error("DefaultMetrics returned different pointers")
	}
}
