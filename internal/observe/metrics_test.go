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

// collect gathers all metric data from the reader.
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

func TestNewMetrics_CreatesWithoutError(t *testing.T) {
	m, _ := newTestMetrics(t)
	if m == nil {
		t.Fatal("NewMetrics returned nil")
	}
}

func TestCounterIncrement(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	counters := []struct {
		name string
		c    metric.Int64Counter
	}{
		{"optiblend.audio.chunks_sent", m.AudioChunksSent},
		{"optiblend.audio.chunks_dropped", m.AudioChunksDropped},
		{"optiblend.video.frames_sent", m.VideoFramesSent},
		{"optiblend.turn.signals", m.TurnSignals},
		{"optiblend.telemetry.updates", m.TelemetryUpdates},
	}
	for _, tc := range counters {
		tc.c.Add(ctx, 1)
		tc.c.Add(ctx, 2)
	}

	rm := collect(t, reader)

	for _, tc := range counters {
		t.Run(tc.name, func(t *testing.T) {
			met := findMetric(rm, tc.name)
			if met == nil {
				t.Fatalf("metric %q not found", tc.name)
			}
			sum, ok := met.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("metric %q is not a sum", tc.name)
			}
			if len(sum.DataPoints) == 0 {
				t.Fatalf("metric %q has no data points", tc.name)
			}
			if got := sum.DataPoints[0].Value; got != 3 {
				t.Errorf("counter value = %d, want 3", got)
			}
		})
	}
}

func TestCounterAttributes(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordOptimizeRequest(ctx, "api", "ok")
	m.RecordOptimizeRequest(ctx, "api", "ok")
	m.RecordOptimizeRequest(ctx, "fallback", "ok")

	rm := collect(t, reader)
	met := findMetric(rm, "optiblend.optimize.requests")
	if met == nil {
		t.Fatal("optimize request metric not found")
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatal("optimize request metric is not a sum")
	}
	if len(sum.DataPoints) != 2 {
		t.Fatalf("data points = %d, want 2 (one per origin)", len(sum.DataPoints))
	}
	for _, dp := range sum.DataPoints {
		origin, _ := dp.Attributes.Value(attribute.Key("origin"))
		switch origin.AsString() {
		case "api":
			if dp.Value != 2 {
				t.Errorf("api origin count = %d, want 2", dp.Value)
			}
		case "fallback":
			if dp.Value != 1 {
				t.Errorf("fallback origin count = %d, want 1", dp.Value)
			}
		default:
			t.Errorf("unexpected origin %q", origin.AsString())
		}
	}
}

func TestHistogramObservation(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.OptimizeDuration.Record(ctx, 0.123)
	m.OptimizeDuration.Record(ctx, 0.456)

	rm := collect(t, reader)
	met := findMetric(rm, "optiblend.optimize.duration")
	if met == nil {
		t.Fatal("optimize duration metric not found")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatal("optimize duration metric is not a histogram")
	}
	if len(hist.DataPoints) == 0 {
		t.Fatal("optimize duration metric has no data points")
	}
	if got := hist.DataPoints[0].Count; got != 2 {
		t.Errorf("sample count = %d, want 2", got)
	}
}

func TestUpDownCounter(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.PlaybackQueueDepth.Add(ctx, 3)
	m.PlaybackQueueDepth.Add(ctx, -1)
	m.SessionConnected.Add(ctx, 1)

	rm := collect(t, reader)

	met := findMetric(rm, "optiblend.playback.queue_depth")
	if met == nil {
		t.Fatal("queue depth metric not found")
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatal("queue depth metric is not a sum")
	}
	if got := sum.DataPoints[0].Value; got != 2 {
		t.Errorf("queue depth = %d, want 2", got)
	}

	met = findMetric(rm, "optiblend.session.connected")
	if met == nil {
		t.Fatal("session connected metric not found")
	}
	sum, ok = met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatal("session connected metric is not a sum")
	}
	if got := sum.DataPoints[0].Value; got != 1 {
		t.Errorf("session connected = %d, want 1", got)
	}
}

func TestRecordHelpers(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordPlaybackItem(ctx, "ok")
	m.RecordPlaybackItem(ctx, "error")
	m.RecordReconnectAttempt(ctx, "ok")

	rm := collect(t, reader)

	met := findMetric(rm, "optiblend.playback.items")
	if met == nil {
		t.Fatal("playback items metric not found")
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatal("playback items metric is not a sum")
	}
	if len(sum.DataPoints) != 2 {
		t.Errorf("data points = %d, want 2 (ok and error)", len(sum.DataPoints))
	}

	if findMetric(rm, "optiblend.session.reconnect_attempts") == nil {
		t.Fatal("reconnect attempts metric not found")
	}
}

func TestDefaultMetricsSingleton(t *testing.T) {
	a := DefaultMetrics()
	b := DefaultMetrics()
	if a != b {
		t.Error("DefaultMetrics should return the same instance")
	}
}

func TestAttrHelper(t *testing.T) {
	kv := Attr("status", "ok")
	if kv.Key != "status" || kv.Value.AsString() != "ok" {
		t.Errorf("Attr = %v, want status=ok", kv)
	}
}
