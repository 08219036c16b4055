// Package observe provides application-wide observability primitives for
// the OptiBlend console: OpenTelemetry metrics, distributed tracing,
// structured logging, and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all console metrics.
const meterName = "github.com/BrightProgrammer7/OptiBlend"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Outbound media ---

	// AudioChunksSent counts microphone chunks relayed to the backend.
	AudioChunksSent metric.Int64Counter

	// AudioChunksDropped counts chunks dropped while the link was down.
	AudioChunksDropped metric.Int64Counter

	// VideoFramesSent counts JPEG frames relayed to the backend.
	VideoFramesSent metric.Int64Counter

	// TurnSignals counts end-of-turn signals inferred from silence.
	TurnSignals metric.Int64Counter

	// --- Inbound media ---

	// PlaybackItems counts playback queue items by status. Use with
	// attribute:
	//   attribute.String("status", "ok"|"error")
	PlaybackItems metric.Int64Counter

	// PlaybackQueueDepth tracks payloads waiting behind the in-flight item.
	PlaybackQueueDepth metric.Int64UpDownCounter

	// TelemetryUpdates counts SCADA telemetry frames received.
	TelemetryUpdates metric.Int64Counter

	// --- Session ---

	// ReconnectAttempts counts reconnect attempts by outcome. Use with
	// attribute:
	//   attribute.String("status", "ok"|"error")
	ReconnectAttempts metric.Int64Counter

	// SessionConnected tracks whether a backend session is live (0 or 1).
	SessionConnected metric.Int64UpDownCounter

	// --- Optimizer ---

	// OptimizeRequests counts optimizer calls by origin and status. Use
	// with attributes:
	//   attribute.String("origin", "api"|"fallback"), attribute.String("status", ...)
	OptimizeRequests metric.Int64Counter

	// OptimizeDuration tracks optimizer request latency.
	OptimizeDuration metric.Float64Histogram

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// request/response latencies against a local backend.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Outbound counters.
	if met.AudioChunksSent, err = m.Int64Counter("optiblend.audio.chunks_sent",
		metric.WithDescription("Total microphone chunks relayed to the backend."),
	); err != nil {
		return nil, err
	}
	if met.AudioChunksDropped, err = m.Int64Counter("optiblend.audio.chunks_dropped",
		metric.WithDescription("Total microphone chunks dropped while disconnected."),
	); err != nil {
		return nil, err
	}
	if met.VideoFramesSent, err = m.Int64Counter("optiblend.video.frames_sent",
		metric.WithDescription("Total JPEG frames relayed to the backend."),
	); err != nil {
		return nil, err
	}
	if met.TurnSignals, err = m.Int64Counter("optiblend.turn.signals",
		metric.WithDescription("Total end-of-turn signals inferred from silence."),
	); err != nil {
		return nil, err
	}

	// Inbound counters and gauges.
	if met.PlaybackItems, err = m.Int64Counter("optiblend.playback.items",
		metric.WithDescription("Total playback items by status."),
	); err != nil {
		return nil, err
	}
	if met.PlaybackQueueDepth, err = m.Int64UpDownCounter("optiblend.playback.queue_depth",
		metric.WithDescription("Payloads waiting behind the in-flight playback item."),
	); err != nil {
		return nil, err
	}
	if met.TelemetryUpdates, err = m.Int64Counter("optiblend.telemetry.updates",
		metric.WithDescription("Total SCADA telemetry frames received."),
	); err != nil {
		return nil, err
	}

	// Session.
	if met.ReconnectAttempts, err = m.Int64Counter("optiblend.session.reconnect_attempts",
		metric.WithDescription("Total reconnect attempts by outcome."),
	); err != nil {
		return nil, err
	}
	if met.SessionConnected, err = m.Int64UpDownCounter("optiblend.session.connected",
		metric.WithDescription("Whether a backend session is currently live."),
	); err != nil {
		return nil, err
	}

	// Optimizer.
	if met.OptimizeRequests, err = m.Int64Counter("optiblend.optimize.requests",
		metric.WithDescription("Total fuel-mix optimizer calls by origin and status."),
	); err != nil {
		return nil, err
	}
	if met.OptimizeDuration, err = m.Float64Histogram("optiblend.optimize.duration",
		metric.WithDescription("Latency of fuel-mix optimizer requests."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("optiblend.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
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

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordPlaybackItem records one finished playback item.
func (m *Metrics) RecordPlaybackItem(ctx context.Context, status string) {
	m.PlaybackItems.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", status)),
	)
}

// RecordReconnectAttempt records one reconnect attempt outcome.
func (m *Metrics) RecordReconnectAttempt(ctx context.Context, status string) {
	m.ReconnectAttempts.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", status)),
	)
}

// RecordOptimizeRequest records one optimizer call with its origin
// ("api" or "fallback") and status.
func (m *Metrics) RecordOptimizeRequest(ctx context.Context, origin, status string) {
	m.OptimizeRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("origin", origin),
			attribute.String("status", status),
		),
	)
}
