// Package observe provides observability primitives for the Levensboek
// engine: OpenTelemetry metrics with a Prometheus exporter bridge and
// tracing setup.
//
// A package-level default [Metrics] instance ([DefaultMetrics]) is provided
// for convenience; tests should use [NewMetrics] with a custom
// [metric.MeterProvider] to avoid cross-test pollution.
package observe

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all engine metrics.
const meterName = "github.com/mverbeek/levensboek"

// Metrics holds all OpenTelemetry metric instruments for the engine.
// The underlying OTel types handle their own synchronisation.
type Metrics struct {
	// CaptureDuration tracks wall-clock recording length in seconds.
	// Use with attribute.String("mode", ...).
	CaptureDuration metric.Float64Histogram

	// UploadDuration tracks the full upload handshake latency.
	// Use with attribute.String("transport", ...).
	UploadDuration metric.Float64Histogram

	// UploadBytes counts artifact bytes dispatched.
	UploadBytes metric.Int64Counter

	// UploadErrors counts failed handshakes.
	// Use with attribute.String("stage", "presign"|"dispatch"|"confirm").
	UploadErrors metric.Int64Counter

	// TurnDuration tracks conversation round-trip latency.
	TurnDuration metric.Float64Histogram

	// Turns counts completed interview turns.
	Turns metric.Int64Counter

	// ActiveSessions tracks the number of live recording sessions.
	ActiveSessions metric.Int64UpDownCounter
}

// latencyBuckets defines histogram bucket boundaries (in seconds) covering
// both fast API round-trips and multi-minute recordings.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 300, 900,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.CaptureDuration, err = m.Float64Histogram("levensboek.capture.duration",
		metric.WithDescription("Wall-clock length of finished recordings."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.UploadDuration, err = m.Float64Histogram("levensboek.upload.duration",
		metric.WithDescription("Latency of the full upload handshake."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.UploadBytes, err = m.Int64Counter("levensboek.upload.bytes",
		metric.WithDescription("Artifact bytes dispatched to storage."),
		metric.WithUnit("By"),
	); err != nil {
		return nil, err
	}
	if met.UploadErrors, err = m.Int64Counter("levensboek.upload.errors",
		metric.WithDescription("Failed upload handshakes by stage."),
	); err != nil {
		return nil, err
	}
	if met.TurnDuration, err = m.Float64Histogram("levensboek.conversation.turn.duration",
		metric.WithDescription("Latency of one interview turn round-trip."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.Turns, err = m.Int64Counter("levensboek.conversation.turns",
		metric.WithDescription("Completed interview turns."),
	); err != nil {
		return nil, err
	}
	if met.ActiveSessions, err = m.Int64UpDownCounter("levensboek.sessions.active",
		metric.WithDescription("Live recording sessions."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance built from
// the global meter provider. The first call wins. Returns nil when
// instrument creation fails; callers treat a nil Metrics as disabled.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		defaultMetrics, _ = NewMetrics(otel.GetMeterProvider())
	})
	return defaultMetrics
}
