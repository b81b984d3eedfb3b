// Package observe provides application-wide observability primitives for
// Overtitle: OpenTelemetry metrics, tracing, structured logging, and HTTP
// middleware that ties them together.
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

// meterName is the instrumentation scope name used for all Overtitle metrics.
const meterName = "github.com/overtitle/overtitle"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	meter metric.Meter

	// --- Latency histograms ---

	// IngestDuration tracks how long one segment batch takes to flow through
	// the aggregator.
	IngestDuration metric.Float64Histogram

	// TranslationDuration tracks translation provider latency.
	TranslationDuration metric.Float64Histogram

	// --- Counters ---

	// SegmentsIngested counts accepted caption segments. Use with attribute:
	//   attribute.String("language", ...)
	SegmentsIngested metric.Int64Counter

	// SegmentsDropped counts segments rejected at ingestion. Use with attribute:
	//   attribute.String("reason", ...)
	SegmentsDropped metric.Int64Counter

	// ConnectionDrops counts caption stream disconnections.
	ConnectionDrops metric.Int64Counter

	// ReconnectAttempts counts scheduled reconnection attempts.
	ReconnectAttempts metric.Int64Counter

	// TranslationErrors counts failed translation requests. Use with attribute:
	//   attribute.String("language", ...)
	TranslationErrors metric.Int64Counter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for sub-second caption latencies.
var latencyBuckets = []float64{
	0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{meter: m}

	// Histograms.
	if met.IngestDuration, err = m.Float64Histogram("overtitle.caption.ingest.duration",
		metric.WithDescription("Latency of one segment batch through the aggregator."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TranslationDuration, err = m.Float64Histogram("overtitle.translation.duration",
		metric.WithDescription("Latency of translation provider requests."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.SegmentsIngested, err = m.Int64Counter("overtitle.caption.segments",
		metric.WithDescription("Total accepted caption segments by language."),
	); err != nil {
		return nil, err
	}
	if met.SegmentsDropped, err = m.Int64Counter("overtitle.caption.segments_dropped",
		metric.WithDescription("Total segments rejected at ingestion by reason."),
	); err != nil {
		return nil, err
	}
	if met.ConnectionDrops, err = m.Int64Counter("overtitle.transport.drops",
		metric.WithDescription("Total caption stream disconnections."),
	); err != nil {
		return nil, err
	}
	if met.ReconnectAttempts, err = m.Int64Counter("overtitle.transport.reconnects",
		metric.WithDescription("Total scheduled reconnection attempts."),
	); err != nil {
		return nil, err
	}
	if met.TranslationErrors, err = m.Int64Counter("overtitle.translation.errors",
		metric.WithDescription("Total failed translation requests by language."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("overtitle.http.request.duration",
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

// RegisterActiveLanguages registers an observable gauge that reports the
// number of languages currently holding caption content. count is invoked on
// every metrics collection and must be safe for concurrent use.
func (m *Metrics) RegisterActiveLanguages(count func() int) error {
	_, err := m.meter.Int64ObservableGauge("overtitle.caption.active_languages",
		metric.WithDescription("Number of languages currently holding caption content."),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(int64(count()))
			return nil
		}),
	)
	return err
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordSegment records an accepted caption segment for language.
func (m *Metrics) RecordSegment(ctx context.Context, language string) {
	m.SegmentsIngested.Add(ctx, 1,
		metric.WithAttributes(attribute.String("language", language)),
	)
}

// RecordDrop records a rejected segment with the given reason.
func (m *Metrics) RecordDrop(ctx context.Context, reason string) {
	m.SegmentsDropped.Add(ctx, 1,
		metric.WithAttributes(attribute.String("reason", reason)),
	)
}

// RecordTranslationError records a failed translation request for language.
func (m *Metrics) RecordTranslationError(ctx context.Context, language string) {
	m.TranslationErrors.Add(ctx, 1,
		metric.WithAttributes(attribute.String("language", language)),
	)
}
