// Package observe provides application-wide observability primitives:
// OpenTelemetry metrics, tracing, structured logging helpers, and HTTP
// middleware for the diagnostics endpoint.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so metrics can be scraped
// from the standard /metrics endpoint. A package-level default [Metrics]
// instance ([DefaultMetrics]) is provided for convenience; tests should use
// [NewMetrics] with a custom [metric.MeterProvider] to avoid cross-test
// pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all correx metrics.
const meterName = "github.com/correx/correx"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// CorrectionDuration tracks whole correction rounds, trigger to
	// replacement.
	CorrectionDuration metric.Float64Histogram

	// CandidateDuration tracks individual AI correction calls.
	CandidateDuration metric.Float64Histogram

	// ReplacementDuration tracks text replacement attempts.
	ReplacementDuration metric.Float64Histogram

	// RecognitionDuration tracks speech recognition latency per engine.
	RecognitionDuration metric.Float64Histogram

	// --- Counters ---

	// CorrectionRounds counts rounds. Use with attribute:
	//   attribute.String("status", ...)
	CorrectionRounds metric.Int64Counter

	// Candidates counts generated candidates. Use with attributes:
	//   attribute.String("tone", ...), attribute.String("status", ...)
	Candidates metric.Int64Counter

	// ReplacementAttempts counts replacement attempts. Use with attributes:
	//   attribute.String("method", ...), attribute.String("status", ...)
	ReplacementAttempts metric.Int64Counter

	// Utterances counts dictated utterances. Use with attributes:
	//   attribute.String("engine", ...), attribute.String("status", ...)
	Utterances metric.Int64Counter

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveDictation tracks whether the listen loop is running (0 or 1).
	ActiveDictation metric.Int64UpDownCounter

	// TrackedWindows tracks the number of live window buffers.
	TrackedWindows metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks diagnostics endpoint request time. Use
	// with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// interactive correction latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.CorrectionDuration, err = m.Float64Histogram("correx.correction.duration",
		metric.WithDescription("Latency of a whole correction round."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.CandidateDuration, err = m.Float64Histogram("correx.candidate.duration",
		metric.WithDescription("Latency of individual AI correction calls."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ReplacementDuration, err = m.Float64Histogram("correx.replacement.duration",
		metric.WithDescription("Latency of text replacement attempts."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.RecognitionDuration, err = m.Float64Histogram("correx.recognition.duration",
		metric.WithDescription("Latency of speech recognition per engine."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.CorrectionRounds, err = m.Int64Counter("correx.correction.rounds",
		metric.WithDescription("Total correction rounds by status."),
	); err != nil {
		return nil, err
	}
	if met.Candidates, err = m.Int64Counter("correx.candidates",
		metric.WithDescription("Total candidates generated by tone and status."),
	); err != nil {
		return nil, err
	}
	if met.ReplacementAttempts, err = m.Int64Counter("correx.replacement.attempts",
		metric.WithDescription("Total replacement attempts by method and status."),
	); err != nil {
		return nil, err
	}
	if met.Utterances, err = m.Int64Counter("correx.utterances",
		metric.WithDescription("Total dictated utterances by engine and status."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("correx.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveDictation, err = m.Int64UpDownCounter("correx.dictation.active",
		metric.WithDescription("Whether the dictation listen loop is running."),
	); err != nil {
		return nil, err
	}
	if met.TrackedWindows, err = m.Int64UpDownCounter("correx.windows.tracked",
		metric.WithDescription("Number of live window keystroke buffers."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("correx.http.request.duration",
		metric.WithDescription("Diagnostics endpoint latency by method and path."),
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

// RecordRound records one completed correction round.
func (m *Metrics) RecordRound(ctx context.Context, seconds float64, status string) {
	attrs := metric.WithAttributes(attribute.String("status", status))
	m.CorrectionRounds.Add(ctx, 1, attrs)
	m.CorrectionDuration.Record(ctx, seconds, attrs)
}

// RecordReplacement records one replacement attempt.
func (m *Metrics) RecordReplacement(ctx context.Context, seconds float64, method, status string) {
	attrs := metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("status", status),
	)
	m.ReplacementAttempts.Add(ctx, 1, attrs)
	m.ReplacementDuration.Record(ctx, seconds, attrs)
}

// RecordUtterance records one recognition outcome.
func (m *Metrics) RecordUtterance(ctx context.Context, seconds float64, engine, status string) {
	attrs := metric.WithAttributes(
		attribute.String("engine", engine),
		attribute.String("status", status),
	)
	m.Utterances.Add(ctx, 1, attrs)
	m.RecognitionDuration.Record(ctx, seconds, attrs)
}

// RecordProviderError records a provider error counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}
