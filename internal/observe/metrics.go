// Package observe provides application-wide observability primitives for the
// Irene voice runtime: OpenTelemetry metrics, a Prometheus exporter bridge,
// and HTTP middleware.
//
// Metrics are recorded through the OpenTelemetry Metrics API and scraped via
// the standard /metrics endpoint. A package-level default [Metrics] instance
// ([DefaultMetrics]) is provided for convenience; tests should use
// [NewMetrics] with a custom [metric.MeterProvider] to avoid cross-test
// pollution.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Irene metrics.
const meterName = "github.com/droman42/irene"

// Metrics holds all OpenTelemetry metric instruments for the runtime.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// ASRDuration tracks speech-to-text transcription latency.
	ASRDuration metric.Float64Histogram

	// NLUDuration tracks end-to-end cascade recognition latency.
	NLUDuration metric.Float64Histogram

	// HandlerDuration tracks intent handler execution latency.
	HandlerDuration metric.Float64Histogram

	// TTSDuration tracks text-to-speech synthesis latency.
	TTSDuration metric.Float64Histogram

	// --- VAD counters ---

	// VoiceSegments counts segments emitted by the VAD. Attribute:
	//   attribute.Bool("truncated", ...)
	VoiceSegments metric.Int64Counter

	// DroppedFrames counts frames dropped by the VAD buffer cap.
	DroppedFrames metric.Int64Counter

	// MalformedFrames counts frames skipped for bad PCM layout.
	MalformedFrames metric.Int64Counter

	// --- NLU counters ---

	// IntentRecognitions counts cascade results. Attributes:
	//   attribute.String("provider", ...), attribute.String("intent", ...)
	IntentRecognitions metric.Int64Counter

	// FuzzyCacheLookups counts fuzzy-match cache probes. Attribute:
	//   attribute.String("result", "hit"|"miss")
	FuzzyCacheLookups metric.Int64Counter

	// --- Fire-and-forget counters ---

	// ActionsStarted counts background actions by domain.
	ActionsStarted metric.Int64Counter

	// ActionsCompleted counts finished actions. Attributes:
	//   attribute.String("domain", ...), attribute.String("status", ...)
	ActionsCompleted metric.Int64Counter

	// ActionRetries counts retry attempts by domain.
	ActionRetries metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of live room sessions.
	ActiveSessions metric.Int64UpDownCounter

	// ActiveActions tracks running fire-and-forget actions across all rooms.
	ActiveActions metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for voice-pipeline latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	histogram := func(name, desc string) metric.Float64Histogram {
		if err != nil {
			return nil
		}
		var h metric.Float64Histogram
		h, err = m.Float64Histogram(name,
			metric.WithDescription(desc),
			metric.WithUnit("s"),
			metric.WithExplicitBucketBoundaries(latencyBuckets...),
		)
		return h
	}
	counter := func(name, desc string) metric.Int64Counter {
		if err != nil {
			return nil
		}
		var c metric.Int64Counter
		c, err = m.Int64Counter(name, metric.WithDescription(desc))
		return c
	}

	met.ASRDuration = histogram("irene.asr.duration", "Latency of speech-to-text transcription.")
	met.NLUDuration = histogram("irene.nlu.duration", "Latency of cascade intent recognition.")
	met.HandlerDuration = histogram("irene.handler.duration", "Latency of intent handler execution.")
	met.TTSDuration = histogram("irene.tts.duration", "Latency of text-to-speech synthesis.")
	met.HTTPRequestDuration = histogram("irene.http.request.duration", "HTTP request latency by method and path.")

	met.VoiceSegments = counter("irene.vad.segments", "Voice segments emitted by the VAD.")
	met.DroppedFrames = counter("irene.vad.dropped_frames", "Frames dropped by the VAD buffer cap.")
	met.MalformedFrames = counter("irene.vad.malformed_frames", "Frames skipped for bad PCM layout.")

	met.IntentRecognitions = counter("irene.nlu.recognitions", "Cascade results by provider and intent.")
	met.FuzzyCacheLookups = counter("irene.nlu.fuzzy_cache.lookups", "Fuzzy-match cache probes by result.")

	met.ActionsStarted = counter("irene.actions.started", "Fire-and-forget actions started by domain.")
	met.ActionsCompleted = counter("irene.actions.completed", "Fire-and-forget actions finished by domain and status.")
	met.ActionRetries = counter("irene.actions.retries", "Fire-and-forget retry attempts by domain.")

	if err != nil {
		return nil, err
	}

	if met.ActiveSessions, err = m.Int64UpDownCounter("irene.active_sessions",
		metric.WithDescription("Number of live room sessions."),
	); err != nil {
		return nil, err
	}
	if met.ActiveActions, err = m.Int64UpDownCounter("irene.active_actions",
		metric.WithDescription("Running fire-and-forget actions across all rooms."),
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

// RecordStage records a stage latency histogram sample measured from start.
func RecordStage(ctx context.Context, h metric.Float64Histogram, start time.Time, attrs ...attribute.KeyValue) {
	h.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(attrs...))
}

// RecordRecognition increments the cascade-result counter with the standard
// attribute set.
func (m *Metrics) RecordRecognition(ctx context.Context, provider, intent string) {
	m.IntentRecognitions.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("intent", intent),
		),
	)
}

// RecordActionFinished increments the completed-actions counter with the
// standard attribute set.
func (m *Metrics) RecordActionFinished(ctx context.Context, domain, status string) {
	m.ActionsCompleted.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("domain", domain),
			attribute.String("status", status),
		),
	)
}
