// Package observe provides application-wide observability primitives:
// OpenTelemetry metrics, tracing, and the HTTP middleware tying them
// together.
//
// Metrics are recorded through the OpenTelemetry Metrics API and exported
// through a Prometheus bridge registered by [InitProvider], so the standard
// /metrics endpoint keeps working. Tests construct their own [Metrics] with
// [NewMetrics] to avoid cross-test pollution.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope for all pipeline metrics.
const meterName = "github.com/asaficontact/reflective-resonance"

// Metrics holds the metric instruments of the broadcast pipeline. All fields
// are safe for concurrent use.
type Metrics struct {
	// Latency histograms per pipeline stage.
	LLMDuration       metric.Float64Histogram
	TTSDuration       metric.Float64Histogram
	STTDuration       metric.Float64Histogram
	DecomposeDuration metric.Float64Histogram
	TurnDuration      metric.Float64Histogram

	// BroadcastsStarted counts broadcast requests.
	BroadcastsStarted metric.Int64Counter

	// SlotResults counts per-slot outcomes. Attributes: turn, status.
	SlotResults metric.Int64Counter

	// DecomposeJobs counts decomposition outcomes. Attribute: status
	// (ok, failed, timeout, dropped).
	DecomposeJobs metric.Int64Counter

	// EventsEmitted and EventsDropped count controller events by type.
	EventsEmitted metric.Int64Counter
	EventsDropped metric.Int64Counter

	// ActiveBroadcasts tracks the number of in-flight workflows.
	ActiveBroadcasts metric.Int64UpDownCounter

	// HTTPRequestDuration tracks HTTP latency by method and path.
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets covers the pipeline's spread: sub-second decompositions up
// to multi-second LLM and TTS calls.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
}

// NewMetrics creates all instruments against the given provider.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	histograms := []struct {
		dst  *metric.Float64Histogram
		name string
		desc string
	}{
		{&met.LLMDuration, "resonance.llm.duration", "Latency of structured LLM completions."},
		{&met.TTSDuration, "resonance.tts.duration", "Latency of TTS synthesis."},
		{&met.STTDuration, "resonance.stt.duration", "Latency of speech-to-text transcription."},
		{&met.DecomposeDuration, "resonance.decompose.duration", "Latency of wave decomposition jobs."},
		{&met.TurnDuration, "resonance.turn.duration", "Wall-clock duration of a workflow turn."},
	}
	for _, h := range histograms {
		if *h.dst, err = m.Float64Histogram(h.name,
			metric.WithDescription(h.desc),
			metric.WithUnit("s"),
			metric.WithExplicitBucketBoundaries(latencyBuckets...),
		); err != nil {
			return nil, err
		}
	}

	if met.BroadcastsStarted, err = m.Int64Counter("resonance.broadcasts.started",
		metric.WithDescription("Total broadcast requests accepted."),
	); err != nil {
		return nil, err
	}
	if met.SlotResults, err = m.Int64Counter("resonance.slot.results",
		metric.WithDescription("Per-slot turn outcomes by turn and status."),
	); err != nil {
		return nil, err
	}
	if met.DecomposeJobs, err = m.Int64Counter("resonance.decompose.jobs",
		metric.WithDescription("Decomposition job outcomes by status."),
	); err != nil {
		return nil, err
	}
	if met.EventsEmitted, err = m.Int64Counter("resonance.events.emitted",
		metric.WithDescription("Controller events delivered by type."),
	); err != nil {
		return nil, err
	}
	if met.EventsDropped, err = m.Int64Counter("resonance.events.dropped",
		metric.WithDescription("Controller events dropped by type."),
	); err != nil {
		return nil, err
	}
	if met.ActiveBroadcasts, err = m.Int64UpDownCounter("resonance.active_broadcasts",
		metric.WithDescription("Number of in-flight broadcast workflows."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("resonance.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
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

// DefaultMetrics returns the package-level [Metrics], created on first call
// from the global meter provider.
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

// RecordTurnDuration records one turn's wall-clock duration.
func (m *Metrics) RecordTurnDuration(ctx context.Context, turn int, d time.Duration) {
	m.TurnDuration.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.Int("turn", turn)))
}

// RecordSlotResult increments the per-slot outcome counter.
func (m *Metrics) RecordSlotResult(ctx context.Context, turn int, status string) {
	m.SlotResults.Add(ctx, 1, metric.WithAttributes(
		attribute.Int("turn", turn),
		attribute.String("status", status),
	))
}

// RecordDecomposeJob increments the decomposition outcome counter.
func (m *Metrics) RecordDecomposeJob(ctx context.Context, status string) {
	m.DecomposeJobs.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

// RecordEvent counts one controller event as emitted or dropped.
func (m *Metrics) RecordEvent(ctx context.Context, eventType string, dropped bool) {
	attrs := metric.WithAttributes(attribute.String("type", eventType))
	if dropped {
		m.EventsDropped.Add(ctx, 1, attrs)
		return
	}
	m.EventsEmitted.Add(ctx, 1, attrs)
}
