// Package observe provides the daemon's OpenTelemetry metrics.
//
// Instruments are created from a [metric.MeterProvider]; the daemon installs a
// Prometheus exporter bridge via [InitProvider] and serves /metrics. Tests use
// [NewMetrics] with a ManualReader-backed provider. All Record* helpers accept
// a nil *Metrics so components can run without instrumentation.
package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "voxgit"

type Metrics struct {
	// STTDuration tracks one capture-and-transcribe cycle.
	STTDuration metric.Float64Histogram

	// LLMDuration tracks completion latency. Attribute: "purpose".
	LLMDuration metric.Float64Histogram

	// ExecDuration tracks shell execution time. Attribute: "outcome".
	ExecDuration metric.Float64Histogram

	// WakeDetections counts detector hits. Attribute: "result" (accepted|debounced).
	WakeDetections metric.Int64Counter

	// Captures counts capture cycles. Attribute: "result" (transcript|empty|error).
	Captures metric.Int64Counter

	// Routes counts routing decisions. Attribute: "intent".
	Routes metric.Int64Counter

	// Plans counts produced plans. Attribute: "risk".
	Plans metric.Int64Counter

	// Executions counts executed plans. Attributes: "risk", "outcome".
	Executions metric.Int64Counter

	// Dropped counts triggers dropped by a busy single-flight guard.
	// Attribute: "guard" (capture|auto_route).
	Dropped metric.Int64Counter

	// ProviderErrors counts collaborator failures. Attribute: "provider".
	ProviderErrors metric.Int64Counter
}

var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60,
}

func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.STTDuration, err = m.Float64Histogram("voxgit.stt.duration",
		metric.WithDescription("Latency of speech capture and transcription."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.LLMDuration, err = m.Float64Histogram("voxgit.llm.duration",
		metric.WithDescription("Latency of LLM completions by purpose."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ExecDuration, err = m.Float64Histogram("voxgit.exec.duration",
		metric.WithDescription("Duration of planned command executions."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	if met.WakeDetections, err = m.Int64Counter("voxgit.wake.detections",
		metric.WithDescription("Wake-word detections by result."),
	); err != nil {
		return nil, err
	}
	if met.Captures, err = m.Int64Counter("voxgit.captures",
		metric.WithDescription("Speech capture cycles by result."),
	); err != nil {
		return nil, err
	}
	if met.Routes, err = m.Int64Counter("voxgit.routes",
		metric.WithDescription("Routed transcripts by intent."),
	); err != nil {
		return nil, err
	}
	if met.Plans, err = m.Int64Counter("voxgit.plans",
		metric.WithDescription("Command plans by risk tier."),
	); err != nil {
		return nil, err
	}
	if met.Executions, err = m.Int64Counter("voxgit.executions",
		metric.WithDescription("Executed plans by risk tier and outcome."),
	); err != nil {
		return nil, err
	}
	if met.Dropped, err = m.Int64Counter("voxgit.guard.dropped",
		metric.WithDescription("Triggers dropped because a cycle was already in flight."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("voxgit.provider.errors",
		metric.WithDescription("Collaborator failures by provider."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

func (m *Metrics) RecordWake(ctx context.Context, accepted bool) {
	if m == nil {
		return
	}
	result := "accepted"
	if !accepted {
		result = "debounced"
	}
	m.WakeDetections.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

func (m *Metrics) RecordCapture(ctx context.Context, result string, d time.Duration) {
	if m == nil {
		return
	}
	m.Captures.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
	m.STTDuration.Record(ctx, d.Seconds())
}

func (m *Metrics) RecordRoute(ctx context.Context, intent string) {
	if m == nil {
		return
	}
	m.Routes.Add(ctx, 1, metric.WithAttributes(attribute.String("intent", intent)))
}

func (m *Metrics) RecordPlan(ctx context.Context, risk string) {
	if m == nil {
		return
	}
	m.Plans.Add(ctx, 1, metric.WithAttributes(attribute.String("risk", risk)))
}

func (m *Metrics) RecordExecution(ctx context.Context, risk, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.Executions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("risk", risk),
		attribute.String("outcome", outcome),
	))
	m.ExecDuration.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (m *Metrics) RecordLLM(ctx context.Context, purpose string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.LLMDuration.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("purpose", purpose)))
	if err != nil {
		m.ProviderErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("provider", "llm")))
	}
}

func (m *Metrics) RecordDropped(ctx context.Context, guard string) {
	if m == nil {
		return
	}
	m.Dropped.Add(ctx, 1, metric.WithAttributes(attribute.String("guard", guard)))
}

func (m *Metrics) RecordProviderError(ctx context.Context, provider string) {
	if m == nil {
		return
	}
	m.ProviderErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("provider", provider)))
}
