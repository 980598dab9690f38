// Package observe provides the OpenTelemetry metrics for the recognition
// pipeline and the Prometheus bridge that serves them at /metrics.
//
// Tests should build a [Metrics] with [NewMetrics] over their own
// [metric.MeterProvider]; [DefaultMetrics] uses the global provider.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/ayusman/mudra"

// Metrics holds all metric instruments. Safe for concurrent use.
type Metrics struct {
	// Frames counts detector frames by outcome: vector, no_hands, malformed.
	Frames metric.Int64Counter

	// Dispatches counts gate decisions by result: sent, not_full, in_flight, throttled.
	Dispatches metric.Int64Counter

	// Completions counts classifier completions by status: applied, stale, failed.
	Completions metric.Int64Counter

	// ClassifierDuration tracks classifier round-trip latency.
	ClassifierDuration metric.Float64Histogram

	// ClassifierErrors counts classifier failures by kind: status, malformed, transport, canceled.
	ClassifierErrors metric.Int64Counter

	// Utterances counts speech decisions by action: spoken, suppressed.
	Utterances metric.Int64Counter

	// ActiveSessions tracks running recognition sessions.
	ActiveSessions metric.Int64UpDownCounter

	// HTTPRequestDuration tracks API latency by method and path.
	HTTPRequestDuration metric.Float64Histogram

	// Actions counts bound plugin runs by result: ok, rejected, failed, dropped.
	Actions metric.Int64Counter

	// CaptureErrors counts camera and detector failures by stage.
	CaptureErrors metric.Int64Counter
}

var latencyBuckets = []float64{
	0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates all instruments on the given provider.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.Frames, err = m.Int64Counter("mudra.frames",
		metric.WithDescription("Detector frames by feature outcome."),
	); err != nil {
		return nil, err
	}
	if met.Dispatches, err = m.Int64Counter("mudra.dispatches",
		metric.WithDescription("Inference gate decisions by result."),
	); err != nil {
		return nil, err
	}
	if met.Completions, err = m.Int64Counter("mudra.completions",
		metric.WithDescription("Classifier completions by status."),
	); err != nil {
		return nil, err
	}
	if met.ClassifierDuration, err = m.Float64Histogram("mudra.classifier.duration",
		metric.WithDescription("Latency of remote classifier calls."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ClassifierErrors, err = m.Int64Counter("mudra.classifier.errors",
		metric.WithDescription("Classifier failures by kind."),
	); err != nil {
		return nil, err
	}
	if met.Utterances, err = m.Int64Counter("mudra.speech.decisions",
		metric.WithDescription("Speech deduper decisions by action."),
	); err != nil {
		return nil, err
	}
	if met.ActiveSessions, err = m.Int64UpDownCounter("mudra.active_sessions",
		metric.WithDescription("Number of running recognition sessions."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("mudra.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}
	if met.Actions, err = m.Int64Counter("mudra.actions",
		metric.WithDescription("Plugin actions fired for spoken labels, by result."),
	); err != nil {
		return nil, err
	}
	if met.CaptureErrors, err = m.Int64Counter("mudra.capture.errors",
		metric.WithDescription("Camera and hand detector failures by stage."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the process-wide Metrics built on the global
// provider. Panics if instrument creation fails.
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

// RecordFrame counts one detector frame.
func (m *Metrics) RecordFrame(ctx context.Context, outcome string) {
	m.Frames.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordDispatch counts one gate decision.
func (m *Metrics) RecordDispatch(ctx context.Context, result string) {
	m.Dispatches.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

// RecordCompletion counts one classifier completion.
func (m *Metrics) RecordCompletion(ctx context.Context, status string) {
	m.Completions.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

// RecordClassifierCall records latency and, when kind is non-empty, an error.
func (m *Metrics) RecordClassifierCall(ctx context.Context, d time.Duration, kind string) {
	m.ClassifierDuration.Record(ctx, d.Seconds())
	if kind != "" {
		m.ClassifierErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
	}
}

// RecordUtterance counts one speech decision.
func (m *Metrics) RecordUtterance(ctx context.Context, action string) {
	m.Utterances.Add(ctx, 1, metric.WithAttributes(attribute.String("action", action)))
}

// RecordAction counts one bound plugin run.
func (m *Metrics) RecordAction(ctx context.Context, result string) {
	m.Actions.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

// RecordCaptureError counts one camera or detector failure.
func (m *Metrics) RecordCaptureError(ctx context.Context, stage string) {
	m.CaptureErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("stage", stage)))
}
