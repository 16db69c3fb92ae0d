// Package observe provides application-wide observability primitives for
// Parley: OpenTelemetry metrics, tracing helpers, trace-aware logging and a
// small HTTP server exposing /metrics and /healthz.
//
// Metrics are recorded through the OpenTelemetry Metrics API. [Setup]
// bridges them to Prometheus so they can be scraped. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Parley metrics.
const meterName = "github.com/MrWong99/parley"

// Remote call kinds, used as the "kind" attribute.
const (
	CallFeedback    = "feedback"
	CallAssessment  = "assessment"
	CallCoachLine   = "coach_line"
	CallOpeningLine = "opening_line"
	CallPersonalize = "personalize"
	CallSpeech      = "speech"
	CallLiveOpen    = "live_open"
)

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// RemoteCallDuration tracks remote model latency by "kind" and "status".
	RemoteCallDuration metric.Float64Histogram

	// RemoteCallErrors counts failed remote calls by "kind".
	RemoteCallErrors metric.Int64Counter

	// TransportFrames counts audio frames offered to the live channel by
	// "status" (sent|failed).
	TransportFrames metric.Int64Counter

	// Turns counts evaluated user turns.
	Turns metric.Int64Counter

	// Completions counts finished scenarios by "result" (pass|fail).
	Completions metric.Int64Counter

	// StatusTransitions counts session state changes by target "status".
	StatusTransitions metric.Int64Counter

	// ActiveSessions tracks the number of open practice sessions.
	ActiveSessions metric.Int64UpDownCounter

	// HTTPRequestDuration tracks HTTP request processing time by "method"
	// and "path".
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets are histogram boundaries in seconds, sized for model calls
// that range from sub-second speech synthesis to 45 s assessments.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 45,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider].
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.RemoteCallDuration, err = m.Float64Histogram("parley.remote_call.duration",
		metric.WithDescription("Latency of remote model calls by kind and status."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.RemoteCallErrors, err = m.Int64Counter("parley.remote_call.errors",
		metric.WithDescription("Failed remote model calls by kind."),
	); err != nil {
		return nil, err
	}
	if met.TransportFrames, err = m.Int64Counter("parley.transport.frames",
		metric.WithDescription("Audio frames offered to the live channel by status."),
	); err != nil {
		return nil, err
	}
	if met.Turns, err = m.Int64Counter("parley.turns",
		metric.WithDescription("Evaluated user turns."),
	); err != nil {
		return nil, err
	}
	if met.Completions, err = m.Int64Counter("parley.scenario.completions",
		metric.WithDescription("Completed scenarios by result."),
	); err != nil {
		return nil, err
	}
	if met.StatusTransitions, err = m.Int64Counter("parley.session.transitions",
		metric.WithDescription("Session status changes by target status."),
	); err != nil {
		return nil, err
	}
	if met.ActiveSessions, err = m.Int64UpDownCounter("parley.active_sessions",
		metric.WithDescription("Number of open practice sessions."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("parley.http.request.duration",
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

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Panics if instrument creation
// fails (should not happen with the global provider).
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

// Attr is a convenience alias for [attribute.String].
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordRemoteCall records the latency of one remote call and, when err is
// non-nil, an error count.
func (m *Metrics) RecordRemoteCall(ctx context.Context, kind string, d time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
		m.RemoteCallErrors.Add(ctx, 1, metric.WithAttributes(Attr("kind", kind)))
	}
	m.RemoteCallDuration.Record(ctx, d.Seconds(),
		metric.WithAttributes(Attr("kind", kind), Attr("status", status)))
}

// RecordFrame counts one audio frame offered to the live channel.
func (m *Metrics) RecordFrame(ctx context.Context, err error) {
	status := "sent"
	if err != nil {
		status = "failed"
	}
	m.TransportFrames.Add(ctx, 1, metric.WithAttributes(Attr("status", status)))
}

// RecordFrameDropped counts a frame discarded because the uplink was
// congested.
func (m *Metrics) RecordFrameDropped(ctx context.Context) {
	m.TransportFrames.Add(ctx, 1, metric.WithAttributes(Attr("status", "dropped")))
}

// RecordCompletion counts a finished scenario.
func (m *Metrics) RecordCompletion(ctx context.Context, passed bool) {
	result := "fail"
	if passed {
		result = "pass"
	}
	m.Completions.Add(ctx, 1, metric.WithAttributes(Attr("result", result)))
}

// RecordTransition counts a session status change.
func (m *Metrics) RecordTransition(ctx context.Context, to string) {
	m.StatusTransitions.Add(ctx, 1, metric.WithAttributes(Attr("status", to)))
}
