package observe

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
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

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

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

// counterValue sums all data points of an Int64 sum whose attributes contain
// key=value.
func counterValue(t *testing.T, rm metricdata.ResourceMetrics, name, key, value string) int64 {
	t.Helper()
	met := findMetric(rm, name)
	if met == nil {
		t.Fatalf("metric %q not found", name)
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("metric %q data type = %T, want Sum[int64]", name, met.Data)
	}
	var total int64
	for _, dp := range sum.DataPoints {
		if v, ok := dp.Attributes.Value(attribute.Key(key)); ok && v.AsString() == value {
			total += dp.Value
		}
	}
	return total
}

func TestRecordRemoteCall(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordRemoteCall(ctx, CallFeedback, 120*time.Millisecond, nil)
	m.RecordRemoteCall(ctx, CallFeedback, 2*time.Second, errors.New("boom"))
	m.RecordRemoteCall(ctx, CallAssessment, time.Second, errors.New("boom"))

	rm := collect(t, reader)

	hist := findMetric(rm, "parley.remote_call.duration")
	if hist == nil {
		t.Fatal("duration histogram not found")
	}
	data, ok := hist.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatalf("histogram data type = %T", hist.Data)
	}
	var count uint64
	for _, dp := range data.DataPoints {
		count += dp.Count
	}
	if count != 3 {
		t.Errorf("histogram count = %d, want 3", count)
	}

	if got := counterValue(t, rm, "parley.remote_call.errors", "kind", CallFeedback); got != 1 {
		t.Errorf("feedback errors = %d, want 1", got)
	}
	if got := counterValue(t, rm, "parley.remote_call.errors", "kind", CallAssessment); got != 1 {
		t.Errorf("assessment errors = %d, want 1", got)
	}
}

func TestRecordFrameCompletionTransition(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordFrame(ctx, nil)
	m.RecordFrame(ctx, nil)
	m.RecordFrame(ctx, errors.New("closed"))
	m.RecordCompletion(ctx, true)
	m.RecordCompletion(ctx, false)
	m.RecordCompletion(ctx, true)
	m.RecordTransition(ctx, "ready")
	m.Turns.Add(ctx, 4)
	m.ActiveSessions.Add(ctx, 1)

	rm := collect(t, reader)

	tests := []struct {
		name, key, value string
		want             int64
	}{
		{"parley.transport.frames", "status", "sent", 2},
		{"parley.transport.frames", "status", "failed", 1},
		{"parley.scenario.completions", "result", "pass", 2},
		{"parley.scenario.completions", "result", "fail", 1},
		{"parley.session.transitions", "status", "ready", 1},
	}
	for _, tt := range tests {
		if got := counterValue(t, rm, tt.name, tt.key, tt.value); got != tt.want {
			t.Errorf("%s{%s=%s} = %d, want %d", tt.name, tt.key, tt.value, got, tt.want)
		}
	}

	if findMetric(rm, "parley.turns") == nil {
		t.Error("turns counter not found")
	}
	if findMetric(rm, "parley.active_sessions") == nil {
		t.Error("active sessions gauge not found")
	}
}

func TestDefaultMetrics_Singleton(t *testing.T) {
	if DefaultMetrics() != DefaultMetrics() {
		t.Error("DefaultMetrics returned different instances")
	}
}
