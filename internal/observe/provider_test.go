package observe

import (
	"context"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

func TestSetup_ExportsPracticeMetrics(t *testing.T) {
	origMP, origTP := otel.GetMeterProvider(), otel.GetTracerProvider()
	t.Cleanup(func() {
		otel.SetMeterProvider(origMP)
		otel.SetTracerProvider(origTP)
	})

	reg := prometheus.NewRegistry()
	tel, err := Setup(TelemetryConfig{
		ServiceVersion: "1.2.3",
		Environment:    "test",
		Attributes:     []attribute.KeyValue{attribute.String("parley.language", "Spanish")},
		Registerer:     reg,
	})
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	t.Cleanup(func() { _ = tel.Shutdown(context.Background()) })

	if otel.GetMeterProvider() != tel.meters || otel.GetTracerProvider() != tel.traces {
		t.Error("providers not installed as globals")
	}
	for _, want := range []attribute.KeyValue{
		semconv.ServiceName(DefaultServiceName),
		semconv.ServiceVersion("1.2.3"),
		semconv.DeploymentEnvironment("test"),
		attribute.String("parley.language", "Spanish"),
	} {
		got, ok := tel.Resource.Set().Value(want.Key)
		if !ok || got != want.Value {
			t.Errorf("resource %s = %v, want %v", want.Key, got.Emit(), want.Value.Emit())
		}
	}

	tel.Metrics.Turns.Add(context.Background(), 1)
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	var turns, target bool
	for _, f := range families {
		switch name := f.GetName(); {
		case strings.HasPrefix(name, "parley_turns"):
			turns = true
		case name == "target_info":
			target = true
			labels := map[string]string{}
			for _, l := range f.GetMetric()[0].GetLabel() {
				labels[l.GetName()] = l.GetValue()
			}
			if labels["service_name"] != DefaultServiceName || labels["parley_language"] != "Spanish" {
				t.Errorf("target_info labels = %v", labels)
			}
		}
	}
	if !turns || !target {
		t.Errorf("gathered turns=%v target_info=%v, want both", turns, target)
	}
}

func TestSetup_ServiceName(t *testing.T) {
	res, err := newResource(TelemetryConfig{ServiceName: "parley-kiosk"})
	if err != nil {
		t.Fatal(err)
	}
	if v, _ := res.Set().Value(semconv.ServiceNameKey); v.AsString() != "parley-kiosk" {
		t.Errorf("service.name = %q", v.AsString())
	}
	if _, ok := res.Set().Value(semconv.ServiceVersionKey); ok {
		t.Error("empty version reported")
	}
}
