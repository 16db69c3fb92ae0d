package observe

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// DefaultServiceName is reported when TelemetryConfig.ServiceName is empty.
const DefaultServiceName = "parley"

// TelemetryConfig describes this process in exported telemetry.
type TelemetryConfig struct {
	ServiceName    string
	ServiceVersion string

	// Environment is reported as deployment.environment when set.
	Environment string

	// Attributes are added to the resource, e.g. the practice language or
	// the storage driver, so every scraped series can be told apart.
	Attributes []attribute.KeyValue

	// SpanExporter receives finished spans. Nil records spans without
	// exporting them.
	SpanExporter sdktrace.SpanExporter

	// Registerer receives the Prometheus collector. Nil means the default
	// registry, which is what /metrics serves.
	Registerer prometheus.Registerer
}

// Telemetry owns the SDK providers installed by [Setup] and the practice
// instruments built on them.
type Telemetry struct {
	Metrics  *Metrics
	Resource *resource.Resource

	meters *sdkmetric.MeterProvider
	traces *sdktrace.TracerProvider
}

// Setup builds the meter and tracer providers for cfg, installs them as the
// OTel globals and creates the [Metrics] the application records into.
// Metrics are exported through the Prometheus bridge.
func Setup(cfg TelemetryConfig) (*Telemetry, error) {
	res, err := newResource(cfg)
	if err != nil {
		return nil, fmt.Errorf("observe: resource: %w", err)
	}

	var expOpts []promexporter.Option
	if cfg.Registerer != nil {
		expOpts = append(expOpts, promexporter.WithRegisterer(cfg.Registerer))
	}
	exp, err := promexporter.New(expOpts...)
	if err != nil {
		return nil, fmt.Errorf("observe: prometheus exporter: %w", err)
	}
	meters := sdkmetric.NewMeterProvider(sdkmetric.WithResource(res), sdkmetric.WithReader(exp))

	tpOpts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	if cfg.SpanExporter != nil {
		tpOpts = append(tpOpts, sdktrace.WithBatcher(cfg.SpanExporter))
	}
	traces := sdktrace.NewTracerProvider(tpOpts...)

	m, err := NewMetrics(meters)
	if err != nil {
		return nil, errors.Join(err, meters.Shutdown(context.Background()), traces.Shutdown(context.Background()))
	}

	otel.SetMeterProvider(meters)
	otel.SetTracerProvider(traces)
	return &Telemetry{Metrics: m, Resource: res, meters: meters, traces: traces}, nil
}

func newResource(cfg TelemetryConfig) (*resource.Resource, error) {
	name := cfg.ServiceName
	if name == "" {
		name = DefaultServiceName
	}
	attrs := []attribute.KeyValue{semconv.ServiceName(name)}
	if cfg.ServiceVersion != "" {
		attrs = append(attrs, semconv.ServiceVersion(cfg.ServiceVersion))
	}
	if cfg.Environment != "" {
		attrs = append(attrs, semconv.DeploymentEnvironment(cfg.Environment))
	}
	attrs = append(attrs, cfg.Attributes...)

	// Schemaless, so merging never conflicts with the SDK's own schema URL.
	return resource.Merge(resource.Default(), resource.NewSchemaless(attrs...))
}

// Shutdown flushes pending spans and stops both providers.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	return errors.Join(t.traces.Shutdown(ctx), t.meters.Shutdown(ctx))
}
