package observability

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
)

const meterName = "dwiju-assistant/backend"

// SetupTracing installs a global tracer provider exporting spans to w.
// The returned func flushes and stops it.
func SetupTracing(serviceName string, w io.Writer) (func(context.Context) error, error) {
	exp, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		return nil, fmt.Errorf("initialize stdouttrace exporter: %w", err)
	}
	// Schemaless so the merge never conflicts with the SDK's default schema.
	res, err := resource.Merge(
		resource.Default(),
		resource.NewSchemaless(semconv.ServiceName(serviceName)),
	)
	if err != nil {
		return nil, fmt.Errorf("build resource: %w", err)
	}
	provider := trace.NewTracerProvider(
		trace.WithBatcher(exp),
		trace.WithResource(res),
	)
	otel.SetTracerProvider(provider)
	return provider.Shutdown, nil
}

// Metrics records service-level measurements. A nil *Metrics discards
// everything, so callers never need to check.
type Metrics struct {
	exchanges       otelmetric.Int64Counter
	usageIncrements otelmetric.Int64Counter
	providerLatency otelmetric.Float64Histogram
}

// SetupPrometheusMetrics builds an OpenTelemetry meter provider backed by a
// Prometheus registry and returns the instruments plus the /metrics handler.
func SetupPrometheusMetrics() (*Metrics, http.Handler, *metric.MeterProvider, error) {
	reg := promclient.NewRegistry()
	exp, err := prometheus.New(prometheus.WithRegisterer(reg))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("initialize prometheus exporter: %w", err)
	}
	mp := metric.NewMeterProvider(metric.WithReader(exp))

	m, err := NewMetrics(mp.Meter(meterName))
	if err != nil {
		return nil, nil, nil, err
	}
	return m, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), mp, nil
}

// NewMetrics creates the instruments on meter.
func NewMetrics(meter otelmetric.Meter) (*Metrics, error) {
	exchanges, err := meter.Int64Counter("chat_exchanges",
		otelmetric.WithDescription("Chat exchanges by outcome"))
	if err != nil {
		return nil, err
	}
	usage, err := meter.Int64Counter("usage_increments",
		otelmetric.WithDescription("Account usage counter increments by kind and result"))
	if err != nil {
		return nil, err
	}
	latency, err := meter.Float64Histogram("provider_latency",
		otelmetric.WithDescription("Text-generation provider round trip"),
		otelmetric.WithUnit("s"))
	if err != nil {
		return nil, err
	}
	return &Metrics{exchanges: exchanges, usageIncrements: usage, providerLatency: latency}, nil
}

// RecordExchange counts one chat exchange ending in outcome.
func (m *Metrics) RecordExchange(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.exchanges.Add(ctx, 1, otelmetric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordProviderLatency records one provider call.
func (m *Metrics) RecordProviderLatency(ctx context.Context, d time.Duration, outcome string) {
	if m == nil {
		return
	}
	m.providerLatency.Record(ctx, d.Seconds(), otelmetric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordUsageIncrement counts one usage increment attempt.
func (m *Metrics) RecordUsageIncrement(ctx context.Context, kind string, ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "failed"
	}
	m.usageIncrements.Add(ctx, 1, otelmetric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("result", result),
	))
}
