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
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
)

// InstrumentationName names the meter and tracer used across the module.
const InstrumentationName = "realtime-voice-agent"

// ShutdownFunc flushes and stops a provider.
type ShutdownFunc func(ctx context.Context) error

func newResource(serviceName string) *resource.Resource {
	res, err := resource.Merge(
		resource.Default(),
		resource.NewSchemaless(semconv.ServiceName(serviceName)),
	)
	if err != nil {
		return resource.Default()
	}
	return res
}

// SetupTracing installs a global tracer provider exporting spans to w as
// JSON lines. When disabled the global no-op provider is left in place.
func SetupTracing(serviceName string, enabled bool, w io.Writer) (ShutdownFunc, error) {
	if !enabled {
		return func(context.Context) error { return nil }, nil
	}

	exp, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize stdouttrace exporter: %w", err)
	}
	provider := trace.NewTracerProvider(
		trace.WithBatcher(exp),
		trace.WithResource(newResource(serviceName)),
	)
	otel.SetTracerProvider(provider)
	return provider.Shutdown, nil
}

// Metrics owns the meter provider and the instruments recorded by the
// broker and the agent.
type Metrics struct {
	provider otelmetric.MeterProvider
	handler  http.Handler
	shutdown ShutdownFunc

	sessions        otelmetric.Int64Counter
	upstreamLatency otelmetric.Float64Histogram
	eventsIngested  otelmetric.Int64Counter
	eventsDropped   otelmetric.Int64Counter
	breakerChanges  otelmetric.Int64Counter
	feedClients     otelmetric.Int64UpDownCounter
}

// SetupMetrics builds a Prometheus-backed meter provider with its own
// registry. When disabled every instrument is a no-op and Handler returns
// 404.
func SetupMetrics(serviceName string, enabled bool) (*Metrics, error) {
	if !enabled {
		m := &Metrics{
			provider: noop.NewMeterProvider(),
			handler:  http.NotFoundHandler(),
			shutdown: func(context.Context) error { return nil },
		}
		return m, m.init()
	}

	registry := promclient.NewRegistry()
	exp, err := prometheus.New(prometheus.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize prometheus exporter: %w", err)
	}
	mp := metric.NewMeterProvider(
		metric.WithReader(exp),
		metric.WithResource(newResource(serviceName)),
	)

	m := &Metrics{
		provider: mp,
		handler:  promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		shutdown: mp.Shutdown,
	}
	return m, m.init()
}

func (m *Metrics) init() error {
	meter := m.provider.Meter(InstrumentationName)

	var err error
	if m.sessions, err = meter.Int64Counter("broker_sessions_total",
		otelmetric.WithDescription("Session creation attempts by outcome")); err != nil {
		return err
	}
	if m.upstreamLatency, err = meter.Float64Histogram("broker_upstream_latency_seconds",
		otelmetric.WithDescription("Latency of upstream session creation"),
		otelmetric.WithUnit("s")); err != nil {
		return err
	}
	if m.eventsIngested, err = meter.Int64Counter("transcript_events_total",
		otelmetric.WithDescription("Peer events ingested by kind")); err != nil {
		return err
	}
	if m.eventsDropped, err = meter.Int64Counter("transcript_events_dropped_total",
		otelmetric.WithDescription("Malformed peer events dropped")); err != nil {
		return err
	}
	if m.breakerChanges, err = meter.Int64Counter("broker_breaker_transitions_total",
		otelmetric.WithDescription("Circuit breaker state transitions")); err != nil {
		return err
	}
	if m.feedClients, err = meter.Int64UpDownCounter("feed_clients",
		otelmetric.WithDescription("Connected transcript feed clients")); err != nil {
		return err
	}
	return nil
}

// Handler serves the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return m.handler
}

// Shutdown flushes the meter provider.
func (m *Metrics) Shutdown(ctx context.Context) error {
	return m.shutdown(ctx)
}

// RecordSession counts one session request and its upstream latency.
func (m *Metrics) RecordSession(ctx context.Context, outcome string, latency time.Duration) {
	attrs := otelmetric.WithAttributes(attribute.String("outcome", outcome))
	m.sessions.Add(ctx, 1, attrs)
	if latency > 0 {
		m.upstreamLatency.Record(ctx, latency.Seconds(), attrs)
	}
}

// EventIngested counts one decoded peer event.
func (m *Metrics) EventIngested(ctx context.Context, kind string) {
	m.eventsIngested.Add(ctx, 1, otelmetric.WithAttributes(attribute.String("kind", kind)))
}

// EventDropped counts one malformed peer event.
func (m *Metrics) EventDropped(ctx context.Context) {
	m.eventsDropped.Add(ctx, 1)
}

// BreakerTransition counts a circuit breaker state change.
func (m *Metrics) BreakerTransition(ctx context.Context, name, to string) {
	m.breakerChanges.Add(ctx, 1, otelmetric.WithAttributes(
		attribute.String("breaker", name),
		attribute.String("state", to),
	))
}

// FeedClients adjusts the connected feed client gauge.
func (m *Metrics) FeedClients(ctx context.Context, delta int64) {
	m.feedClients.Add(ctx, delta)
}
