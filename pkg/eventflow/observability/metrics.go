package observability

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsRecorder records eventflow metrics.
// Use NewMetricsRecorder() for OTel metrics, NewPrometheusRecorder for
// Prometheus, or NoopMetrics{} when disabled.
type MetricsRecorder interface {
	// RecordEmit records a flat emission and how many listeners it reached.
	RecordEmit(ctx context.Context, eventType string, listeners int, duration time.Duration)

	// RecordDispatch records a hierarchical dispatch over a path of pathLen
	// targets. err is non-nil when the dispatch was rejected.
	RecordDispatch(ctx context.Context, eventType string, pathLen int, duration time.Duration, err error)

	// RecordListenerFailure records a listener that returned an error or panicked.
	RecordListenerFailure(ctx context.Context, eventType, phase string, panicked bool)
}

// otelMetrics implements MetricsRecorder using OpenTelemetry.
type otelMetrics struct {
	emits            metric.Int64Counter
	emitLatency      metric.Float64Histogram
	deliveries       metric.Int64Counter
	dispatches       metric.Int64Counter
	dispatchLatency  metric.Float64Histogram
	dispatchErrors   metric.Int64Counter
	pathLength       metric.Int64Histogram
	listenerFailures metric.Int64Counter
}

var (
	defaultMetrics     *otelMetrics
	defaultMetricsOnce sync.Once
	defaultMetricsErr  error
)

// getDefaultMetrics returns the default OTel metrics instance.
// Lazily initializes the metrics on first call.
func getDefaultMetrics() (*otelMetrics, error) {
	defaultMetricsOnce.Do(func() {
		defaultMetrics, defaultMetricsErr = newOtelMetrics()
	})
	return defaultMetrics, defaultMetricsErr
}

func newOtelMetrics() (*otelMetrics, error) {
	meter := otel.Meter("eventflow")

	emits, err := meter.Int64Counter("eventflow.emit.count",
		metric.WithDescription("Number of flat emissions"),
	)
	if err != nil {
		return nil, err
	}

	emitLatency, err := meter.Float64Histogram("eventflow.emit.latency_ms",
		metric.WithDescription("Flat emission latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	deliveries, err := meter.Int64Counter("eventflow.listener.deliveries",
		metric.WithDescription("Number of listener invocations from flat emissions"),
	)
	if err != nil {
		return nil, err
	}

	dispatches, err := meter.Int64Counter("eventflow.dispatch.count",
		metric.WithDescription("Number of hierarchical dispatches"),
	)
	if err != nil {
		return nil, err
	}

	dispatchLatency, err := meter.Float64Histogram("eventflow.dispatch.latency_ms",
		metric.WithDescription("Hierarchical dispatch latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	dispatchErrors, err := meter.Int64Counter("eventflow.dispatch.errors",
		metric.WithDescription("Number of rejected dispatches"),
	)
	if err != nil {
		return nil, err
	}

	pathLength, err := meter.Int64Histogram("eventflow.dispatch.path_length",
		metric.WithDescription("Number of targets on the propagation path"),
	)
	if err != nil {
		return nil, err
	}

	listenerFailures, err := meter.Int64Counter("eventflow.listener.failures",
		metric.WithDescription("Number of listener errors and panics"),
	)
	if err != nil {
		return nil, err
	}

	return &otelMetrics{
		emits:            emits,
		emitLatency:      emitLatency,
		deliveries:       deliveries,
		dispatches:       dispatches,
		dispatchLatency:  dispatchLatency,
		dispatchErrors:   dispatchErrors,
		pathLength:       pathLength,
		listenerFailures: listenerFailures,
	}, nil
}

// NewMetricsRecorder returns a MetricsRecorder that uses OpenTelemetry.
// If metrics initialization fails, returns a no-op recorder.
//
// The recorder uses the global OTel meter provider. Configure the provider
// before calling this function:
//
//	import "go.opentelemetry.io/otel"
//	otel.SetMeterProvider(yourProvider)
func NewMetricsRecorder() MetricsRecorder {
	m, err := getDefaultMetrics()
	if err != nil {
		slog.Warn("metrics initialization failed, using no-op recorder",
			slog.String("error", err.Error()))
		return NoopMetrics{}
	}
	return m
}

// RecordEmit records a flat emission.
func (m *otelMetrics) RecordEmit(ctx context.Context, eventType string, listeners int, duration time.Duration) {
	attrs := metric.WithAttributes(attribute.String("event_type", eventType))

	m.emits.Add(ctx, 1, attrs)
	m.emitLatency.Record(ctx, durationMs(duration), attrs)
	if listeners > 0 {
		m.deliveries.Add(ctx, int64(listeners), attrs)
	}
}

// RecordDispatch records a hierarchical dispatch.
func (m *otelMetrics) RecordDispatch(ctx context.Context, eventType string, pathLen int, duration time.Duration, err error) {
	attrs := metric.WithAttributes(
		attribute.String("event_type", eventType),
		attribute.Bool("success", err == nil),
	)

	m.dispatches.Add(ctx, 1, attrs)
	m.dispatchLatency.Record(ctx, durationMs(duration), attrs)
	if pathLen > 0 {
		m.pathLength.Record(ctx, int64(pathLen), attrs)
	}
	if err != nil {
		m.dispatchErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("event_type", eventType)))
	}
}

// RecordListenerFailure records a listener failure.
func (m *otelMetrics) RecordListenerFailure(ctx context.Context, eventType, phase string, panicked bool) {
	m.listenerFailures.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event_type", eventType),
		attribute.String("phase", phase),
		attribute.Bool("panic", panicked),
	))
}

func durationMs(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}
