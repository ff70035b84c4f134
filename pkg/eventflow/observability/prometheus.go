package observability

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusRecorder is a MetricsRecorder backed by Prometheus collectors.
type PrometheusRecorder struct {
	emits            *prometheus.CounterVec
	deliveries       *prometheus.CounterVec
	emitLatency      *prometheus.HistogramVec
	dispatches       *prometheus.CounterVec
	dispatchLatency  *prometheus.HistogramVec
	listenerFailures *prometheus.CounterVec
}

var _ MetricsRecorder = (*PrometheusRecorder)(nil)

// NewPrometheusRecorder creates the eventflow collectors and registers them
// with reg. A nil reg uses prometheus.DefaultRegisterer. Collectors that are
// already registered are reused, so two buses can share one registry.
func NewPrometheusRecorder(reg prometheus.Registerer) (*PrometheusRecorder, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	r := &PrometheusRecorder{
		emits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "eventflow",
			Name:      "emits_total",
			Help:      "Number of flat emissions.",
		}, []string{"event_type"}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "eventflow",
			Name:      "listener_deliveries_total",
			Help:      "Number of listener invocations from flat emissions.",
		}, []string{"event_type"}),
		emitLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "eventflow",
			Name:      "emit_duration_seconds",
			Help:      "Flat emission latency.",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 10),
		}, []string{"event_type"}),
		dispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "eventflow",
			Name:      "dispatches_total",
			Help:      "Number of hierarchical dispatches.",
		}, []string{"event_type", "success"}),
		dispatchLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "eventflow",
			Name:      "dispatch_duration_seconds",
			Help:      "Hierarchical dispatch latency.",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 10),
		}, []string{"event_type"}),
		listenerFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "eventflow",
			Name:      "listener_failures_total",
			Help:      "Number of listener errors and panics.",
		}, []string{"event_type", "phase", "panic"}),
	}

	var err error
	r.emits, err = register(reg, r.emits)
	if err != nil {
		return nil, err
	}
	r.deliveries, err = register(reg, r.deliveries)
	if err != nil {
		return nil, err
	}
	r.emitLatency, err = register(reg, r.emitLatency)
	if err != nil {
		return nil, err
	}
	r.dispatches, err = register(reg, r.dispatches)
	if err != nil {
		return nil, err
	}
	r.dispatchLatency, err = register(reg, r.dispatchLatency)
	if err != nil {
		return nil, err
	}
	r.listenerFailures, err = register(reg, r.listenerFailures)
	if err != nil {
		return nil, err
	}
	return r, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// RecordEmit records a flat emission.
func (r *PrometheusRecorder) RecordEmit(_ context.Context, eventType string, listeners int, duration time.Duration) {
	r.emits.WithLabelValues(eventType).Inc()
	r.emitLatency.WithLabelValues(eventType).Observe(duration.Seconds())
	if listeners > 0 {
		r.deliveries.WithLabelValues(eventType).Add(float64(listeners))
	}
}

// RecordDispatch records a hierarchical dispatch.
func (r *PrometheusRecorder) RecordDispatch(_ context.Context, eventType string, _ int, duration time.Duration, err error) {
	r.dispatches.WithLabelValues(eventType, strconv.FormatBool(err == nil)).Inc()
	r.dispatchLatency.WithLabelValues(eventType).Observe(duration.Seconds())
}

// RecordListenerFailure records a listener failure.
func (r *PrometheusRecorder) RecordListenerFailure(_ context.Context, eventType, phase string, panicked bool) {
	r.listenerFailures.WithLabelValues(eventType, phase, strconv.FormatBool(panicked)).Inc()
}
