package core

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "kittycore"

// PrometheusMetricsRecorder is a MetricsRecorder that also implements
// prometheus.Collector, so it can be registered with any registry.
type PrometheusMetricsRecorder struct {
	operations *prometheus.CounterVec
	durations  *prometheus.HistogramVec
}

// NewPrometheusMetricsRecorder returns an unregistered recorder.
func NewPrometheusMetricsRecorder() *PrometheusMetricsRecorder {
	return &PrometheusMetricsRecorder{
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "operations_total",
				Help:      "The number of kitty operations by outcome.",
			}, []string{"operation", "status"},
		),
		durations: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "operation_duration_seconds",
				Help:      "The time taken to run a kitty operation.",
				Buckets:   prometheus.ExponentialBuckets(0.00005, 4, 8),
			}, []string{"operation"},
		),
	}
}

// Observe implements MetricsRecorder.
func (r *PrometheusMetricsRecorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	status := "success"
	if !success {
		status = "error"
	}
	r.operations.WithLabelValues(operation, status).Inc()
	r.durations.WithLabelValues(operation).Observe(duration.Seconds())
}

// Describe is part of the prometheus.Collector interface.
func (r *PrometheusMetricsRecorder) Describe(ch chan<- *prometheus.Desc) {
	r.operations.Describe(ch)
	r.durations.Describe(ch)
}

// Collect is part of the prometheus.Collector interface.
func (r *PrometheusMetricsRecorder) Collect(ch chan<- prometheus.Metric) {
	r.operations.Collect(ch)
	r.durations.Collect(ch)
}
