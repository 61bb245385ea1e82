package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// DeliveryMetrics records webhook retry pass and dispatch outcomes.
type DeliveryMetrics struct {
	attempts        *prometheus.CounterVec
	passes          *prometheus.CounterVec
	passDuration    prometheus.Histogram
	dispatchLatency *prometheus.HistogramVec
}

// NewDeliveryMetrics registers the delivery metrics on the provided registerer.
func NewDeliveryMetrics(reg prometheus.Registerer) *DeliveryMetrics {
	if reg == nil {
		return &DeliveryMetrics{}
	}
	attempts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_delivery_attempts_total",
		Help: "Dispatch attempts by recorded outcome.",
	}, []string{"outcome"})
	passes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_delivery_passes_total",
		Help: "Retry passes by result.",
	}, []string{"result"})
	passDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "webhook_delivery_pass_duration_seconds",
		Help:    "Duration of retry passes in seconds.",
		Buckets: prometheus.DefBuckets,
	})
	dispatchLatency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "webhook_dispatch_latency_seconds",
		Help:    "Latency of outbound webhook dispatches in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"outcome"})
	reg.MustRegister(attempts, passes, passDuration, dispatchLatency)
	return &DeliveryMetrics{
		attempts:        attempts,
		passes:          passes,
		passDuration:    passDuration,
		dispatchLatency: dispatchLatency,
	}
}

// IncAttempt counts one dispatch by its recorded outcome.
func (d *DeliveryMetrics) IncAttempt(outcome string) {
	if d == nil || d.attempts == nil {
		return
	}
	d.attempts.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// IncPass counts one retry pass result (completed, skipped, failed).
func (d *DeliveryMetrics) IncPass(result string) {
	if d == nil || d.passes == nil {
		return
	}
	d.passes.WithLabelValues(normalizeLabel(result)).Inc()
}

// ObservePassDuration records how long a retry pass took.
func (d *DeliveryMetrics) ObservePassDuration(duration time.Duration) {
	if d == nil || d.passDuration == nil {
		return
	}
	d.passDuration.Observe(duration.Seconds())
}

// ObserveDispatchLatency records one outbound request's latency.
func (d *DeliveryMetrics) ObserveDispatchLatency(outcome string, latency time.Duration) {
	if d == nil || d.dispatchLatency == nil {
		return
	}
	d.dispatchLatency.WithLabelValues(normalizeLabel(outcome)).Observe(latency.Seconds())
}
