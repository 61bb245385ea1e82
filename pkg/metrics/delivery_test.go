package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestDeliveryMetricsExportsAttemptAndPassCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewDeliveryMetrics(reg)

	metrics.IncAttempt("success")
	metrics.IncAttempt("success")
	metrics.IncAttempt("retryable")
	metrics.IncPass("completed")
	metrics.ObservePassDuration(150 * time.Millisecond)
	metrics.ObserveDispatchLatency("success", 40*time.Millisecond)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	if got, err := fetchCounterValue(mfs, "webhook_delivery_attempts_total", "outcome", "success"); err != nil {
		t.Fatalf("fetch attempts: %v", err)
	} else if got != 2 {
		t.Fatalf("expected success attempts=2, got %f", got)
	}

	if got, err := fetchCounterValue(mfs, "webhook_delivery_attempts_total", "outcome", "retryable"); err != nil {
		t.Fatalf("fetch attempts: %v", err)
	} else if got != 1 {
		t.Fatalf("expected retryable attempts=1, got %f", got)
	}

	if got, err := fetchCounterValue(mfs, "webhook_delivery_passes_total", "result", "completed"); err != nil {
		t.Fatalf("fetch passes: %v", err)
	} else if got != 1 {
		t.Fatalf("expected completed passes=1, got %f", got)
	}

	if got, err := fetchHistogramSum(mfs, "webhook_dispatch_latency_seconds", "outcome", "success"); err != nil {
		t.Fatalf("fetch latency: %v", err)
	} else if got <= 0 {
		t.Fatalf("expected latency sum > 0, got %f", got)
	}
}

func TestDeliveryMetricsNilSafe(t *testing.T) {
	var metrics *DeliveryMetrics
	metrics.IncAttempt("success")
	metrics.IncPass("completed")
	metrics.ObservePassDuration(time.Second)
	metrics.ObserveDispatchLatency("success", time.Second)

	unregistered := NewDeliveryMetrics(nil)
	unregistered.IncAttempt("success")
	unregistered.IncPass("completed")
}
