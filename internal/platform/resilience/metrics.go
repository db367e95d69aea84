package resilience

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	retryAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_retry_attempts_total",
		Help: "Retry attempts per operation, labeled by outcome.",
	}, []string{"operation", "outcome"})

	retryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dispatch_retry_duration_seconds",
		Help:    "Total wall-clock time spent retrying an operation to its final outcome.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	breakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "dispatch_circuit_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=half-open, 2=open).",
	}, []string{"breaker"})
)

func recordOutcome(operation string, d time.Duration, attempts int, success bool) {
	outcome := "failure"
	if success {
		outcome = "success"
	}
	retryAttempts.WithLabelValues(operation, outcome).Add(float64(attempts))
	retryDuration.WithLabelValues(operation).Observe(d.Seconds())
}

func recordBreakerState(name string, state float64) {
	breakerState.WithLabelValues(name).Set(state)
}
