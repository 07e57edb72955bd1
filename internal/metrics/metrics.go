package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	queueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "tillsync",
			Name:      "queue_depth",
			Help:      "Queued orders by sync status.",
		},
		[]string{"status"},
	)

	submissionAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tillsync",
			Name:      "submission_attempts_total",
			Help:      "Order submission attempts by outcome.",
		},
		[]string{"outcome"},
	)

	submissionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "tillsync",
			Name:      "submission_duration_seconds",
			Help:      "Wall time of a single submission attempt.",
			Buckets:   prometheus.DefBuckets,
		},
	)

	online = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "tillsync",
			Name:      "backend_reachable",
			Help:      "1 while the backend is considered reachable.",
		},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(queueDepth, submissionAttempts, submissionDuration, online)
	})
}

// SetQueueDepth records the number of orders in a given status.
func SetQueueDepth(status string, n int) {
	queueDepth.WithLabelValues(status).Set(float64(n))
}

// IncAttempt counts one submission attempt with its outcome label
// (synced, transport_error, rejected, payment_error).
func IncAttempt(outcome string) {
	submissionAttempts.WithLabelValues(outcome).Inc()
}

// ObserveSubmission records how long a submission attempt took.
func ObserveSubmission(seconds float64) {
	submissionDuration.Observe(seconds)
}

// SetOnline records the current reachability verdict.
func SetOnline(isOnline bool) {
	if isOnline {
		online.Set(1)
	} else {
		online.Set(0)
	}
}
