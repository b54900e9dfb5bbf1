package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Provider call latency in seconds
	ProviderCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "provider_call_duration_seconds",
			Help:    "Email-sync provider call duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
		},
		[]string{"operation", "status"},
	)

	// Poll round counters
	PollRoundsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sync_poll_rounds_total",
			Help: "Total number of completed polling rounds",
		},
	)
	PollStaleDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sync_poll_stale_responses_dropped_total",
			Help: "Fetched status responses dropped as stale or post-stop",
		},
	)
	PollFetchFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sync_poll_fetch_failures_total",
			Help: "Transient status-fetch failures during polling",
		},
	)

	// Sync state transition counts
	SyncTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_transitions_total",
			Help: "Total number of sync status transitions",
		},
		[]string{"from", "to"},
	)

	// Accounts per sync status
	AccountsByStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sync_accounts_by_status",
			Help: "Number of accounts currently in each sync status",
		},
		[]string{"status"},
	)
)

// ObserveProviderCall records one provider call's duration and outcome
func ObserveProviderCall(operation, status string, duration time.Duration) {
	ProviderCallDuration.WithLabelValues(operation, status).Observe(duration.Seconds())
}

// IncrementSyncTransition records one sync status transition
func IncrementSyncTransition(from, to string) {
	SyncTransitions.WithLabelValues(from, to).Inc()
}

// SetAccountsByStatus updates the per-status account gauge
func SetAccountsByStatus(status string, count int) {
	AccountsByStatus.WithLabelValues(status).Set(float64(count))
}
