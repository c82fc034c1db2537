// internal/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HttpRequestsTotal counts admin API requests.
	HttpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of http requests handled by the service.",
		},
		[]string{"path", "method", "code"},
	)

	// LockOperationsTotal counts lock, unlock, test and list calls by outcome.
	LockOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nlm_lock_operations_total",
			Help: "Total number of NLM lock operations by operation and result.",
		},
		[]string{"op", "result"},
	)

	// MutexWaitSeconds observes how long callers wait for a per-file mutex.
	MutexWaitSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "nlm_mutex_wait_seconds",
			Help:    "Time spent acquiring the per-file coordination mutex.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
		},
	)

	// MutexReleaseFailuresTotal counts per-file mutex releases that failed.
	MutexReleaseFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "nlm_mutex_release_failures_total",
			Help: "Total number of per-file mutex releases that returned an error.",
		},
	)

	// HeldLocks is the number of lock records found by the last census.
	HeldLocks = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "nlm_held_locks",
			Help: "Number of lock records held across all files at the last census.",
		},
	)

	// CensusFiles is the number of file directories seen by the last census.
	CensusFiles = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "nlm_census_files",
			Help: "Number of file directories seen by the last census.",
		},
	)

	// IsLeader marks whether this node currently runs the census.
	IsLeader = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "is_leader",
			Help: "Is this node currently the leader. 1 if leader, 0 otherwise.",
		},
		[]string{"node_id"},
	)
)
