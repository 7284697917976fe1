package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// BackendRequests tracks requests settled by the coordinator
	BackendRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dashwatch_backend_requests_total",
			Help: "Total number of backend requests by outcome",
		},
		[]string{"method", "outcome"},
	)

	// BackendLatency tracks backend request latency
	BackendLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dashwatch_backend_latency_seconds",
			Help:    "Backend request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	// SupersededRequests tracks identical requests cancelled by a newer one
	SupersededRequests = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dashwatch_superseded_requests_total",
			Help: "Total number of in-flight requests replaced by an identical request",
		},
	)

	// ConnectionDegraded is 1 while the backend is considered unreachable
	ConnectionDegraded = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dashwatch_connection_degraded",
			Help: "Whether the backend connection is currently degraded",
		},
	)

	// RetryAttempts tracks attempts made by the retry executor
	RetryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dashwatch_retry_attempts_total",
			Help: "Total number of attempts made by the retry executor",
		},
		[]string{"operation", "result"},
	)

	// CacheLookups tracks metric cache lookups
	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dashwatch_cache_lookups_total",
			Help: "Total number of metric cache lookups",
		},
		[]string{"metric", "result"},
	)

	// FallbackServed tracks which stage of the fallback chain produced a result
	FallbackServed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dashwatch_fallback_served_total",
			Help: "Total number of metric results by serving stage",
		},
		[]string{"metric", "stage"},
	)
)
