package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	MatchesTotal  = promauto.NewCounter(prometheus.CounterOpts{Namespace: "pooling", Name: "matches_total", Help: "Requests placed into a pool"})
	MatchesNone   = promauto.NewCounter(prometheus.CounterOpts{Namespace: "pooling", Name: "matches_none_total", Help: "Match attempts that found no pool or driver"})
	PoolsCreated  = promauto.NewCounter(prometheus.CounterOpts{Namespace: "pooling", Name: "pools_created_total", Help: "New pools opened"})
	PoolJoins     = promauto.NewCounter(prometheus.CounterOpts{Namespace: "pooling", Name: "pool_joins_total", Help: "Requests joined to an existing pool"})
	Cancellations = promauto.NewCounter(prometheus.CounterOpts{Namespace: "pooling", Name: "cancellations_total", Help: "Ride requests cancelled"})

	JobsEnqueued = promauto.NewCounter(prometheus.CounterOpts{Namespace: "pooling", Name: "jobs_enqueued_total", Help: "Match jobs enqueued"})
	JobRetries   = promauto.NewCounter(prometheus.CounterOpts{Namespace: "pooling", Name: "job_retries_total", Help: "Match job attempts retried"})
	JobsFailed   = promauto.NewCounter(prometheus.CounterOpts{Namespace: "pooling", Name: "jobs_failed_total", Help: "Match jobs dropped after exhausting retries"})

	MatchLatency = promauto.NewHistogram(prometheus.HistogramOpts{Namespace: "pooling", Name: "match_latency_seconds", Help: "Match attempt latency seconds"})

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "pooling", Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "pooling",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
