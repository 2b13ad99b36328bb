package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SearchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ride_matching", Name: "searches_total", Help: "Total match searches served"},
		[]string{"operation"},
	)
	MatchesReturned = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ride_matching", Name: "matches_returned_total", Help: "Total match results returned"},
		[]string{"operation"},
	)
	MatchLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{Namespace: "ride_matching", Name: "match_latency_seconds", Help: "Match latency seconds, candidate fetch included"},
		[]string{"operation"},
	)
	CandidatesExcluded = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ride_matching", Name: "candidates_excluded_total", Help: "Candidates dropped because their stored data could not be scored"},
		[]string{"operation", "reason"},
	)
	WSSessions = promauto.NewGauge(prometheus.GaugeOpts{Namespace: "ride_matching", Name: "ws_search_sessions", Help: "Open live search sessions"})

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ride_matching", Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ride_matching",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
