// Package metrics provides Prometheus instrumentation for the matcher:
// pool size, rank request outcomes, candidates scored and rank latency.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// PoolSize tracks the number of profiles in the candidate pool.
	PoolSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "matcher_pool_size",
		Help: "Current number of profiles in the candidate pool",
	})

	// RankRequestsTotal counts rank requests by outcome: "ok",
	// "rate_limited", "invalid" or "error".
	RankRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "matcher_rank_requests_total",
		Help: "Total number of rank requests processed",
	}, []string{"outcome"})

	// ProfileUpdatesTotal counts pool updates, labeled by op: "upsert" or "remove".
	ProfileUpdatesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "matcher_profile_updates_total",
		Help: "Total number of profile updates applied to the pool",
	}, []string{"op"})

	// CandidatesScored records how many candidates each rank request scored.
	CandidatesScored = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "matcher_candidates_scored",
		Help:    "Number of candidates scored per rank request",
		Buckets: prometheus.ExponentialBuckets(1, 4, 8),
	})

	// RankDuration records end-to-end rank request latency in seconds.
	RankDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "matcher_rank_duration_seconds",
		Help:    "Rank request processing latency in seconds",
		Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
	})

	// ProfilesPruned counts profiles removed by the cleanup loop.
	ProfilesPruned = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "matcher_profiles_pruned_total",
		Help: "Total number of stale profiles pruned from the pool",
	})
)

func init() {
	prometheus.MustRegister(
		PoolSize,
		RankRequestsTotal,
		ProfileUpdatesTotal,
		CandidatesScored,
		RankDuration,
		ProfilesPruned,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
