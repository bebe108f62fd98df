package catchment

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// analysesTotal counts analyses by outcome.
	analysesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catchment_analyses_total",
		Help: "Total catchment analyses by result",
	}, []string{"result"})

	// analysisDuration tracks end-to-end analysis latency.
	analysisDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "catchment_analysis_duration_seconds",
		Help:    "Catchment analysis duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
	})

	// fetchDuration tracks provider call latency.
	fetchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "catchment_fetch_duration_seconds",
		Help:    "Provider fetch duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
	}, []string{"provider"})

	// reachableNodes tracks the size of reachable subgraphs.
	reachableNodes = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "catchment_reachable_nodes",
		Help:    "Number of reachable nodes per analysis",
		Buckets: []float64{1, 10, 50, 100, 500, 1000, 5000},
	})

	// sharedAnalyses counts analyses served from an in-flight identical query.
	sharedAnalyses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "catchment_shared_analyses_total",
		Help: "Analyses answered by an identical in-flight query",
	})
)
