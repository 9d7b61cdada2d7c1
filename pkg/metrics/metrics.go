package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Define global variables for metrics.
// We use 'promauto' which automatically registers metrics without complex initialization.

var (
	// 1. HTTP Requests Total (Counter)
	// Counts how many requests arrive, labeled by method, path, and status code.
	HttpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voxpath_http_requests_total",
			Help: "Total number of HTTP requests processed",
		},
		[]string{"method", "path", "status"},
	)

	// 2. HTTP Request Duration (Histogram)
	HttpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "voxpath_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)

	// 3. Searches (Counter)
	// kind is "grid" or "hierarchical", outcome is "found", "unreachable" or "error".
	SearchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voxpath_searches_total",
			Help: "Total number of path searches by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	// 4. Search Duration (Histogram)
	// Measured on the worker, from the end of prefetch to the result.
	SearchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "voxpath_search_duration_seconds",
			Help:    "Duration of path searches in seconds",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
		[]string{"kind"},
	)

	// 5. Prefetch Duration (Histogram)
	PrefetchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "voxpath_prefetch_duration_seconds",
			Help:    "Time spent awaiting chunk snapshots before a search starts",
			Buckets: []float64{0.0001, 0.001, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
	)

	// 6. Chunk Cache Lookups (Counter)
	// result is "hit" or "miss". A miss that joins an in-flight fetch is still a hit.
	CacheLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voxpath_chunk_cache_lookups_total",
			Help: "Chunk cache lookups by result",
		},
		[]string{"result"},
	)

	// 7. Chunk Fetches (Counter)
	CacheFetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voxpath_chunk_fetches_total",
			Help: "Chunk snapshot fetches issued to the world by source mode and outcome",
		},
		[]string{"mode", "outcome"},
	)

	// 8. Chunk Evictions (Counter)
	CacheEvictionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "voxpath_chunk_evictions_total",
			Help: "Chunk cache entries removed by the expiry sweep",
		},
	)

	// 9. Chunk Cache Size (Gauge)
	CacheEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "voxpath_chunk_cache_entries",
			Help: "Current number of chunk cache entries, pending included",
		},
	)

	// 10. Graph Clusters (Gauge)
	// Tracks the number of clusters per hierarchy level.
	GraphClusters = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "voxpath_graph_clusters",
			Help: "Number of hierarchical graph clusters per level",
		},
		[]string{"level"},
	)

	// 11. Graph Rebuilds (Counter)
	GraphRebuildsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "voxpath_graph_rebuilds_total",
			Help: "Full clear-and-rebuild passes triggered by dirty regions",
		},
	)

	// 12. Worker Pool (Gauge)
	// state is "running" or "blocked".
	PoolWorkers = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "voxpath_pool_workers",
			Help: "Worker pool slots by state",
		},
		[]string{"state"},
	)
)
