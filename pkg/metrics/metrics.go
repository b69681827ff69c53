// Package metrics provides access to Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "gameicons"

// Web
var (
	HTTPResponseStatuses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "web",
			Name:      "http_response_statuses_total",
		},
		[]string{"status"},
	)
	HTTPResponseTime = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "web",
			Name:      "http_response_time_seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5},
		},
		[]string{"path"},
	)
	EventSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "web",
			Name:      "event_subscribers",
		},
	)
)

// Loader
var (
	LoaderRequests = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "loader",
			Name:      "requests_total",
		},
	)
	LoaderQueueLength = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "loader",
			Name:      "queue_length",
		},
	)
	LoaderStoredIcons = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "loader",
			Name:      "stored_icons",
		},
	)
	LoaderResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "loader",
			Name:      "results_total",
		},
		[]string{"result"},
	)
	LoaderLoadDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "loader",
			Name:      "load_duration_seconds",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.2, 0.5, 1, 2, 5},
		},
	)
	LoaderMountedSources = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "loader",
			Name:      "mounted_sources",
		},
	)
)

// Load results.
const (
	ResultLoaded        = "loaded"
	ResultCacheHit      = "cache_hit"
	ResultPersistentHit = "persistent_hit"
	ResultNoTitle       = "title_not_found"
	ResultMountError    = "mount_error"
	ResultNoIconData    = "no_icon_data"
	ResultDecodeError   = "decode_error"
)

// Cache
var (
	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "hits_total",
		},
	)
	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "misses_total",
		},
	)
	CacheErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "errors_total",
		},
	)
	CacheRemovedEntries = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "removed_entries_total",
		},
	)
)

// Init values for common labels.
func init() {
	for _, status := range []string{"200", "202", "400", "404", "500"} {
		HTTPResponseStatuses.With(prometheus.Labels{"status": status}).Add(0)
	}
	for _, res := range []string{
		ResultLoaded, ResultCacheHit, ResultPersistentHit, ResultNoTitle,
		ResultMountError, ResultNoIconData, ResultDecodeError,
	} {
		LoaderResults.With(prometheus.Labels{"result": res}).Add(0)
	}
}
