// Package metrics provides Prometheus metrics for bimview.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Store metrics
	storeRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bimview_store_requests_total",
			Help: "Total remote store requests",
		},
		[]string{"backend", "operation", "status"},
	)

	storeRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bimview_store_request_duration_seconds",
			Help:    "Remote store request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"backend", "operation"},
	)

	bytesDownloaded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bimview_bytes_downloaded_total",
			Help: "Total model and companion bytes downloaded",
		},
	)

	// Folder cache metrics
	cacheLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bimview_folder_cache_lookups_total",
			Help: "Folder listing cache lookups",
		},
		[]string{"result"},
	)

	cacheEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "bimview_folder_cache_entries",
			Help: "Number of cached folder listings",
		},
	)

	// Loader metrics
	filesLoadedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bimview_files_total",
			Help: "Model files processed, by format and outcome",
		},
		[]string{"format", "status"},
	)

	parseDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bimview_parse_duration_seconds",
			Help:    "Model parse duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"format"},
	)

	batchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "bimview_batch_duration_seconds",
			Help:    "Load batch duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
	)

	batchesInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "bimview_batches_in_flight",
			Help: "Load batches currently running",
		},
	)

	sceneVertices = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "bimview_scene_vertices",
			Help: "Vertices in the scene after the last batch",
		},
	)

	// HTTP surface
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bimview_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bimview_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// RecordStoreRequest records one list or download call against a backend.
func RecordStoreRequest(backend, operation string, duration time.Duration, err error) {
	storeRequestsTotal.WithLabelValues(backend, operation, status(err)).Inc()
	storeRequestDuration.WithLabelValues(backend, operation).Observe(duration.Seconds())
}

// RecordDownload adds n downloaded bytes.
func RecordDownload(n int64) {
	if n > 0 {
		bytesDownloaded.Add(float64(n))
	}
}

// RecordCacheLookup records a folder cache hit or miss.
func RecordCacheLookup(hit bool) {
	if hit {
		cacheLookupsTotal.WithLabelValues("hit").Inc()
		return
	}
	cacheLookupsTotal.WithLabelValues("miss").Inc()
}

// SetCacheEntries sets the cached listing count.
func SetCacheEntries(n int) {
	cacheEntries.Set(float64(n))
}

// RecordFile records the outcome of one file in a batch.
func RecordFile(format, fileStatus string) {
	filesLoadedTotal.WithLabelValues(format, fileStatus).Inc()
}

// RecordParse records how long a parser ran.
func RecordParse(format string, duration time.Duration) {
	parseDuration.WithLabelValues(format).Observe(duration.Seconds())
}

// BatchStarted marks a batch in flight.
func BatchStarted() {
	batchesInFlight.Inc()
}

// BatchFinished records a completed batch and the resulting scene size.
func BatchFinished(duration time.Duration, vertices int) {
	batchesInFlight.Dec()
	batchDuration.Observe(duration.Seconds())
	sceneVertices.Set(float64(vertices))
}

// RecordHTTPRequest records an HTTP request metric.
func RecordHTTPRequest(method, path string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(code)).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}
