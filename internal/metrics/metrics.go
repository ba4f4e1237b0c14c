// Package metrics provides Prometheus metrics for the ModPackUpdater server.
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
	// HTTP request metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "modpackupdater_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "modpackupdater_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// Manifest metrics
	manifestBuildsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "modpackupdater_manifest_builds_total",
			Help: "Total number of manifest builds",
		},
		[]string{"result"},
	)

	manifestBuildDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "modpackupdater_manifest_build_duration_seconds",
			Help:    "Time to build a pack manifest",
			Buckets: prometheus.DefBuckets,
		},
	)

	manifestFiles = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "modpackupdater_manifest_files",
			Help: "Number of files in the most recently built manifest",
		},
		[]string{"pack"},
	)

	// Cache metrics
	cacheHitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "modpackupdater_manifest_cache_hits_total",
			Help: "Total manifest cache hits",
		},
	)

	cacheMissesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "modpackupdater_manifest_cache_misses_total",
			Help: "Total manifest cache misses",
		},
	)

	cacheInvalidationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "modpackupdater_manifest_cache_invalidations_total",
			Help: "Total manifest cache invalidations",
		},
		[]string{"reason"},
	)

	// Content transfer metrics
	contentBytesServed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "modpackupdater_content_bytes_served_total",
			Help: "Total bytes served from the file endpoints",
		},
	)

	// Remote resolution metrics
	remoteDownloadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "modpackupdater_remote_downloads_total",
			Help: "Total remote file downloads during import",
		},
		[]string{"result"},
	)
)

// RecordHTTPRequest records an HTTP request metric.
func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordManifestBuild records the outcome and duration of a manifest build.
func RecordManifestBuild(result string, duration time.Duration) {
	manifestBuildsTotal.WithLabelValues(result).Inc()
	manifestBuildDuration.Observe(duration.Seconds())
}

// SetManifestFiles records the file count of the latest manifest for a pack.
func SetManifestFiles(pack string, n int) {
	manifestFiles.WithLabelValues(pack).Set(float64(n))
}

// RecordCacheHit increments the cache hit counter.
func RecordCacheHit() { cacheHitsTotal.Inc() }

// RecordCacheMiss increments the cache miss counter.
func RecordCacheMiss() { cacheMissesTotal.Inc() }

// RecordCacheInvalidation increments the invalidation counter for a reason
// ("expired", "watch", "explicit").
func RecordCacheInvalidation(reason string) {
	cacheInvalidationsTotal.WithLabelValues(reason).Inc()
}

// AddContentBytes adds to the served byte counter.
func AddContentBytes(n int64) { contentBytesServed.Add(float64(n)) }

// RecordRemoteDownload records a remote file resolution outcome
// ("ok", "skipped", "failed").
func RecordRemoteDownload(result string) {
	remoteDownloadsTotal.WithLabelValues(result).Inc()
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// Middleware returns HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)
		RecordHTTPRequest(r.Method, r.URL.Path, rw.statusCode, time.Since(start))
	})
}
