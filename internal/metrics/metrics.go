// Package metrics exposes Prometheus collectors for the ingest service.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ingestPagesTotal           *prometheus.CounterVec
	ingestChunksTotal          *prometheus.CounterVec
	ingestBytesTotal           *prometheus.CounterVec
	embeddingRequestsTotal     *prometheus.CounterVec
	embeddingBatchSize         prometheus.Histogram
	operationsTotal            *prometheus.CounterVec
	activeOperations           prometheus.Gauge
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		ingestPagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_pages_total",
				Help: "Total number of pages fetched for ingestion, labeled by site and status.",
			},
			[]string{"site", "status"},
		)

		ingestChunksTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_chunks_total",
				Help: "Total number of text chunks produced, labeled by site.",
			},
			[]string{"site"},
		)

		ingestBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_bytes_total",
				Help: "Total number of bytes fetched, labeled by site.",
			},
			[]string{"site"},
		)

		embeddingRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "embedding_requests_total",
				Help: "Total embedding API calls, labeled by provider and outcome.",
			},
			[]string{"provider", "status"},
		)

		embeddingBatchSize = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "embedding_batch_size",
				Help:    "Histogram of texts per embedding request.",
				Buckets: []float64{1, 2, 5, 10, 20, 50, 100},
			},
		)

		operationsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_operations_total",
				Help: "Total tracked operations reaching a terminal state, labeled by type and status.",
			},
			[]string{"type", "status"},
		)

		activeOperations = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "ingest_active_operations",
				Help: "Number of operations currently in a non-terminal state.",
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObservePage increments the page fetch metrics.
func ObservePage(site string, status string, bytesFetched int) {
	sanitizedSite := SanitizeSite(site)
	ingestPagesTotal.WithLabelValues(sanitizedSite, status).Inc()
	if bytesFetched > 0 {
		ingestBytesTotal.WithLabelValues(sanitizedSite).Add(float64(bytesFetched))
	}
}

// ObserveChunks adds to the chunk counter for a site.
func ObserveChunks(site string, count int) {
	if count > 0 {
		ingestChunksTotal.WithLabelValues(SanitizeSite(site)).Add(float64(count))
	}
}

// ObserveEmbedding records one embedding API call.
func ObserveEmbedding(provider, status string, batchSize int) {
	embeddingRequestsTotal.WithLabelValues(provider, status).Inc()
	if batchSize > 0 {
		embeddingBatchSize.Observe(float64(batchSize))
	}
}

// ObserveOperation increments the terminal-operation counter.
func ObserveOperation(opType, status string) {
	operationsTotal.WithLabelValues(opType, status).Inc()
}

// SetActiveOperations sets the active operations gauge.
func SetActiveOperations(n int) {
	activeOperations.Set(float64(n))
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
