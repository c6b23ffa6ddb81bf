// Package telemetry exposes Prometheus collectors for the scanner service.
package telemetry

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
	scraperListingsTotal       *prometheus.CounterVec
	scraperPagesTotal          *prometheus.CounterVec
	scraperBytesTotal          *prometheus.CounterVec
	scraperRunsTotal           *prometheus.CounterVec
	scraperActiveWorkers       prometheus.Gauge
	scraperRateLimitDelays     *prometheus.HistogramVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		scraperListingsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scraper_listings_total",
				Help: "Total number of listings processed, labeled by source and outcome.",
			},
			[]string{"source", "outcome"},
		)

		scraperPagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scraper_pages_total",
				Help: "Total number of search pages fetched, labeled by source and status.",
			},
			[]string{"source", "status"},
		)

		scraperBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scraper_bytes_total",
				Help: "Total number of bytes fetched, labeled by source.",
			},
			[]string{"source"},
		)

		scraperRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scraper_runs_total",
				Help: "Total number of scan runs, labeled by status.",
			},
			[]string{"status"},
		)

		scraperActiveWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "scraper_active_workers",
				Help: "Number of workers currently scanning a source.",
			},
		)

		scraperRateLimitDelays = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "scraper_rate_limit_delays_seconds",
				Help:    "Histogram of rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"domain"},
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

// SanitizeSite extracts a lowercase hostname from a URL, returning "unknown"
// for invalid input.
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

// ObserveListing increments the listing counter for one processed listing.
func ObserveListing(source, outcome string) {
	Init()
	scraperListingsTotal.WithLabelValues(source, outcome).Inc()
}

// ObservePage increments the search page metrics.
func ObservePage(source string, statusCode int, bytesFetched int) {
	Init()
	scraperPagesTotal.WithLabelValues(source, strconv.Itoa(statusCode)).Inc()
	if bytesFetched > 0 {
		scraperBytesTotal.WithLabelValues(source).Add(float64(bytesFetched))
	}
}

// ObserveRun increments the run counter for the given status.
func ObserveRun(status string) {
	Init()
	scraperRunsTotal.WithLabelValues(status).Inc()
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	Init()
	scraperActiveWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	Init()
	scraperActiveWorkers.Dec()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	Init()
	scraperRateLimitDelays.WithLabelValues(domain).Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the HTTP server request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
