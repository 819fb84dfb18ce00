// Package metrics exposes Prometheus collectors for the analysis service.
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
	analysisJobsTotal          *prometheus.CounterVec
	analysisStageSeconds       *prometheus.HistogramVec
	analysisFetchesTotal       *prometheus.CounterVec
	analysisRetriesTotal       prometheus.Counter
	analysisActiveWorkers      prometheus.Gauge
	analysisScores             *prometheus.HistogramVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		analysisJobsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "analysis_jobs_total",
				Help: "Total number of analysis jobs reaching a terminal status.",
			},
			[]string{"status"},
		)

		analysisStageSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "analysis_stage_duration_seconds",
				Help:    "Histogram of pipeline stage latencies, labeled by stage.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"stage"},
		)

		analysisFetchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "analysis_fetches_total",
				Help: "Total page fetches, labeled by site, mode and outcome.",
			},
			[]string{"site", "mode", "outcome"},
		)

		analysisRetriesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "analysis_retries_total",
				Help: "Total job attempts beyond the first.",
			},
		)

		analysisActiveWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "analysis_active_workers",
				Help: "Number of workers currently processing a job.",
			},
		)

		analysisScores = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "analysis_scores",
				Help:    "Distribution of computed scores, labeled by kind.",
				Buckets: []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
			},
			[]string{"kind"},
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

// ObserveJob increments the terminal-status job counter.
func ObserveJob(status string) {
	analysisJobsTotal.WithLabelValues(status).Inc()
}

// ObserveStage records how long one pipeline stage took.
func ObserveStage(stage string, duration time.Duration) {
	analysisStageSeconds.WithLabelValues(stage).Observe(duration.Seconds())
}

// ObserveFetch counts a page fetch. Mode is "probe" or "headless".
func ObserveFetch(site, mode, outcome string) {
	analysisFetchesTotal.WithLabelValues(SanitizeSite(site), mode, outcome).Inc()
}

// ObserveRetry counts a retried job attempt.
func ObserveRetry() {
	analysisRetriesTotal.Inc()
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	analysisActiveWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	analysisActiveWorkers.Dec()
}

// ObserveScore records a computed score. Kind is "rule", "model" or "total".
func ObserveScore(kind string, score int) {
	analysisScores.WithLabelValues(kind).Observe(float64(score))
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
