// Package metrics exposes Prometheus collectors for the collection and
// classification pipeline.
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
	postsCollectedTotal        *prometheus.CounterVec
	extractionFailuresTotal    *prometheus.CounterVec
	collectStopsTotal          *prometheus.CounterVec
	sessionBuildsTotal         *prometheus.CounterVec
	classificationsTotal       *prometheus.CounterVec
	modelLoadsTotal            *prometheus.CounterVec
	translationFailuresTotal   prometheus.Counter
	languageDetectionsTotal    *prometheus.CounterVec
	pipelineRunsTotal          *prometheus.CounterVec
	pipelineRunDurationSeconds *prometheus.HistogramVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	activeWorkers              prometheus.Gauge
	navigationDelaySeconds     *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		postsCollectedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "analytica_posts_collected_total",
				Help: "Total number of posts accepted by the collector, labeled by target kind.",
			},
			[]string{"kind"},
		)

		extractionFailuresTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "analytica_extraction_failures_total",
				Help: "Candidate cards skipped because a field could not be extracted.",
			},
			[]string{"kind"},
		)

		collectStopsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "analytica_collect_stops_total",
				Help: "Collection loops finished, labeled by stop reason.",
			},
			[]string{"reason"},
		)

		sessionBuildsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "analytica_session_builds_total",
				Help: "Browser session constructions, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		classificationsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "analytica_classifications_total",
				Help: "Labels produced, labeled by dimension and label.",
			},
			[]string{"dimension", "label"},
		)

		modelLoadsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "analytica_model_loads_total",
				Help: "Classifier instance constructions, labeled by dimension and outcome.",
			},
			[]string{"dimension", "outcome"},
		)

		translationFailuresTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "analytica_translation_failures_total",
				Help: "Translations that fell back to the original text.",
			},
		)

		languageDetectionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "analytica_language_detections_total",
				Help: "Detected languages, labeled by ISO 639-1 code or unknown.",
			},
			[]string{"language"},
		)

		pipelineRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "analytica_pipeline_runs_total",
				Help: "Pipeline runs, labeled by status.",
			},
			[]string{"status"},
		)

		pipelineRunDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "analytica_pipeline_run_duration_seconds",
				Help:    "Histogram of end-to-end pipeline run durations, labeled by target kind.",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300},
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

		activeWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "analytica_active_workers",
				Help: "Number of workers currently running a scheduled job.",
			},
		)

		navigationDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "analytica_navigation_delay_seconds",
				Help:    "Histogram of rate limit waits before a navigation.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"host"},
		)
	})
}

// SanitizeHost extracts a lowercase hostname from a URL for use as a label.
// It returns "unknown" if the URL is invalid.
func SanitizeHost(rawURL string) string {
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

// ObservePostCollected counts one accepted post.
func ObservePostCollected(kind string) {
	Init()
	postsCollectedTotal.WithLabelValues(kind).Inc()
}

// ObserveExtractionFailure counts one skipped candidate.
func ObserveExtractionFailure(kind string) {
	Init()
	extractionFailuresTotal.WithLabelValues(kind).Inc()
}

// ObserveCollectStop records why a collection loop ended.
func ObserveCollectStop(reason string) {
	Init()
	collectStopsTotal.WithLabelValues(reason).Inc()
}

// ObserveSessionBuild records a session construction outcome.
func ObserveSessionBuild(outcome string) {
	Init()
	sessionBuildsTotal.WithLabelValues(outcome).Inc()
}

// ObserveClassification counts a produced label.
func ObserveClassification(dimension, label string) {
	Init()
	classificationsTotal.WithLabelValues(dimension, label).Inc()
}

// ObserveModelLoad records a classifier construction outcome.
func ObserveModelLoad(dimension, outcome string) {
	Init()
	modelLoadsTotal.WithLabelValues(dimension, outcome).Inc()
}

// ObserveTranslationFailure counts a translation fallback.
func ObserveTranslationFailure() {
	Init()
	translationFailuresTotal.Inc()
}

// ObserveLanguage counts a detection result.
func ObserveLanguage(language string) {
	Init()
	languageDetectionsTotal.WithLabelValues(language).Inc()
}

// ObservePipelineRun records the status and duration of a pipeline run.
func ObservePipelineRun(kind, status string, duration time.Duration) {
	Init()
	pipelineRunsTotal.WithLabelValues(status).Inc()
	pipelineRunDurationSeconds.WithLabelValues(kind).Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	Init()
	activeWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	Init()
	activeWorkers.Dec()
}

// ObserveNavigationDelay records the duration of a rate limit wait.
func ObserveNavigationDelay(host string, duration time.Duration) {
	Init()
	navigationDelaySeconds.WithLabelValues(host).Observe(duration.Seconds())
}
