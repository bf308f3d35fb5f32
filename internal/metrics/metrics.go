// Package metrics exposes Prometheus collectors for the crawl pipeline.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	crawlFetchesTotal       *prometheus.CounterVec
	crawlItemsTotal         *prometheus.CounterVec
	crawlTasksTotal         *prometheus.CounterVec
	crawlRunSeconds         *prometheus.HistogramVec
	crawlActiveRuns         prometheus.Gauge
	crawlRetryAttemptsTotal *prometheus.CounterVec

	once sync.Once
)

// Init initializes the Prometheus collectors. Safe to call repeatedly.
func Init() {
	once.Do(func() {
		crawlFetchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawl_fetches_total",
				Help: "Total source fetch attempts, labeled by source and status.",
			},
			[]string{"source", "status"},
		)

		crawlItemsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawl_items_total",
				Help: "Total items processed, labeled by source and outcome.",
			},
			[]string{"source", "outcome"},
		)

		crawlTasksTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawl_tasks_total",
				Help: "Total crawl tasks reaching a terminal status.",
			},
			[]string{"status"},
		)

		crawlRunSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "crawl_run_duration_seconds",
				Help:    "Histogram of crawl run durations, labeled by source.",
				Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"source"},
		)

		crawlActiveRuns = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "crawl_active_runs",
				Help: "Number of crawl runs currently executing.",
			},
		)

		crawlRetryAttemptsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawl_retry_attempts_total",
				Help: "Total retried fetch attempts, labeled by source.",
			},
			[]string{"source"},
		)
	})
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveFetch records one fetch attempt.
func ObserveFetch(source, status string) {
	if crawlFetchesTotal != nil {
		crawlFetchesTotal.WithLabelValues(source, status).Inc()
	}
}

// ObserveItem records one item outcome.
func ObserveItem(source, outcome string) {
	if crawlItemsTotal != nil {
		crawlItemsTotal.WithLabelValues(source, outcome).Inc()
	}
}

// ObserveTask records a terminal task status.
func ObserveTask(status string) {
	if crawlTasksTotal != nil {
		crawlTasksTotal.WithLabelValues(status).Inc()
	}
}

// ObserveRun records the duration of a completed run.
func ObserveRun(source string, duration time.Duration) {
	if crawlRunSeconds != nil {
		crawlRunSeconds.WithLabelValues(source).Observe(duration.Seconds())
	}
}

// ObserveRetry records one retried attempt.
func ObserveRetry(source string) {
	if crawlRetryAttemptsTotal != nil {
		crawlRetryAttemptsTotal.WithLabelValues(source).Inc()
	}
}

// IncActiveRuns increments the active runs gauge.
func IncActiveRuns() {
	if crawlActiveRuns != nil {
		crawlActiveRuns.Inc()
	}
}

// DecActiveRuns decrements the active runs gauge.
func DecActiveRuns() {
	if crawlActiveRuns != nil {
		crawlActiveRuns.Dec()
	}
}
