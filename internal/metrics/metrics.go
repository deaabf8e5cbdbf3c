// Package metrics exposes Prometheus collectors for the sync service.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	syncPagesTotal          *prometheus.CounterVec
	syncItemsTotal          *prometheus.CounterVec
	syncRunsTotal           *prometheus.CounterVec
	syncRunDurationSeconds  *prometheus.HistogramVec
	syncCoverDownloadsTotal *prometheus.CounterVec
	httpRequestsTotal       *prometheus.CounterVec

	once sync.Once
)

// Init initializes the Prometheus collectors. It is safe to call multiple
// times.
func Init() {
	once.Do(func() {
		syncPagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalogsync_pages_total",
				Help: "Total feed pages fetched, labeled by state id.",
			},
			[]string{"state"},
		)

		syncItemsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalogsync_items_total",
				Help: "Total items processed, labeled by state id and result.",
			},
			[]string{"state", "result"},
		)

		syncRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalogsync_runs_total",
				Help: "Total pipeline invocations, labeled by state id and outcome.",
			},
			[]string{"state", "outcome"},
		)

		syncRunDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "catalogsync_run_duration_seconds",
				Help:    "Histogram of invocation wall-clock durations.",
				Buckets: []float64{0.5, 1, 5, 15, 30, 60, 120, 300},
			},
			[]string{"state"},
		)

		syncCoverDownloadsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalogsync_cover_downloads_total",
				Help: "Total cover downloads, labeled by result.",
			},
			[]string{"result"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total HTTP requests served, labeled by method and code.",
			},
			[]string{"method", "code"},
		)
	})
}

// Handler returns an http.Handler exposing the Prometheus registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObservePage counts one fetched feed page.
func ObservePage(state string) {
	Init()
	syncPagesTotal.WithLabelValues(state).Inc()
}

// ObserveItem counts one processed item with its result ("ok"/"error").
func ObserveItem(state, result string) {
	Init()
	syncItemsTotal.WithLabelValues(state, result).Inc()
}

// ObserveRun records an invocation outcome and duration.
func ObserveRun(state, outcome string, duration time.Duration) {
	Init()
	syncRunsTotal.WithLabelValues(state, outcome).Inc()
	syncRunDurationSeconds.WithLabelValues(state).Observe(duration.Seconds())
}

// ObserveCoverDownload counts one cover download attempt outcome.
func ObserveCoverDownload(result string) {
	Init()
	syncCoverDownloadsTotal.WithLabelValues(result).Inc()
}

// ObserveHTTPRequest counts one served HTTP request.
func ObserveHTTPRequest(method string, code int) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
}
