// Package metrics exposes Prometheus collectors for pipeline runs and the read API.
package metrics

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the collectors of one registry. A nil *Metrics is a no-op.
type Metrics struct {
	pagesTotal          *prometheus.CounterVec
	itemsDroppedTotal   prometheus.Counter
	aiCallsTotal        *prometheus.CounterVec
	aiTokensTotal       prometheus.Counter
	normalizationsTotal *prometheus.CounterVec
	rowsPersistedTotal  prometheus.Counter
	runDurationSeconds  prometheus.Histogram
	rateLimitDelay      *prometheus.HistogramVec

	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
}

// New registers every collector on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		pagesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "top250_pages_total",
				Help: "Listing pages requested, labeled by result.",
			},
			[]string{"result"},
		),
		itemsDroppedTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "top250_items_dropped_total",
			Help: "Listing items dropped for missing structure.",
		}),
		aiCallsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "top250_ai_calls_total",
				Help: "Completion attempts, labeled by outcome.",
			},
			[]string{"outcome"},
		),
		aiTokensTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "top250_ai_tokens_total",
			Help: "Tokens reported by successful completions.",
		}),
		normalizationsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "top250_normalizations_total",
				Help: "Per-record normalization outcomes.",
			},
			[]string{"result"},
		),
		rowsPersistedTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "top250_rows_persisted_total",
			Help: "Rows written by batch upserts.",
		}),
		runDurationSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "top250_run_duration_seconds",
			Help:    "Wall time of a full pipeline run.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		}),
		rateLimitDelay: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "top250_ratelimit_delay_seconds",
				Help:    "Time callers waited on a rate limiter, labeled by key.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10},
			},
			[]string{"key"},
		),
		httpRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		),
		httpRequestDurationSeconds: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"method", "route"},
		),
	}
}

// PageFetched counts one listing page by result ("ok", "blocked", "error").
func (m *Metrics) PageFetched(result string) {
	if m == nil {
		return
	}
	m.pagesTotal.WithLabelValues(result).Inc()
}

// ItemsDropped adds n dropped listing items.
func (m *Metrics) ItemsDropped(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.itemsDroppedTotal.Add(float64(n))
}

// AICall counts one completion attempt.
func (m *Metrics) AICall(outcome string, tokens int) {
	if m == nil {
		return
	}
	m.aiCallsTotal.WithLabelValues(outcome).Inc()
	if tokens > 0 {
		m.aiTokensTotal.Add(float64(tokens))
	}
}

// Normalization counts one record outcome.
func (m *Metrics) Normalization(result string) {
	if m == nil {
		return
	}
	m.normalizationsTotal.WithLabelValues(result).Inc()
}

// RowsPersisted adds n written rows.
func (m *Metrics) RowsPersisted(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.rowsPersistedTotal.Add(float64(n))
}

// RunFinished observes the duration of a run.
func (m *Metrics) RunFinished(d time.Duration) {
	if m == nil {
		return
	}
	m.runDurationSeconds.Observe(d.Seconds())
}

// RateLimitDelay observes time spent waiting on a limiter.
func (m *Metrics) RateLimitDelay(key string, d time.Duration) {
	if m == nil {
		return
	}
	m.rateLimitDelay.WithLabelValues(key).Observe(d.Seconds())
}

// ObserveHTTPRequest records one API request.
func (m *Metrics) ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	if m == nil {
		return
	}
	m.httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	m.httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// Handler exposes g in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// WriteTextfile dumps g to path for the node_exporter textfile collector.
func WriteTextfile(path string, g prometheus.Gatherer) error {
	if err := prometheus.WriteToTextfile(path, g); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
