// Package metrics holds askdb's prometheus collectors. A Metrics value
// owns its registry so several instances (one per test) never collide.
// All methods are no-ops on a nil *Metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Attempt outcomes.
const (
	OutcomeSucceeded        = "succeeded"
	OutcomeExtractionFailed = "extraction_failed"
	OutcomeExecutionFailed  = "execution_failed"
	OutcomeEmptyResult      = "empty_result"
)

// Generation stages.
const (
	StageQuery  = "query"
	StageAnswer = "answer"
)

// Metrics is the set of collectors askdb updates.
type Metrics struct {
	registry *prometheus.Registry

	attemptsTotal      *prometheus.CounterVec
	synthesisTotal     *prometheus.CounterVec
	generationSeconds  *prometheus.HistogramVec
	querySeconds       prometheus.Histogram
	turnsTotal         *prometheus.CounterVec
	httpRequestsTotal  *prometheus.CounterVec
	httpRequestSeconds *prometheus.HistogramVec
}

// New creates the collectors and registers them, together with the Go
// runtime and process collectors, on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		attemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "askdb_synthesis_attempts_total",
				Help: "Query synthesis attempts by outcome.",
			},
			[]string{"outcome"},
		),
		synthesisTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "askdb_synthesis_total",
				Help: "Completed synthesis runs by result kind.",
			},
			[]string{"result"},
		),
		generationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "askdb_generation_seconds",
				Help:    "Text generation latency by stage.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30, 60, 120},
			},
			[]string{"stage"},
		),
		querySeconds: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "askdb_query_seconds",
				Help:    "Candidate query execution latency.",
				Buckets: prometheus.DefBuckets,
			},
		),
		turnsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "askdb_turns_total",
				Help: "Chat turns by outcome kind.",
			},
			[]string{"kind"},
		),
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "askdb_http_requests_total",
				Help: "Total number of HTTP requests.",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "askdb_http_request_duration_seconds",
				Help:    "HTTP request latency by route.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.attemptsTotal,
		m.synthesisTotal,
		m.generationSeconds,
		m.querySeconds,
		m.turnsTotal,
		m.httpRequestsTotal,
		m.httpRequestSeconds,
	)
	return m
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) ObserveAttempt(outcome string) {
	if m == nil {
		return
	}
	m.attemptsTotal.WithLabelValues(outcome).Inc()
}

// ObserveSynthesis records the end of a synthesis run; result is
// "succeeded" or an error kind name.
func (m *Metrics) ObserveSynthesis(result string) {
	if m == nil {
		return
	}
	m.synthesisTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveGeneration(stage string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.generationSeconds.WithLabelValues(stage).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveQuery(elapsed time.Duration) {
	if m == nil {
		return
	}
	m.querySeconds.Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveTurn(kind string) {
	if m == nil {
		return
	}
	m.turnsTotal.WithLabelValues(kind).Inc()
}

func (m *Metrics) ObserveHTTP(method, path, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.httpRequestSeconds.WithLabelValues(method, path).Observe(elapsed.Seconds())
}
