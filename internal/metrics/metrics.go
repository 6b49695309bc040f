// Package metrics exposes prometheus instrumentation for retrieval, enrichment and the
// report store. A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "riskrag"

type Metrics struct {
	registry *prometheus.Registry

	searchTotal      *prometheus.CounterVec
	searchDuration   *prometheus.HistogramVec
	enrichTotal      *prometheus.CounterVec
	reportFetchTotal *prometheus.CounterVec
	reportFetchRows  prometheus.Histogram
	ingestEntries    *prometheus.CounterVec
	retrieverBuilds  *prometheus.CounterVec
}

func New() *Metrics {
	registry := prometheus.NewRegistry()

	searchTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "requests_total",
			Help:      "Total hybrid searches by collection and outcome.",
		},
		[]string{"collection", "outcome"},
	)
	searchDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "duration_seconds",
			Help:      "Hybrid search duration in seconds by collection.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"collection"},
	)
	enrichTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "enrich",
			Name:      "entries_total",
			Help:      "Evidence enrichment outcomes by status and reason.",
		},
		[]string{"status", "reason"},
	)
	reportFetchTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reports",
			Name:      "fetch_total",
			Help:      "Report store fetches by outcome.",
		},
		[]string{"outcome"},
	)
	reportFetchRows := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "reports",
			Name:      "fetch_rows",
			Help:      "Rows returned per report store fetch.",
			Buckets:   []float64{0, 1, 2, 5, 10, 20, 50, 100},
		},
	)
	ingestEntries := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "entries_total",
			Help:      "Entries added to collections by ingestion.",
		},
		[]string{"collection"},
	)
	retrieverBuilds := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "retriever_builds_total",
			Help:      "Retriever construction attempts by collection and outcome.",
		},
		[]string{"collection", "outcome"},
	)

	registry.MustRegister(searchTotal, searchDuration, enrichTotal, reportFetchTotal,
		reportFetchRows, ingestEntries, retrieverBuilds)

	return &Metrics{
		registry:         registry,
		searchTotal:      searchTotal,
		searchDuration:   searchDuration,
		enrichTotal:      enrichTotal,
		reportFetchTotal: reportFetchTotal,
		reportFetchRows:  reportFetchRows,
		ingestEntries:    ingestEntries,
		retrieverBuilds:  retrieverBuilds,
	}
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry, for tests and custom collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveSearch records one search. outcome is "hit", "empty", "unavailable" or "error".
func (m *Metrics) ObserveSearch(collection, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.searchTotal.WithLabelValues(collection, outcome).Inc()
	m.searchDuration.WithLabelValues(collection).Observe(duration.Seconds())
}

func (m *Metrics) ObserveEnrichment(status, reason string) {
	if m == nil {
		return
	}
	m.enrichTotal.WithLabelValues(status, reason).Inc()
}

// ObserveReportFetch records a store fetch. outcome is "ok", "error" or "breaker_open".
func (m *Metrics) ObserveReportFetch(outcome string, rows int) {
	if m == nil {
		return
	}
	m.reportFetchTotal.WithLabelValues(outcome).Inc()
	m.reportFetchRows.Observe(float64(rows))
}

func (m *Metrics) AddIngested(collection string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ingestEntries.WithLabelValues(collection).Add(float64(n))
}

func (m *Metrics) ObserveRetrieverBuild(collection, outcome string) {
	if m == nil {
		return
	}
	m.retrieverBuilds.WithLabelValues(collection, outcome).Inc()
}
