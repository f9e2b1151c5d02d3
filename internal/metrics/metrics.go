// Package metrics exposes Prometheus collectors for the indexer service.
package metrics

import (
	"net/http"
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	fetchesTotal         *prometheus.CounterVec
	runsTotal            *prometheus.CounterVec
	urlsProcessedTotal   *prometheus.CounterVec
	productsUpserted     prometheus.Counter
	enrichmentItemsTotal *prometheus.CounterVec
	activeRuns           prometheus.Gauge

	once sync.Once
)

// Init initializes the Prometheus collectors. It is safe to call multiple
// times.
func Init() {
	once.Do(func() {
		fetchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shopindex_fetches_total",
				Help: "Total fetches, labeled by transport stage and status code.",
			},
			[]string{"transport", "code"},
		)
		runsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shopindex_runs_total",
				Help: "Total crawl runs, labeled by terminal status.",
			},
			[]string{"status"},
		)
		urlsProcessedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shopindex_urls_processed_total",
				Help: "Crawl URLs processed, labeled by terminal status.",
			},
			[]string{"status"},
		)
		productsUpserted = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "shopindex_products_upserted_total",
				Help: "Catalog product rows written.",
			},
		)
		enrichmentItemsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shopindex_enrichment_items_total",
				Help: "Enrichment items processed, labeled by kind and outcome.",
			},
			[]string{"kind", "outcome"},
		)
		activeRuns = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "shopindex_active_runs",
				Help: "Number of runs currently in the running state.",
			},
		)
	})
}

// ObserveFetch records one fetch attempt outcome.
func ObserveFetch(transport string, code int) {
	if fetchesTotal == nil {
		return
	}
	fetchesTotal.WithLabelValues(transport, strconv.Itoa(code)).Inc()
}

// ObserveRun records a terminal run status.
func ObserveRun(status string) {
	if runsTotal == nil {
		return
	}
	runsTotal.WithLabelValues(status).Inc()
}

// ObserveURL records one processed crawl URL.
func ObserveURL(status string) {
	if urlsProcessedTotal == nil {
		return
	}
	urlsProcessedTotal.WithLabelValues(status).Inc()
}

// ObserveProducts records persisted catalog rows.
func ObserveProducts(n int) {
	if productsUpserted == nil {
		return
	}
	productsUpserted.Add(float64(n))
}

// ObserveEnrichment records one enrichment item outcome.
func ObserveEnrichment(kind, outcome string) {
	if enrichmentItemsTotal == nil {
		return
	}
	enrichmentItemsTotal.WithLabelValues(kind, outcome).Inc()
}

// RunStarted and RunFinished adjust the active-run gauge.
func RunStarted() {
	if activeRuns != nil {
		activeRuns.Inc()
	}
}

// RunFinished decrements the active-run gauge.
func RunFinished() {
	if activeRuns != nil {
		activeRuns.Dec()
	}
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
