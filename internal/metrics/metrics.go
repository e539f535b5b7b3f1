// Package metrics exposes Prometheus collectors for a load run.
//
// Collectors live on a private registry so every run reports only its own
// numbers. A one-shot job has nothing to scrape, so the registry is pushed to
// a Pushgateway once the run ends.
package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Metrics holds the collectors of one run.
type Metrics struct {
	registry *prometheus.Registry

	fetchTotal       *prometheus.CounterVec
	fetchDuration    prometheus.Histogram
	pagesTotal       prometheus.Counter
	documentsTotal   prometheus.Counter
	upsertsTotal     *prometheus.CounterVec
	runDuration      prometheus.Gauge
	lastSuccessfulTS prometheus.Gauge
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		fetchTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "apitosql_fetch_total",
				Help: "Total number of API requests, labeled by outcome.",
			},
			[]string{"outcome"},
		),
		fetchDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "apitosql_fetch_duration_seconds",
				Help:    "Histogram of API request latencies.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
		),
		pagesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "apitosql_pages_total",
				Help: "Total number of listing pages fetched.",
			},
		),
		documentsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "apitosql_documents_total",
				Help: "Total number of entity documents expanded.",
			},
		),
		upsertsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "apitosql_upserts_total",
				Help: "Total number of document writes, labeled by outcome.",
			},
			[]string{"outcome"},
		),
		runDuration: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "apitosql_run_duration_seconds",
				Help: "Wall clock duration of the run.",
			},
		),
		lastSuccessfulTS: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "apitosql_last_success_timestamp_seconds",
				Help: "Unix time of the last run that finished without error.",
			},
		),
	}
}

// Registry returns the registry holding the collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveFetch records one API request.
func (m *Metrics) ObserveFetch(outcome string, duration time.Duration) {
	m.fetchTotal.WithLabelValues(outcome).Inc()
	m.fetchDuration.Observe(duration.Seconds())
}

// ObservePage counts a fetched listing page.
func (m *Metrics) ObservePage() {
	m.pagesTotal.Inc()
}

// ObserveDocument counts an expanded document.
func (m *Metrics) ObserveDocument() {
	m.documentsTotal.Inc()
}

// ObserveUpsert counts a document write.
func (m *Metrics) ObserveUpsert(outcome string) {
	m.upsertsTotal.WithLabelValues(outcome).Inc()
}

// ObserveRun records the run duration.
func (m *Metrics) ObserveRun(duration time.Duration) {
	m.runDuration.Set(duration.Seconds())
}

// MarkSuccess stamps the time of a run that finished without error.
func (m *Metrics) MarkSuccess(at time.Time) {
	m.lastSuccessfulTS.Set(float64(at.Unix()))
}

// Push replaces the metrics of job and variant on the Pushgateway at url.
func (m *Metrics) Push(ctx context.Context, url, job, variant string) error {
	pusher := push.New(url, job).Gatherer(m.registry)
	if variant != "" {
		pusher = pusher.Grouping("variant", variant)
	}
	if err := pusher.PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics to %s: %w", url, err)
	}
	return nil
}
