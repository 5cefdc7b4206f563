package harvest

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds refresh-cycle metrics on a private Prometheus registry so
// embedding applications control exposure.
type Metrics struct {
	registry *prometheus.Registry

	harvested *prometheus.CounterVec
	accepted  *prometheus.CounterVec
	suggested *prometheus.CounterVec
	unmapped  *prometheus.CounterVec
	conflicts *prometheus.CounterVec
	errors    *prometheus.CounterVec
	duration  prometheus.Histogram
}

// NewMetrics creates and registers the refresh metrics.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		harvested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "semharvest",
			Name:      "parameters_harvested_total",
			Help:      "Native parameters observed per dataset.",
		}, []string{"dataset"}),
		accepted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "semharvest",
			Name:      "mappings_accepted_total",
			Help:      "Mappings auto-accepted per dataset.",
		}, []string{"dataset"}),
		suggested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "semharvest",
			Name:      "mappings_suggested_total",
			Help:      "Mappings suggested for review per dataset.",
		}, []string{"dataset"}),
		unmapped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "semharvest",
			Name:      "parameters_unmapped_total",
			Help:      "Parameters below the suggest threshold per dataset.",
		}, []string{"dataset"}),
		conflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "semharvest",
			Name:      "mapping_conflicts_total",
			Help:      "Refused overwrites of accepted mappings per dataset.",
		}, []string{"dataset"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "semharvest",
			Name:      "harvest_errors_total",
			Help:      "Failed harvests per dataset.",
		}, []string{"dataset"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "semharvest",
			Name:      "refresh_duration_seconds",
			Help:      "Wall-clock duration of full refresh cycles.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
		}),
	}

	m.registry.MustRegister(m.harvested, m.accepted, m.suggested, m.unmapped, m.conflicts, m.errors, m.duration)
	return m
}

// Registry exposes the underlying Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an HTTP handler serving the metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) observeDataset(rep DatasetReport) {
	if rep.Error != "" {
		m.errors.WithLabelValues(rep.Dataset).Inc()
		return
	}
	m.harvested.WithLabelValues(rep.Dataset).Add(float64(rep.Harvested))
	m.accepted.WithLabelValues(rep.Dataset).Add(float64(rep.Accepted))
	m.suggested.WithLabelValues(rep.Dataset).Add(float64(rep.Suggested))
	m.unmapped.WithLabelValues(rep.Dataset).Add(float64(rep.Unmapped))
	m.conflicts.WithLabelValues(rep.Dataset).Add(float64(rep.Conflicts))
}

func (m *Metrics) observeRefresh(d time.Duration) {
	m.duration.Observe(d.Seconds())
}
