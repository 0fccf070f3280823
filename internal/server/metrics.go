package server

import (
	"net/http"
	"time"

	"watchdash/internal/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors for evaluation cycles.
// It uses its own registry so tests can create as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	CyclesTotal      prometheus.Counter
	CycleErrorsTotal prometheus.Counter
	CycleDuration    prometheus.Histogram
	NoDataTotal      prometheus.Counter
	Signals          *prometheus.GaugeVec // labels: signal=entry|tp_half|trail
	WSClients        prometheus.Gauge
}

// NewMetrics registers and returns all collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		CyclesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "watchdash_cycles_total",
			Help: "Total evaluation cycles run",
		}),
		CycleErrorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "watchdash_cycle_errors_total",
			Help: "Cycles that failed to read or write the position store",
		}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "watchdash_cycle_duration_seconds",
			Help:    "Wall time of one evaluation cycle",
			Buckets: prometheus.DefBuckets,
		}),
		NoDataTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "watchdash_no_data_total",
			Help: "Symbols reported as NO DATA (fetch failures or short series)",
		}),
		Signals: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "watchdash_signals",
			Help: "Symbols firing each signal in the latest cycle",
		}, []string{"signal"}),
		WSClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "watchdash_ws_clients",
			Help: "Connected websocket subscribers",
		}),
	}
	m.registry.MustRegister(
		m.CyclesTotal,
		m.CycleErrorsTotal,
		m.CycleDuration,
		m.NoDataTotal,
		m.Signals,
		m.WSClients,
	)
	return m
}

// ObserveCycle records the outcome of one cycle.
func (m *Metrics) ObserveCycle(rows []models.StatusRow, elapsed time.Duration, err error) {
	m.CyclesTotal.Inc()
	m.CycleDuration.Observe(elapsed.Seconds())
	if err != nil {
		m.CycleErrorsTotal.Inc()
	}

	var entry, tp, trail, noData int
	for _, r := range rows {
		if r.Status == models.LabelNoData {
			noData++
		}
		if r.Entry {
			entry++
		}
		if r.TPHit {
			tp++
		}
		if r.TrailHit {
			trail++
		}
	}
	m.NoDataTotal.Add(float64(noData))
	m.Signals.WithLabelValues("entry").Set(float64(entry))
	m.Signals.WithLabelValues("tp_half").Set(float64(tp))
	m.Signals.WithLabelValues("trail").Set(float64(trail))
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
