package services

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the marketplace Prometheus collectors. A single instance
// is created at startup and shared by the HTTP layer and the payment rail
// wrapper.
type Metrics struct {
	registry *prometheus.Registry

	JobOperations  *prometheus.CounterVec
	RailCalls      *prometheus.CounterVec
	RailLatency    *prometheus.HistogramVec
	Reconciliation prometheus.Gauge
	HTTPRequests   *prometheus.CounterVec
}

// NewMetrics registers the marketplace collectors on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		JobOperations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bazaar_job_operations_total",
			Help: "Engine operations by name and outcome.",
		}, []string{"operation", "outcome"}),
		RailCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bazaar_rail_calls_total",
			Help: "Payment rail calls by direction and outcome.",
		}, []string{"direction", "outcome"}),
		RailLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bazaar_rail_latency_seconds",
			Help:    "Payment rail call latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"direction"}),
		Reconciliation: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bazaar_reconciliation_open",
			Help: "Open reconciliation cases awaiting an operator.",
		}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bazaar_http_requests_total",
			Help: "HTTP API requests by path and status.",
		}, []string{"path", "status"}),
	}
	reg.MustRegister(m.JobOperations, m.RailCalls, m.RailLatency, m.Reconciliation, m.HTTPRequests)
	return m
}

// Handler serves the /metrics scrape endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// SetReconciliations tracks the number of open reconciliation cases.
func (m *Metrics) SetReconciliations(n int) {
	if m == nil {
		return
	}
	m.Reconciliation.Set(float64(n))
}

// RecordOperation counts one engine operation with a success or error
// outcome.
func (m *Metrics) RecordOperation(name string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.JobOperations.WithLabelValues(name, outcome).Inc()
}
