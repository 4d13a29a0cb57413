package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	Requests   *prometheus.CounterVec
	Latency    *prometheus.HistogramVec
	Operations *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// New registers the service collectors on reg. Passing a fresh
// prometheus.NewRegistry() keeps tests independent of the global registry.
func New(reg *prometheus.Registry) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Requests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shop",
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"method", "route", "status"}),
		Latency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "shop",
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"method", "route", "status"}),
		Operations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shop",
			Name:      "order_operations_total",
			Help:      "Order operations by outcome.",
		}, []string{"operation", "outcome"}),
		gatherer: reg,
	}
}

// RecordOperation counts one checkout/settle/... call. outcome is an error code
// or "success".
func (m *Metrics) RecordOperation(operation, outcome string) {
	if m == nil {
		return
	}
	m.Operations.WithLabelValues(operation, outcome).Inc()
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
