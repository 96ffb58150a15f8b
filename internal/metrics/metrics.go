// Package metrics exposes the Prometheus counters the /metrics endpoint
// serves: a request counter by outcome and a histogram of request duration.
// These sit alongside, not instead of, the Router's structured log
// record — the log line is the required observability contract; metrics
// are an ambient addition grounded in the pack's client_golang usage.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the registered collectors.
type Metrics struct {
	Requests        *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

// New registers a fresh set of collectors against a new registry and
// returns both the Metrics handle and an http.Handler for /metrics.
func New() (*Metrics, http.Handler) {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "inferencegate_requests_total",
			Help: "Total requests handled, by outcome.",
		}, []string{"outcome"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "inferencegate_request_duration_seconds",
			Help:    "Request handling duration in seconds, by outcome.",
			Buckets: prometheus.DefBuckets,
		}, []string{"outcome"}),
	}

	registry.MustRegister(m.Requests, m.RequestDuration)

	return m, promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// Observe records one completed request.
func (m *Metrics) Observe(outcome string, seconds float64) {
	m.Requests.WithLabelValues(outcome).Inc()
	m.RequestDuration.WithLabelValues(outcome).Observe(seconds)
}
