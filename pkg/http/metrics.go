package http

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the client's prometheus collectors. A nil *Metrics records
// nothing.
type Metrics struct {
	requests        *prometheus.CounterVec
	refreshes       *prometheus.CounterVec
	refreshDuration prometheus.Histogram
	waiters         prometheus.Gauge
	registry        *prometheus.Registry
}

// NewMetrics creates and registers the client metrics on a private registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "apiclient_requests_total",
			Help: "Requests dispatched by the client, by method and outcome",
		},
		[]string{"method", "outcome"},
	)
	refreshes := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "apiclient_token_refreshes_total",
			Help: "Refresh token exchanges, by result",
		},
		[]string{"result"},
	)
	refreshDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "apiclient_token_refresh_duration_seconds",
		Help:    "Duration of refresh token exchanges",
		Buckets: prometheus.DefBuckets,
	})
	waiters := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "apiclient_refresh_waiters",
		Help: "Requests queued behind an in-flight token refresh",
	})

	reg.MustRegister(requests, refreshes, refreshDuration, waiters)

	return &Metrics{
		requests:        requests,
		refreshes:       refreshes,
		refreshDuration: refreshDuration,
		waiters:         waiters,
		registry:        reg,
	}
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the metrics in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) observeRequest(method, outcome string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, outcome).Inc()
}

func (m *Metrics) observeRefresh(result string, took time.Duration) {
	if m == nil {
		return
	}
	m.refreshes.WithLabelValues(result).Inc()
	m.refreshDuration.Observe(took.Seconds())
}

func (m *Metrics) addWaiters(n int) {
	if m == nil {
		return
	}
	m.waiters.Add(float64(n))
}
