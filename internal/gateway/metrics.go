package gateway

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type metrics struct {
	registry        *prometheus.Registry
	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	fallbackTotal   *prometheus.CounterVec
}

func newMetrics() *metrics {
	registry := prometheus.NewRegistry()

	m := &metrics{
		registry: registry,
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "docflow_gateway_requests_total",
			Help: "Total gateway operations by outcome source.",
		}, []string{"operation", "source"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "docflow_gateway_request_duration_seconds",
			Help:    "Gateway operation latency in seconds, fallback included.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation", "source"}),
		fallbackTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "docflow_gateway_fallbacks_total",
			Help: "Total gateway operations answered from mock data.",
		}, []string{"operation"}),
	}
	registry.MustRegister(
		m.requestTotal,
		m.requestDuration,
		m.fallbackTotal,
	)
	return m
}

func (m *metrics) observe(op string, source Source, startedAt time.Time) {
	m.requestTotal.WithLabelValues(op, string(source)).Inc()
	m.requestDuration.WithLabelValues(op, string(source)).Observe(time.Since(startedAt).Seconds())
	if source == SourceFallback {
		m.fallbackTotal.WithLabelValues(op).Inc()
	}
}

func (m *metrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
