package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type metrics struct {
	registry          *prometheus.Registry
	requestTotal      *prometheus.CounterVec
	requestDuration   *prometheus.HistogramVec
	responseBytes     *prometheus.HistogramVec
	rateLimitRejected *prometheus.CounterVec
	tasksEnqueued     *prometheus.CounterVec
	enqueueFailures   prometheus.Counter
}

func newMetrics() *metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &metrics{
		registry: registry,
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "docflow_api_requests_total",
			Help: "Total HTTP requests handled by the development gateway.",
		}, []string{"method", "route", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "docflow_api_request_duration_seconds",
			Help:    "Development gateway request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		responseBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "docflow_api_response_size_bytes",
			Help:    "Bytes written per development gateway response.",
			Buckets: prometheus.ExponentialBuckets(64, 4, 8),
		}, []string{"route"}),
		rateLimitRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "docflow_api_rate_limit_rejections_total",
			Help: "Total requests rejected by rate limiting.",
		}, []string{"route"}),
		tasksEnqueued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "docflow_queue_tasks_enqueued_total",
			Help: "Total analysis tasks enqueued.",
		}, []string{"queue"}),
		enqueueFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "docflow_queue_enqueue_failures_total",
			Help: "Analysis tasks that could not be enqueued; their jobs are marked failed.",
		}),
	}
	registry.MustRegister(
		m.requestTotal,
		m.requestDuration,
		m.responseBytes,
		m.rateLimitRejected,
		m.tasksEnqueued,
		m.enqueueFailures,
	)
	return m
}

func (m *metrics) metricsHandler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *metrics) withHTTPMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := routeLabel(r)
		status := statusLabel(ww.Status())

		m.requestTotal.WithLabelValues(r.Method, route, status).Inc()
		m.requestDuration.WithLabelValues(r.Method, route, status).Observe(time.Since(start).Seconds())
		m.responseBytes.WithLabelValues(route).Observe(float64(ww.BytesWritten()))
	})
}

func statusLabel(status int) string {
	if status == 0 {
		status = http.StatusOK
	}
	return strconv.Itoa(status)
}

// routeLabel is the matched chi pattern. It is only complete once routing
// has happened, so callers outside the router read it after ServeHTTP.
func routeLabel(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return "unmatched"
	}
	if pattern := rctx.RoutePattern(); pattern != "" {
		return pattern
	}
	return "unmatched"
}
