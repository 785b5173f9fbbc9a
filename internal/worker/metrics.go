package worker

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type metrics struct {
	registry        *prometheus.Registry
	tasksTotal      *prometheus.CounterVec
	taskDuration    *prometheus.HistogramVec
	activeTasks     prometheus.Gauge
	documentBytes   prometheus.Counter
	reportPages     prometheus.Counter
	webhookFailures *prometheus.CounterVec
}

func newMetrics() *metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &metrics{
		registry: registry,
		tasksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "docflow_worker_tasks_total",
			Help: "Total analysis tasks by outcome.",
		}, []string{"outcome"}),
		taskDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "docflow_worker_task_duration_seconds",
			Help:    "Duration of each analysis task.",
			Buckets: prometheus.DefBuckets,
		}, []string{"outcome"}),
		activeTasks: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "docflow_worker_active_tasks",
			Help: "Analysis tasks currently running.",
		}),
		documentBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "docflow_worker_document_bytes_total",
			Help: "Total document bytes analyzed.",
		}),
		reportPages: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "docflow_worker_report_pages_total",
			Help: "Total pages counted across completed reports.",
		}),
		webhookFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "docflow_worker_webhook_failures_total",
			Help: "Webhook deliveries that failed after all attempts.",
		}, []string{"event"}),
	}

	registry.MustRegister(
		m.tasksTotal,
		m.taskDuration,
		m.activeTasks,
		m.documentBytes,
		m.reportPages,
		m.webhookFailures,
	)
	return m
}

func (m *metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
