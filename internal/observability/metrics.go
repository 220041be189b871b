// Package observability holds the prometheus collectors for the application.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups every custom collector.
type Metrics struct {
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	WorkerTasksTotal   *prometheus.CounterVec
	WorkerTaskDuration prometheus.Histogram
	WorkerQueueDepth   prometheus.Gauge

	StoreErrorsTotal *prometheus.CounterVec
	Subscribers      *prometheus.GaugeVec
}

// NewMetrics registers the collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		HTTPRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "weighttracker_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "weighttracker_http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		WorkerTasksTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "weighttracker_worker_tasks_total",
				Help: "Mutations executed by the background worker",
			},
			[]string{"status"},
		),
		WorkerTaskDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "weighttracker_worker_task_duration_seconds",
				Help:    "Time spent executing one queued mutation",
				Buckets: prometheus.DefBuckets,
			},
		),
		WorkerQueueDepth: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "weighttracker_worker_queue_depth",
				Help: "Mutations waiting for the background worker",
			},
		),
		StoreErrorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "weighttracker_store_errors_total",
				Help: "Persistence failures converted to storage errors",
			},
			[]string{"op"},
		),
		Subscribers: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "weighttracker_stream_subscribers",
				Help: "Open websocket subscriptions to the trend channels",
			},
			[]string{"channel"},
		),
	}
}

// Default is registered on the global prometheus registry.
var Default = NewMetrics(prometheus.DefaultRegisterer)
