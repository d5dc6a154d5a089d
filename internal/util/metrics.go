package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SalesRecordedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sales_recorded_total",
		Help: "Total number of sale records stored, by source",
	}, []string{"source"})

	SalesSkippedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sales_skipped_total",
		Help: "Total number of sale records skipped, by source and reason",
	}, []string{"source", "reason"})

	SalesResetTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sales_reset_total",
		Help: "Total number of sale records removed by reset operations",
	})

	AdapterRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "adapter_requests_total",
		Help: "Total number of platform API requests",
	}, []string{"platform", "outcome"})

	AdapterRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "adapter_retries_total",
		Help: "Total number of platform API retry attempts",
	}, []string{"platform"})

	AdapterRequestLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "adapter_request_latency_seconds",
		Help:    "Latency of platform API requests including retries",
		Buckets: prometheus.DefBuckets,
	}, []string{"platform"})

	ImportStepsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "import_steps_total",
		Help: "Total number of batch import steps",
	}, []string{"source", "outcome"})

	ImportRecordsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "import_records_total",
		Help: "Total number of records processed by batch imports",
	}, []string{"source"})

	LiveSyncRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "live_sync_runs_total",
		Help: "Total number of live sync runs",
	}, []string{"scope", "outcome"})

	EventCacheLookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "event_cache_lookups_total",
		Help: "Event listing cache lookups by result",
	}, []string{"result"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
