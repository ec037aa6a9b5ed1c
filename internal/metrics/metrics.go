// Package metrics defines the Prometheus instrumentation for the audit
// pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Scan pipeline metrics
var (
	// ScanRunsTotal tracks completed scan runs by kind and status.
	ScanRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scan_runs_total",
			Help: "Total number of scan runs by kind and status",
		},
		[]string{"kind", "status"},
	)

	// ScanRunDuration tracks whole-run duration.
	ScanRunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scan_run_duration_seconds",
			Help:    "Scan run duration in seconds",
			Buckets: []float64{10, 30, 60, 300, 600, 1800, 3600, 7200},
		},
		[]string{"kind"},
	)

	// SitesScannedTotal tracks per-site task outcomes.
	SitesScannedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sites_scanned_total",
			Help: "Total number of per-site scan tasks by outcome",
		},
		[]string{"outcome"},
	)

	// ScanBatchesInProgress tracks the currently executing batch, if any.
	ScanBatchesInProgress = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "scan_batches_in_progress",
			Help: "Number of scanner batches currently executing",
		},
	)
)

// Directory client metrics
var (
	// DirectoryRequestsTotal tracks outbound directory calls by HTTP status.
	DirectoryRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "directory_requests_total",
			Help: "Total outbound directory service requests by status",
		},
		[]string{"status"},
	)

	// DirectoryRequestDuration tracks outbound call latency.
	DirectoryRequestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "directory_request_duration_seconds",
			Help:    "Directory service request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// RetryAttemptsTotal tracks backoff retries issued by the executor's
	// callers, labeled by operation.
	RetryAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retry_attempts_total",
			Help: "Total retry attempts against the directory service",
		},
		[]string{"operation"},
	)
)

// Cache metrics
var (
	// SiteCacheRebuildsTotal tracks site list rebuilds by trigger.
	SiteCacheRebuildsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "site_cache_rebuilds_total",
			Help: "Total site list cache rebuilds by trigger",
		},
		[]string{"trigger"},
	)

	// InventoryCacheHitsTotal tracks inventory cache hits and misses.
	InventoryCacheHitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inventory_cache_hits_total",
			Help: "Inventory cache lookups by result",
		},
		[]string{"result"},
	)
)
