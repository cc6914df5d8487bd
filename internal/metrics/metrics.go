// Package metrics exposes the Prometheus instruments updated by the
// clustering engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RunsTotal counts finished runs by algorithm and outcome
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nclust_runs_total",
			Help: "Total number of clustering runs by algorithm and status",
		},
		[]string{"algorithm", "status"},
	)

	// RunDurationSeconds measures wall time of a run from ALLOC to EXIT
	RunDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nclust_run_duration_seconds",
			Help:    "Duration of clustering runs",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
		},
		[]string{"algorithm"},
	)

	// IterationsTotal counts algorithm iterations
	IterationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nclust_iterations_total",
			Help: "Total number of algorithm iterations",
		},
		[]string{"algorithm"},
	)

	// PhaseDurationSeconds measures publish-to-idle latency of each phase
	PhaseDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nclust_phase_duration_seconds",
			Help:    "Time from publishing a phase until every worker reported done",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
		},
		[]string{"phase"},
	)

	// RowsChangedTotal counts rows whose assignment moved
	RowsChangedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nclust_rows_changed_total",
			Help: "Total number of rows that changed cluster",
		},
		[]string{"algorithm"},
	)

	// EmptyClustersTotal counts reductions that left a cluster without rows
	EmptyClustersTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "nclust_empty_clusters_total",
			Help: "Total number of empty clusters observed during reduction",
		},
	)

	// SingularCovariancesTotal counts skipped covariance updates
	SingularCovariancesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "nclust_singular_covariances_total",
			Help: "Total number of covariance matrices that were not positive definite",
		},
	)

	// SplitDecisionsTotal counts hierarchical split decisions
	SplitDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nclust_split_decisions_total",
			Help: "Total number of split decisions by outcome",
		},
		[]string{"decision"},
	)

	// WorkerErrorsTotal counts errors reported by workers
	WorkerErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nclust_worker_errors_total",
			Help: "Total number of errors reported by workers",
		},
		[]string{"type"},
	)

	// NumaWorkerDistribution tracks workers bound to each NUMA node
	NumaWorkerDistribution = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "nclust_numa_worker_distribution",
			Help: "Number of workers pinned to each NUMA node",
		},
		[]string{"node"},
	)

	// NumaPinFailuresTotal counts workers that could not be pinned
	NumaPinFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "nclust_numa_pin_failures_total",
			Help: "Total number of failed NUMA affinity calls",
		},
	)

	// DatasetRowsLoaded tracks rows loaded by the most recent load
	DatasetRowsLoaded = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "nclust_dataset_rows_loaded",
			Help: "Number of rows in the most recently loaded dataset",
		},
	)

	// ExportWriteDurationSeconds measures Parquet result writes
	ExportWriteDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nclust_export_write_duration_seconds",
			Help:    "Time taken to write result tables",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"table"},
	)

	// ExportRowsTotal counts rows written to result tables
	ExportRowsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nclust_export_rows_total",
			Help: "Total number of rows written to result tables",
		},
		[]string{"table"},
	)
)
