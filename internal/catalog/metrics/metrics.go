package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TransactionsStarted tracks begun transactions by kind (root/nested)
	TransactionsStarted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "corpus_transactions_started_total",
			Help: "Total number of transactions begun",
		},
		[]string{"kind"},
	)

	// TransactionsCompleted tracks terminal transitions by status
	TransactionsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "corpus_transactions_completed_total",
			Help: "Total number of transactions reaching a terminal status",
		},
		[]string{"status"},
	)

	// OperationsRecorded tracks operations appended to transaction logs
	OperationsRecorded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "corpus_operations_recorded_total",
			Help: "Total number of operations recorded in transactions",
		},
		[]string{"kind", "action"},
	)

	// TransactionsSwept tracks contexts removed by the cleanup sweep
	TransactionsSwept = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "corpus_transactions_swept_total",
			Help: "Total number of terminal transactions garbage-collected",
		},
	)

	// VectorBatchesTotal tracks vector-store batch calls by operation
	VectorBatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "corpus_vector_batches_total",
			Help: "Total number of vector store batch calls",
		},
		[]string{"op"},
	)

	// VectorBatchRetries tracks per-batch retry attempts
	VectorBatchRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "corpus_vector_batch_retries_total",
			Help: "Total number of vector store batch retries",
		},
		[]string{"op"},
	)

	// VectorBatchFailures tracks batch jobs aborted by an unrecoverable error
	VectorBatchFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "corpus_vector_batch_failures_total",
			Help: "Total number of vector store batch jobs that failed",
		},
		[]string{"op"},
	)

	// VectorBatchSize observes items per batch call
	VectorBatchSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "corpus_vector_batch_size",
			Help:    "Number of items per vector store batch call",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		},
	)

	// VectorCleanupFailures tracks vector deletions that failed after a
	// relational collection delete (reconciled by the external GC pass)
	VectorCleanupFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "corpus_vector_cleanup_failures_total",
			Help: "Total number of swallowed vector-store cleanup failures",
		},
	)

	// DBConnectionPoolUsage tracks relational pool utilization
	DBConnectionPoolUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "corpus_db_connection_pool_usage",
			Help: "Percentage of database connections in use",
		},
	)
)
