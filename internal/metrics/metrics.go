// Package metrics provides Prometheus metrics for Redline.
// It tracks queue traffic, pool selection, delayed delivery and store latency.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "redline"
)

// Result label values.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// Message metrics track traffic through the queue server.
var (
	// MessagesQueuedTotal counts committed enqueues, labeled by segment ("" when unsharded).
	MessagesQueuedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_queued_total",
			Help:      "Total number of messages committed to a pending list",
		},
		[]string{"segment"},
	)

	// MessagesDequeuedTotal counts messages handed to consumers.
	MessagesDequeuedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_dequeued_total",
			Help:      "Total number of messages removed from a pending list",
		},
		[]string{"segment", "end"}, // end: head, tail
	)

	// MessagesRequeuedTotal counts requeues.
	MessagesRequeuedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_requeued_total",
			Help:      "Total number of messages put back on a pending list",
		},
		[]string{"segment"},
	)

	// MessagesDelayedTotal counts messages parked in the delayed set.
	MessagesDelayedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_delayed_total",
			Help:      "Total number of messages moved to the delayed set",
		},
		[]string{"segment"},
	)

	// MessagesDeadLetteredTotal counts messages archived after exceeding the requeue limit.
	MessagesDeadLetteredTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_dead_lettered_total",
			Help:      "Total number of messages archived to the dead-letter store",
		},
		[]string{"segment"},
	)

	// PurgesTotal counts namespace purges.
	PurgesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "purges_total",
			Help:      "Total number of queue namespace purges",
		},
	)

	// PendingMessages reports the last observed global pending list length.
	PendingMessages = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_messages",
			Help:      "Last observed length of the global pending list",
		},
	)
)

// Pool metrics track round-robin segment selection.
var (
	// SegmentSelectionsTotal counts NextSegment results per pool and segment.
	SegmentSelectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segment_selections_total",
			Help:      "Total number of segments handed out by distribution pools",
		},
		[]string{"pool", "segment"},
	)
)

// Reaper metrics track delayed delivery.
var (
	// ReaperRelocationsTotal counts delayed messages moved back to pending lists.
	ReaperRelocationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reaper_relocations_total",
			Help:      "Total number of due delayed messages returned to pending lists",
		},
	)

	// ReaperRunsTotal counts reaper scans by result.
	ReaperRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reaper_runs_total",
			Help:      "Total number of delayed set scans",
		},
		[]string{"result"},
	)
)

// Ingress metrics track records arriving from external sources.
var (
	// IngressRecordsTotal counts records by source and result.
	IngressRecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingress_records_total",
			Help:      "Total number of ingress records handled",
		},
		[]string{"source", "result"},
	)
)

// Storage metrics track store operations.
var (
	// StorageOperationLatency measures latency of store operations.
	StorageOperationLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "storage_operation_latency_seconds",
			Help:      "Latency of store operations in seconds",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25, .5},
		},
		[]string{"store", "operation"}, // store: redis, postgres
	)

	// StorageOperationsTotal counts store operations.
	StorageOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "storage_operations_total",
			Help:      "Total number of store operations",
		},
		[]string{"store", "operation", "status"}, // status: success, failure
	)
)

// ObserveStorage records latency and outcome of one store operation.
func ObserveStorage(store, operation string, seconds float64, err error) {
	StorageOperationLatency.WithLabelValues(store, operation).Observe(seconds)
	status := ResultSuccess
	if err != nil {
		status = ResultFailure
	}
	StorageOperationsTotal.WithLabelValues(store, operation, status).Inc()
}
