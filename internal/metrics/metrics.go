// Package metrics defines the Prometheus collectors of marine-anomaly. All
// collectors register with the default registry; the serving layer exposes
// them on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "marine"

	LabelUnit     = "unit"
	LabelValidity = "validity"
	LabelOp       = "op"
	LabelCache    = "cache"
	LabelRoute    = "route"
	LabelStatus   = "status"
)

// WindowsWritten counts persisted windows by validity (valid, invalid).
var WindowsWritten = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "writer",
	Name:      "windows_total",
	Help:      "Total number of windows persisted, by validity",
}, []string{LabelValidity})

// BatchesCommitted counts committed batches.
var BatchesCommitted = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "writer",
	Name:      "batches_committed_total",
	Help:      "Total number of batches committed to window/label stores",
}, []string{LabelUnit})

// BatchSeconds observes end-to-end batch time (extract + encode + commit).
var BatchSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: namespace,
	Subsystem: "writer",
	Name:      "batch_seconds",
	Help:      "Time to extract and commit one batch (1 ms to 60 s)",
	Buckets:   prometheus.ExponentialBucketsRange(0.001, 60, 10),
})

// UnitErrors counts processing units that failed.
var UnitErrors = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "writer",
	Name:      "unit_errors_total",
	Help:      "Total number of processing units that failed",
}, []string{LabelUnit})

// QueryRows counts records returned by the range query engine.
var QueryRows = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "query",
	Name:      "rows_total",
	Help:      "Total number of records returned, by operation",
}, []string{LabelOp})

// QueryErrors counts failed query operations.
var QueryErrors = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "query",
	Name:      "errors_total",
	Help:      "Total number of failed query operations",
}, []string{LabelOp})

// RowGroupsScanned counts row groups whose timestamp column was evaluated,
// and RowGroupsDecoded those that were fully decoded.
var (
	RowGroupsScanned = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "query",
		Name:      "row_groups_scanned_total",
		Help:      "Row groups whose timestamp column was evaluated",
	})
	RowGroupsDecoded = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "query",
		Name:      "row_groups_decoded_total",
		Help:      "Row groups fully decoded into records",
	})
)

// CacheHits and CacheMisses count result cache lookups.
var (
	CacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "hits_total",
		Help:      "Result cache hits",
	}, []string{LabelCache})
	CacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "misses_total",
		Help:      "Result cache misses",
	}, []string{LabelCache})
)

// RequestSeconds observes HTTP request latency.
var RequestSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: namespace,
	Subsystem: "http",
	Name:      "request_seconds",
	Help:      "HTTP request latency",
	Buckets:   prometheus.DefBuckets,
}, []string{LabelRoute, LabelStatus})
