// Package metrics holds the Prometheus collectors for the story pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Requests counts pipeline runs by terminal state.
var Requests = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "picturebook",
	Subsystem: "pipeline",
	Name:      "requests_total",
	Help:      "Pipeline runs by terminal state.",
}, []string{"state"})

// StageDuration tracks how long each stage takes.
var StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "picturebook",
	Subsystem: "pipeline",
	Name:      "stage_duration_seconds",
	Help:      "Duration of each pipeline stage in seconds.",
	Buckets:   []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
}, []string{"stage", "outcome"})

// ModelLoads counts loader progress events.
var ModelLoads = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "picturebook",
	Subsystem: "loader",
	Name:      "events_total",
	Help:      "Model loader events by role and stage.",
}, []string{"role", "stage"})

// HistoryRecords is the number of records appended since start.
var HistoryRecords = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "picturebook",
	Subsystem: "history",
	Name:      "appended_total",
	Help:      "History records appended.",
})

// ImageBytes tracks the size of acquired images.
var ImageBytes = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: "picturebook",
	Subsystem: "images",
	Name:      "size_bytes",
	Help:      "Size of acquired images in bytes.",
	Buckets:   prometheus.ExponentialBuckets(16*1024, 4, 6),
})
