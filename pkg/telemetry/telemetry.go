// Package telemetry holds the process-wide Prometheus collectors. Scrape
// them via promhttp on /metrics.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EventsTotal counts accepted events by kind.
	EventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cardstate",
		Name:      "events_total",
		Help:      "Events accepted into the ingest queue, by event kind.",
	}, []string{"kind"})

	// EventsRejected counts events refused at the door (bad payload, full
	// queue), by reason.
	EventsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cardstate",
		Name:      "events_rejected_total",
		Help:      "Events rejected before enqueue, by reason.",
	}, []string{"reason"})

	// PatchOutcomes counts reducer results: applied, noop, tombstone, error.
	PatchOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cardstate",
		Name:      "patch_outcomes_total",
		Help:      "Reducer outcomes per processed event.",
	}, []string{"outcome"})

	// QueueDepth tracks the current ingest queue length.
	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "cardstate",
		Name:      "ingest_queue_depth",
		Help:      "Current number of events waiting in the ingest queue.",
	})

	// QueueDropped tracks events dropped because the queue was full.
	QueueDropped = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "cardstate",
		Name:      "ingest_queue_dropped_total",
		Help:      "Events dropped due to a full ingest queue.",
	})

	// ApplyDuration observes end-to-end reduce-and-persist latency.
	ApplyDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "cardstate",
		Name:      "apply_duration_seconds",
		Help:      "Time from dequeue to persisted snapshot.",
		Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 14),
	})

	// RetentionPurged counts notifications removed by the retention job.
	RetentionPurged = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "cardstate",
		Name:      "retention_purged_total",
		Help:      "Notifications removed by the retention job.",
	})
)
