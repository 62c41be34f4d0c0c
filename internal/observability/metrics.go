// Package observability registers the Prometheus metrics exported by the
// training-log services.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	rowOutcomeCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "supertl",
		Subsystem: "reconcile",
		Name:      "rows_total",
		Help:      "Staging rows processed, by source and outcome.",
	}, []string{"source", "outcome"})

	batchFinishedGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "supertl",
		Subsystem: "reconcile",
		Name:      "last_batch_finished_timestamp_seconds",
		Help:      "Unix timestamp of the most recent completed reconcile batch.",
	})

	repairLinkedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "supertl",
		Subsystem: "repair",
		Name:      "annotations_linked_total",
		Help:      "Annotation rows back-linked to a canonical activity by the repair pass.",
	})

	repairRunGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "supertl",
		Subsystem: "repair",
		Name:      "last_run_timestamp_seconds",
		Help:      "Unix timestamp of the most recent repair pass.",
	})
)

func init() {
	prometheus.MustRegister(rowOutcomeCounter, batchFinishedGauge, repairLinkedCounter, repairRunGauge)
}

// RecordRowOutcome counts one reconciled staging row.
func RecordRowOutcome(source, outcome string) {
	rowOutcomeCounter.WithLabelValues(source, outcome).Inc()
}

// RecordBatchFinished updates the reconcile watermark gauge.
func RecordBatchFinished(ts time.Time) {
	if ts.IsZero() {
		return
	}
	batchFinishedGauge.Set(float64(ts.Unix()))
}

// RecordRepairRun records one repair pass and how many links it set.
func RecordRepairRun(linked int64, ts time.Time) {
	if linked > 0 {
		repairLinkedCounter.Add(float64(linked))
	}
	if !ts.IsZero() {
		repairRunGauge.Set(float64(ts.Unix()))
	}
}
