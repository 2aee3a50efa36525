// Package metrics exposes the operational counters spec §4.G and §4.H
// require, registered against the default Prometheus registry the way
// estuary-flow's network package wires its own proxy counters.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// IngestOutcome is one of the ingest finalize outcomes counted by
// IngestCounter (spec §4.G).
type IngestOutcome string

const (
	IngestSuccess               IngestOutcome = "success"
	IngestFailure               IngestOutcome = "failure"
	IngestKBTriggerStarted      IngestOutcome = "kb_trigger_started"
	IngestKBTriggerSucceeded    IngestOutcome = "kb_trigger_succeeded"
	IngestKBTriggerFailed       IngestOutcome = "kb_trigger_failed"
	IngestKBTriggerMissingCfg   IngestOutcome = "kb_trigger_missing_config"
)

var ingestCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "studybuddy_ingest_outcomes_total",
	Help: "counter of document ingestion finalize outcomes by kind",
}, []string{"outcome"})

// IngestCounter increments the named ingest outcome counter.
func IngestCounter(outcome IngestOutcome) {
	ingestCounter.WithLabelValues(string(outcome)).Inc()
}

var lmsSyncCourseCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "studybuddy_lms_sync_courses_total",
	Help: "counter of per-course LMS sync outcomes",
}, []string{"outcome"})

// LMSSyncCourseOutcome increments the per-course LMS sync outcome counter
// ("synced", "access_denied", "failed").
func LMSSyncCourseOutcome(outcome string) {
	lmsSyncCourseCounter.WithLabelValues(outcome).Inc()
}

var chatRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "studybuddy_generation_request_duration_seconds",
	Help:    "latency of generation pipeline requests by operation",
	Buckets: prometheus.DefBuckets,
}, []string{"operation"})

// ObserveGenerationDuration records the latency of a generation operation
// ("flashcards", "practice_exam", "chat") in seconds.
func ObserveGenerationDuration(operation string, seconds float64) {
	chatRequestDuration.WithLabelValues(operation).Observe(seconds)
}

// Handler serves the default Prometheus registry at /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
