package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Stage outcomes
const (
	OutcomeOK       = "ok"
	OutcomeDegraded = "degraded"
	OutcomeFailed   = "failed"
	OutcomeSkipped  = "skipped"
)

var (
	filesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "transcriber_files_total",
		Help: "Source files processed, by result",
	}, []string{"status"})

	stageOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "transcriber_stage_outcomes_total",
		Help: "Pipeline stage outcomes (normalize, split, transcribe)",
	}, []string{"stage", "outcome"})

	transcriptionLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "transcriber_channel_seconds",
		Help:    "Wall time to transcribe and write one channel",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
	}, []string{"channel"})

	segmentsWritten = promauto.NewCounter(prometheus.CounterOpts{
		Name: "transcriber_segments_total",
		Help: "Non-empty segments written to transcripts",
	})

	queueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "transcriber_queue_depth",
		Help: "Jobs waiting in the queue",
	})

	jobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "transcriber_jobs_total",
		Help: "Batch jobs finished, by status",
	}, []string{"status"})
)

// RecordStage counts one stage outcome
func RecordStage(stage, outcome string) {
	stageOutcomes.WithLabelValues(stage, outcome).Inc()
}

// RecordFile counts one processed source file
func RecordFile(status string) {
	filesProcessed.WithLabelValues(status).Inc()
}

// ObserveChannel records the time spent on one channel and its segments
func ObserveChannel(channel string, seconds float64, segments int) {
	transcriptionLatency.WithLabelValues(channel).Observe(seconds)
	segmentsWritten.Add(float64(segments))
}

// SetQueueDepth reports the pending job count
func SetQueueDepth(n int) {
	queueDepth.Set(float64(n))
}

// RecordJob counts one finished job
func RecordJob(status string) {
	jobsTotal.WithLabelValues(status).Inc()
}
