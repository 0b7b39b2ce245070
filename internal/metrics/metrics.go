// Package metrics provides Prometheus metrics for the question answering
// pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// QuestionsTotal counts answered questions.
	// Labels: mode (text, multimodal), result (success, error)
	QuestionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docsight",
			Subsystem: "pipeline",
			Name:      "questions_total",
			Help:      "Total number of questions processed",
		},
		[]string{"mode", "result"},
	)

	// AnswerDuration tracks end-to-end question answering latency.
	AnswerDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "docsight",
			Subsystem: "pipeline",
			Name:      "answer_duration_seconds",
			Help:      "Duration of end-to-end question answering in seconds",
			Buckets:   prometheus.DefBuckets,
		},
	)

	// ChunksIngested counts text chunks added to the index.
	ChunksIngested = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "docsight",
			Subsystem: "ingest",
			Name:      "chunks_total",
			Help:      "Total number of text chunks ingested",
		},
	)

	// ImagesIngested counts image descriptions added to the index.
	ImagesIngested = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "docsight",
			Subsystem: "ingest",
			Name:      "images_total",
			Help:      "Total number of image descriptions ingested",
		},
	)

	// CredentialRotations counts credential failures that triggered rotation.
	CredentialRotations = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "docsight",
			Subsystem: "credentials",
			Name:      "rotations_total",
			Help:      "Total number of credential rotations after quota failures",
		},
	)
)

// RecordQuestion records the outcome of one answered question.
func RecordQuestion(multimodal bool, success bool, elapsed time.Duration) {
	mode := "text"
	if multimodal {
		mode = "multimodal"
	}
	result := "success"
	if !success {
		result = "error"
	}
	QuestionsTotal.WithLabelValues(mode, result).Inc()
	AnswerDuration.Observe(elapsed.Seconds())
}

// RecordIngest records the result of an ingestion run.
func RecordIngest(chunks, images int) {
	if chunks > 0 {
		ChunksIngested.Add(float64(chunks))
	}
	if images > 0 {
		ImagesIngested.Add(float64(images))
	}
}
