package ingest

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DocumentsTotal counts completed pipeline runs.
	// Labels: outcome (indexed, failed, abandoned)
	DocumentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragd",
			Subsystem: "ingest",
			Name:      "documents_total",
			Help:      "Total number of completed ingestion runs by outcome",
		},
		[]string{"outcome"},
	)

	// PipelineDuration tracks how long a full pipeline run takes.
	PipelineDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "ragd",
			Subsystem: "ingest",
			Name:      "pipeline_duration_seconds",
			Help:      "Duration of full ingestion pipeline runs in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		},
	)

	// ChunksIndexed counts chunks written to the vector index.
	ChunksIndexed = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "ragd",
			Subsystem: "ingest",
			Name:      "chunks_indexed_total",
			Help:      "Total number of chunks written to the vector index",
		},
	)

	// QueueDepth is the number of uploads waiting for a worker.
	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "ragd",
			Subsystem: "ingest",
			Name:      "queue_depth",
			Help:      "Number of accepted uploads waiting for a pipeline worker",
		},
	)

	// UploadsTotal counts upload requests.
	// Labels: result (accepted, rejected)
	UploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragd",
			Subsystem: "ingest",
			Name:      "uploads_total",
			Help:      "Total number of upload requests by result",
		},
		[]string{"result"},
	)
)
