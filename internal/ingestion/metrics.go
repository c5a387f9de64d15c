// Package ingestion — metrics.go registers all Prometheus metrics for the
// document pipeline and exposes helpers used by Process.
package ingestion

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// pipelineMetrics holds all Prometheus metrics owned by the ingestion
// pipeline. A single instance is created in NewPipeline and stored on
// Pipeline so that tests can inject a fresh prometheus.Registry without
// polluting the default one.
type pipelineMetrics struct {
	// documentsTotal counts documents that reached a terminal state,
	// partitioned by outcome: "complete", "failed", or "duplicate".
	documentsTotal *prometheus.CounterVec

	// stageDurationSeconds records the wall-clock duration of each pipeline
	// stage, including retries.
	stageDurationSeconds *prometheus.HistogramVec

	// chunksEmbeddedTotal counts chunk embeddings produced across all documents.
	chunksEmbeddedTotal prometheus.Counter

	// retriesTotal counts stage retry attempts, partitioned by stage.
	retriesTotal *prometheus.CounterVec

	// documentsInFlight is the number of documents currently being processed.
	documentsInFlight prometheus.Gauge
}

// newPipelineMetrics registers all pipeline metrics against reg and returns
// the populated pipelineMetrics. promauto.With(reg) is used so that each
// call registers into the provided registry rather than the global default —
// this keeps unit tests hermetic.
func newPipelineMetrics(reg prometheus.Registerer) *pipelineMetrics {
	factory := promauto.With(reg)

	return &pipelineMetrics{
		documentsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "arkb",
			Subsystem: "ingest",
			Name:      "documents_total",
			Help:      "Total number of documents that reached a terminal state, partitioned by outcome.",
		}, []string{"outcome"}),

		stageDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "arkb",
			Subsystem: "ingest",
			Name:      "stage_duration_seconds",
			Help:      "Wall-clock duration of each pipeline stage, including retries.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
		}, []string{"stage"}),

		chunksEmbeddedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "arkb",
			Subsystem: "ingest",
			Name:      "chunks_embedded_total",
			Help:      "Total number of chunk embeddings produced across all documents.",
		}),

		retriesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "arkb",
			Subsystem: "ingest",
			Name:      "retries_total",
			Help:      "Total number of stage retry attempts, partitioned by stage.",
		}, []string{"stage"}),

		documentsInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "arkb",
			Subsystem: "ingest",
			Name:      "documents_in_flight",
			Help:      "Number of documents currently being processed.",
		}),
	}
}
