// Package metrics provides Prometheus metrics for pipeline execution
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Scan kinds reported by ObserveScan.
const (
	ScanFull  = "full"
	ScanIndex = "index"
)

// Pipeline outcomes reported by ObservePipeline.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// Metrics holds the pipeline collectors. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	PipelinesTotal      *prometheus.CounterVec
	PipelineDuration    prometheus.Histogram
	StageDocumentsTotal *prometheus.CounterVec
	ScansTotal          *prometheus.CounterVec
	IndexBuildsTotal    prometheus.Counter
}

// NewMetrics creates the collectors and registers them on reg. A nil reg
// creates unregistered collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		PipelinesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docpipe_pipelines_total",
				Help: "Total number of pipeline executions",
			},
			[]string{"outcome"},
		),
		PipelineDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "docpipe_pipeline_duration_seconds",
				Help:    "Duration of pipeline executions in seconds",
				Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1, 5},
			},
		),
		StageDocumentsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docpipe_stage_documents_total",
				Help: "Total number of documents emitted per stage kind",
			},
			[]string{"stage"},
		),
		ScansTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docpipe_scans_total",
				Help: "Total number of collection scans by access path",
			},
			[]string{"kind"},
		),
		IndexBuildsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "docpipe_index_builds_total",
				Help: "Total number of index builds and rebuilds",
			},
		),
	}
}

// ObservePipeline records one finished pipeline.
func (m *Metrics) ObservePipeline(start time.Time, err error) {
	if m == nil {
		return
	}
	outcome := OutcomeOK
	if err != nil {
		outcome = OutcomeError
	}
	m.PipelinesTotal.WithLabelValues(outcome).Inc()
	m.PipelineDuration.Observe(time.Since(start).Seconds())
}

// StageDocument counts one document emitted by a stage.
func (m *Metrics) StageDocument(stage string) {
	if m == nil {
		return
	}
	m.StageDocumentsTotal.WithLabelValues(stage).Inc()
}

// ObserveScan counts one base scan of the given kind.
func (m *Metrics) ObserveScan(kind string) {
	if m == nil {
		return
	}
	m.ScansTotal.WithLabelValues(kind).Inc()
}

// IndexBuilt counts one index build.
func (m *Metrics) IndexBuilt() {
	if m == nil {
		return
	}
	m.IndexBuildsTotal.Inc()
}
