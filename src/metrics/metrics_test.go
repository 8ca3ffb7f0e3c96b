package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetricsRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.ObservePipeline(time.Now(), nil)
	m.ObservePipeline(time.Now(), errors.New("boom"))
	m.ObservePipeline(time.Now(), nil)
	m.StageDocument("$match")
	m.StageDocument("$match")
	m.ObserveScan(ScanIndex)
	m.IndexBuilt()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.PipelinesTotal.WithLabelValues(OutcomeOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PipelinesTotal.WithLabelValues(OutcomeError)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.StageDocumentsTotal.WithLabelValues("$match")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ScansTotal.WithLabelValues(ScanIndex)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.IndexBuildsTotal))
	assert.Equal(t, 1, testutil.CollectAndCount(m.PipelineDuration))

	n, err := testutil.GatherAndCount(reg, "docpipe_pipelines_total")
	assert.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObservePipeline(time.Now(), nil)
		m.StageDocument("$sort")
		m.ObserveScan(ScanFull)
		m.IndexBuilt()
	})
}
