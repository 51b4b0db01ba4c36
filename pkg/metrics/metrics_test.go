package metrics

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounterAggregation(t *testing.T) {
	c := NewCollector()
	c.Inc(PairsCreated, 1, Label{Key: "status", Value: "OK"})
	c.Inc(PairsCreated, 2, Label{Key: "status", Value: "NEEDS_REVIEW"})
	c.Inc(BatchesProcessed, 1)

	assert.Equal(t, 3.0, c.Total(PairsCreated))
	assert.Equal(t, 1.0, c.Total(BatchesProcessed))
	assert.Equal(t, 0.0, c.Total(BatchTimeouts))

	snap := c.Snapshot()
	assert.Equal(t, 1.0, snap.Counters["pairs_total{status=OK}"])
	assert.Equal(t, 2.0, snap.Counters["pairs_total{status=NEEDS_REVIEW}"])
}

func TestLabelOrderIsCanonical(t *testing.T) {
	c := NewCollector()
	c.Inc(DocumentsExtracted, 1,
		Label{Key: "strategy", Value: "native"}, Label{Key: "extractor", Value: "bank_slip"})
	c.Inc(DocumentsExtracted, 1,
		Label{Key: "extractor", Value: "bank_slip"}, Label{Key: "strategy", Value: "native"})

	snap := c.Snapshot()
	assert.Equal(t, 2.0,
		snap.Counters["documents_extracted_total{extractor=bank_slip,strategy=native}"])
}

func TestGaugeOverwrites(t *testing.T) {
	c := NewCollector()
	c.SetGauge("inbox_folders", 12)
	c.SetGauge("inbox_folders", 7)
	assert.Equal(t, 7.0, c.Snapshot().Gauges["inbox_folders"])
}

func TestHistogramBuckets(t *testing.T) {
	c := NewCollector()
	c.Observe(BatchDuration, 0.3)
	c.Observe(BatchDuration, 2.0)
	c.Observe(BatchDuration, 120)

	h := c.Snapshot().Histograms[BatchDuration]
	assert.Equal(t, 3, h.Count)
	assert.InDelta(t, 122.3, h.Sum, 1e-9)
	assert.InDelta(t, 122.3/3, h.Avg, 1e-9)
	assert.Equal(t, 0, h.Buckets["le_0.25"])
	assert.Equal(t, 1, h.Buckets["le_0.5"])
	assert.Equal(t, 2, h.Buckets["le_2.5"])
	assert.Equal(t, 2, h.Buckets["le_60"])
	assert.Equal(t, 3, h.Buckets["le_+Inf"])
}

func TestPrometheusText(t *testing.T) {
	c := NewCollector()
	c.Inc(PairsCreated, 1, Label{Key: "status", Value: "OK"})
	c.Observe(BatchDuration, 0.2)

	text := c.PrometheusText()
	assert.Contains(t, text, "# TYPE pairs_total counter")
	assert.Contains(t, text, `pairs_total{status="OK"} 1`)
	assert.Contains(t, text, "# TYPE batch_duration_seconds histogram")
	assert.Contains(t, text, `batch_duration_seconds_bucket{le="0.25"} 1`)
	assert.Contains(t, text, "batch_duration_seconds_count 1")
}

func TestWriteJSON(t *testing.T) {
	c := NewCollector()
	c.Inc(BatchesProcessed, 2, Label{Key: "status", Value: "ok"})

	path := filepath.Join(t.TempDir(), "out", "metrics.json")
	require.NoError(t, c.WriteJSON(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var snap Snapshot
	require.NoError(t, json.Unmarshal(data, &snap))
	assert.Equal(t, 2.0, snap.Counters["batches_processed_total{status=ok}"])
}
