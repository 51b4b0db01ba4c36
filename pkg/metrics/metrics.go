// Package metrics collects in-process counters, gauges and latency
// histograms for the ingestion pipeline and exports them as JSON or
// Prometheus exposition text.
package metrics

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Standard metric names recorded by the pipeline.
const (
	BatchesProcessed   = "batches_processed_total"
	BatchesSkipped     = "batches_skipped_total"
	BatchTimeouts      = "batch_timeouts_total"
	DocumentsExtracted = "documents_extracted_total"
	PairsCreated       = "pairs_total"
	LinkNotices        = "link_notices_total"
	BatchDuration      = "batch_duration_seconds"
)

// Label qualifies a metric ("status", "extractor", ...).
type Label struct {
	Key   string
	Value string
}

// Buckets tuned for I/O-bound batch operations, in seconds.
var defaultBuckets = []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, math.Inf(1)}

type histogram struct {
	buckets []float64
	counts  []int
	sum     float64
	count   int
}

func newHistogram() *histogram {
	return &histogram{buckets: defaultBuckets, counts: make([]int, len(defaultBuckets))}
}

func (h *histogram) observe(v float64) {
	h.sum += v
	h.count++
	for i, le := range h.buckets {
		if v <= le {
			h.counts[i]++
		}
	}
}

// HistogramStats is the exported view of one histogram.
type HistogramStats struct {
	Count   int            `json:"count"`
	Sum     float64        `json:"sum"`
	Avg     float64        `json:"avg"`
	Buckets map[string]int `json:"buckets"`
}

func (h *histogram) stats() HistogramStats {
	s := HistogramStats{Count: h.count, Sum: h.sum, Buckets: make(map[string]int, len(h.buckets))}
	if h.count > 0 {
		s.Avg = h.sum / float64(h.count)
	}
	for i, le := range h.buckets {
		s.Buckets["le_"+formatBound(le)] = h.counts[i]
	}
	return s
}

func formatBound(le float64) string {
	if math.IsInf(le, 1) {
		return "+Inf"
	}
	return strconv.FormatFloat(le, 'g', -1, 64)
}

// Collector is a thread-safe metric store. Each orchestrator owns one;
// every update is cheap enough for the hot path.
type Collector struct {
	mu         sync.Mutex
	start      time.Time
	counters   map[string]float64
	gauges     map[string]float64
	histograms map[string]*histogram
}

func NewCollector() *Collector {
	return &Collector{
		start:      time.Now(),
		counters:   make(map[string]float64),
		gauges:     make(map[string]float64),
		histograms: make(map[string]*histogram),
	}
}

// Inc adds delta to a counter.
func (c *Collector) Inc(name string, delta float64, labels ...Label) {
	k := key(name, labels)
	c.mu.Lock()
	c.counters[k] += delta
	c.mu.Unlock()
}

// SetGauge records an instantaneous value.
func (c *Collector) SetGauge(name string, value float64, labels ...Label) {
	k := key(name, labels)
	c.mu.Lock()
	c.gauges[k] = value
	c.mu.Unlock()
}

// Observe records one histogram observation.
func (c *Collector) Observe(name string, value float64, labels ...Label) {
	k := key(name, labels)
	c.mu.Lock()
	h, ok := c.histograms[k]
	if !ok {
		h = newHistogram()
		c.histograms[k] = h
	}
	h.observe(value)
	c.mu.Unlock()
}

// Total sums a counter across all label combinations.
func (c *Collector) Total(name string) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	var total float64
	for k, v := range c.counters {
		if k == name || strings.HasPrefix(k, name+"{") {
			total += v
		}
	}
	return total
}

// Snapshot is a point-in-time copy of every metric.
type Snapshot struct {
	UptimeSeconds float64                   `json:"uptimeSeconds"`
	CollectedAt   time.Time                 `json:"collectedAt"`
	Counters      map[string]float64        `json:"counters"`
	Gauges        map[string]float64        `json:"gauges"`
	Histograms    map[string]HistogramStats `json:"histograms"`
}

func (c *Collector) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := Snapshot{
		UptimeSeconds: time.Since(c.start).Seconds(),
		CollectedAt:   time.Now(),
		Counters:      make(map[string]float64, len(c.counters)),
		Gauges:        make(map[string]float64, len(c.gauges)),
		Histograms:    make(map[string]HistogramStats, len(c.histograms)),
	}
	for k, v := range c.counters {
		snap.Counters[k] = v
	}
	for k, v := range c.gauges {
		snap.Gauges[k] = v
	}
	for k, h := range c.histograms {
		snap.Histograms[k] = h.stats()
	}
	return snap
}

// WriteJSON exports the snapshot to path, creating parent directories.
func (c *Collector) WriteJSON(path string) error {
	data, err := json.MarshalIndent(c.Snapshot(), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal metrics: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create metrics dir: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write metrics %s: %w", path, err)
	}
	return nil
}

// PrometheusText renders the metrics in the Prometheus exposition
// format, suitable for a /metrics endpoint or node-exporter textfile.
func (c *Collector) PrometheusText() string {
	snap := c.Snapshot()
	var b strings.Builder
	typed := make(map[string]struct{})
	writeType := func(name, kind string) {
		if _, ok := typed[name]; ok {
			return
		}
		typed[name] = struct{}{}
		fmt.Fprintf(&b, "# TYPE %s %s\n", name, kind)
	}

	for _, k := range sortedKeys(snap.Counters) {
		writeType(baseName(k), "counter")
		fmt.Fprintf(&b, "%s %s\n", promKey(k), formatBound(snap.Counters[k]))
	}
	for _, k := range sortedKeys(snap.Gauges) {
		writeType(baseName(k), "gauge")
		fmt.Fprintf(&b, "%s %s\n", promKey(k), formatBound(snap.Gauges[k]))
	}

	var histKeys []string
	for k := range snap.Histograms {
		histKeys = append(histKeys, k)
	}
	sort.Strings(histKeys)
	for _, k := range histKeys {
		name := baseName(k)
		writeType(name, "histogram")
		h := snap.Histograms[k]
		for _, le := range defaultBuckets {
			bound := formatBound(le)
			fmt.Fprintf(&b, "%s_bucket{le=%q} %d\n", name, bound, h.Buckets["le_"+bound])
		}
		fmt.Fprintf(&b, "%s_sum %s\n", name, formatBound(h.Sum))
		fmt.Fprintf(&b, "%s_count %d\n", name, h.Count)
	}
	return b.String()
}

// key builds the internal metric key: name{k=v,...} with sorted labels.
func key(name string, labels []Label) string {
	if len(labels) == 0 {
		return name
	}
	parts := make([]string, len(labels))
	for i, l := range labels {
		parts[i] = l.Key + "=" + l.Value
	}
	sort.Strings(parts)
	return name + "{" + strings.Join(parts, ",") + "}"
}

func baseName(k string) string {
	if i := strings.IndexByte(k, '{'); i >= 0 {
		return k[:i]
	}
	return k
}

// promKey rewrites an internal key into Prometheus label syntax,
// quoting the label values.
func promKey(k string) string {
	i := strings.IndexByte(k, '{')
	if i < 0 {
		return k
	}
	inner := strings.TrimSuffix(k[i+1:], "}")
	pairs := strings.Split(inner, ",")
	for j, p := range pairs {
		if eq := strings.IndexByte(p, '='); eq >= 0 {
			pairs[j] = p[:eq] + "=" + strconv.Quote(p[eq+1:])
		}
	}
	return k[:i] + "{" + strings.Join(pairs, ",") + "}"
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
