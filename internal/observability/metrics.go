package observability

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// MetricsRegistry holds all registered metrics.
type MetricsRegistry struct {
	mu       sync.RWMutex
	counters map[string]*Counter
	gauges   map[string]*Gauge
	histos   map[string]*Histogram
}

// Counter is a monotonically increasing metric.
type Counter struct {
	name   string
	help   string
	labels map[string]string
	value  float64
	mu     sync.Mutex
}

// Gauge is a metric that can go up or down.
type Gauge struct {
	name   string
	help   string
	labels map[string]string
	value  float64
	mu     sync.Mutex
}

// Histogram tracks distribution of values.
type Histogram struct {
	name    string
	help    string
	labels  map[string]string
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
	mu      sync.Mutex
}

// NewMetricsRegistry creates a new metrics registry.
func NewMetricsRegistry() *MetricsRegistry {
	return &MetricsRegistry{
		counters: make(map[string]*Counter),
		gauges:   make(map[string]*Gauge),
		histos:   make(map[string]*Histogram),
	}
}

// NewCounter creates and registers a counter.
func (r *MetricsRegistry) NewCounter(name, help string, labels map[string]string) *Counter {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := &Counter{name: name, help: help, labels: labels}
	r.counters[name] = c
	return c
}

// NewGauge creates and registers a gauge.
func (r *MetricsRegistry) NewGauge(name, help string, labels map[string]string) *Gauge {
	r.mu.Lock()
	defer r.mu.Unlock()

	g := &Gauge{name: name, help: help, labels: labels}
	r.gauges[name] = g
	return g
}

// NewHistogram creates and registers a histogram. Nil buckets use
// DefaultBuckets.
func (r *MetricsRegistry) NewHistogram(name, help string, labels map[string]string, buckets []float64) *Histogram {
	r.mu.Lock()
	defer r.mu.Unlock()

	if buckets == nil {
		buckets = DefaultBuckets()
	}

	h := &Histogram{
		name:    name,
		help:    help,
		labels:  labels,
		buckets: buckets,
		counts:  make([]uint64, len(buckets)),
	}
	r.histos[name] = h
	return h
}

// DefaultBuckets returns histogram buckets in seconds, sized for compiler
// runs rather than request latencies.
func DefaultBuckets() []float64 {
	return []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 300}
}

// Inc increments a counter by 1.
func (c *Counter) Inc() {
	c.Add(1)
}

// Add adds a value to the counter.
func (c *Counter) Add(v float64) {
	c.mu.Lock()
	c.value += v
	c.mu.Unlock()
}

// Value returns the counter value.
func (c *Counter) Value() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}

// Set sets the gauge value.
func (g *Gauge) Set(v float64) {
	g.mu.Lock()
	g.value = v
	g.mu.Unlock()
}

// Value returns the gauge value.
func (g *Gauge) Value() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.value
}

// Observe records a value in the histogram.
func (h *Histogram) Observe(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.sum += v
	h.count++

	for i, bound := range h.buckets {
		if v <= bound {
			h.counts[i]++
		}
	}
}

// Count returns the number of observations.
func (h *Histogram) Count() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count
}

// WritePrometheus writes metrics in Prometheus text format, sorted by name.
func (r *MetricsRegistry) WritePrometheus(w io.Writer) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var b strings.Builder

	for _, name := range sortedKeys(r.counters) {
		c := r.counters[name]
		c.mu.Lock()
		writeMetric(&b, c.name, "counter", c.help, c.labels, c.value)
		c.mu.Unlock()
	}

	for _, name := range sortedKeys(r.gauges) {
		g := r.gauges[name]
		g.mu.Lock()
		writeMetric(&b, g.name, "gauge", g.help, g.labels, g.value)
		g.mu.Unlock()
	}

	for _, name := range sortedKeys(r.histos) {
		h := r.histos[name]
		h.mu.Lock()
		writeHistogram(&b, h)
		h.mu.Unlock()
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func writeMetric(b *strings.Builder, name, metricType, help string, labels map[string]string, value float64) {
	fmt.Fprintf(b, "# HELP %s %s\n", name, help)
	fmt.Fprintf(b, "# TYPE %s %s\n", name, metricType)
	fmt.Fprintf(b, "%s%s %s\n", name, formatLabels(labels), formatFloat(value))
}

func writeHistogram(b *strings.Builder, h *Histogram) {
	fmt.Fprintf(b, "# HELP %s %s\n", h.name, h.help)
	fmt.Fprintf(b, "# TYPE %s histogram\n", h.name)

	// counts are already cumulative: Observe bumps every bucket >= v.
	for i, bound := range h.buckets {
		labels := copyLabels(h.labels)
		labels["le"] = formatFloat(bound)
		fmt.Fprintf(b, "%s_bucket%s %d\n", h.name, formatLabels(labels), h.counts[i])
	}

	labels := copyLabels(h.labels)
	labels["le"] = "+Inf"
	fmt.Fprintf(b, "%s_bucket%s %d\n", h.name, formatLabels(labels), h.count)
	fmt.Fprintf(b, "%s_sum%s %s\n", h.name, formatLabels(h.labels), formatFloat(h.sum))
	fmt.Fprintf(b, "%s_count%s %d\n", h.name, formatLabels(h.labels), h.count)
}

func formatLabels(labels map[string]string) string {
	if len(labels) == 0 {
		return ""
	}
	parts := make([]string, 0, len(labels))
	for _, k := range sortedKeys(labels) {
		parts = append(parts, k+"=\""+labels[k]+"\"")
	}
	return "{" + strings.Join(parts, ",") + "}"
}

func copyLabels(labels map[string]string) map[string]string {
	result := make(map[string]string, len(labels)+1)
	for k, v := range labels {
		result[k] = v
	}
	return result
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// DispatchMetrics contains the gendocs run metrics.
type DispatchMetrics struct {
	Registry *MetricsRegistry

	ScansTotal       *Counter
	ScanErrorsTotal  *Counter
	FilesMatched     *Gauge
	InvocationsTotal *Counter
	NonZeroExitTotal *Counter
	StartErrorsTotal *Counter
	InvokeDuration   *Histogram
	LastRunTimestamp *Gauge
}

// NewDispatchMetrics creates the gendocs metrics on a fresh registry.
func NewDispatchMetrics() *DispatchMetrics {
	r := NewMetricsRegistry()

	return &DispatchMetrics{
		Registry: r,

		ScansTotal:       r.NewCounter("gendocs_scans_total", "Source directory listings", nil),
		ScanErrorsTotal:  r.NewCounter("gendocs_scan_errors_total", "Failed source directory listings", nil),
		FilesMatched:     r.NewGauge("gendocs_files_matched", "Files matching the suffix in the last scan", nil),
		InvocationsTotal: r.NewCounter("gendocs_invocations_total", "External command invocations", nil),
		NonZeroExitTotal: r.NewCounter("gendocs_invocation_nonzero_exit_total", "Invocations that exited non-zero", nil),
		StartErrorsTotal: r.NewCounter("gendocs_invocation_start_errors_total", "Invocations that could not be started", nil),
		InvokeDuration:   r.NewHistogram("gendocs_invocation_duration_seconds", "External command run time", nil, nil),
		LastRunTimestamp: r.NewGauge("gendocs_last_run_timestamp_seconds", "Unix time the last run finished", nil),
	}
}

// RecordScan records a directory listing.
func (m *DispatchMetrics) RecordScan(matched int, err error) {
	m.ScansTotal.Inc()
	if err != nil {
		m.ScanErrorsTotal.Inc()
		return
	}
	m.FilesMatched.Set(float64(matched))
}

// RecordInvocation records one invocation. err is a start failure; exitCode
// is only meaningful when err is nil.
func (m *DispatchMetrics) RecordInvocation(duration time.Duration, exitCode int, err error) {
	if err != nil {
		m.StartErrorsTotal.Inc()
		return
	}
	m.InvocationsTotal.Inc()
	m.InvokeDuration.Observe(duration.Seconds())
	if exitCode != 0 {
		m.NonZeroExitTotal.Inc()
	}
}

// MarkRunFinished stamps the completion time.
func (m *DispatchMetrics) MarkRunFinished(at time.Time) {
	m.LastRunTimestamp.Set(float64(at.Unix()))
}

// WriteTextfile writes the metrics to path for a node-exporter textfile
// collector. The file is replaced atomically.
func (m *DispatchMetrics) WriteTextfile(path string) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create metrics textfile: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := m.Registry.WritePrometheus(tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close metrics textfile: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("chmod metrics textfile: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename metrics textfile: %w", err)
	}
	return nil
}
