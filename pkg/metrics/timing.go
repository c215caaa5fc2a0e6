// Package metrics provides performance instrumentation for the refresh kernel.
//
// It tracks:
// - Timing metrics for passes, aggregate refreshes and chart fetches
// - Counters for coalesced requests, stale discards and failed passes
// - Latency quantiles over a bounded window of recent samples
//
// Metrics are collected in-memory with atomic operations for thread-safety.
// Collection is enabled by default but can be disabled via CHARTSYNC_METRICS=0.
//
// Usage:
//
//	func refresh() {
//	    defer metrics.Timer(metrics.RedrawPass)()
//	    // ...
//	}
package metrics

import (
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"gonum.org/v1/gonum/stat"
)

var enabled atomic.Bool

func init() {
	enabled.Store(os.Getenv("CHARTSYNC_METRICS") != "0")
}

// Enabled returns whether metrics collection is enabled.
func Enabled() bool {
	return enabled.Load()
}

// SetEnabled allows programmatic control of metrics collection.
func SetEnabled(e bool) {
	enabled.Store(e)
}

// sampleWindow is how many recent durations each metric keeps for quantiles.
const sampleWindow = 256

// TimingMetric tracks timing statistics for a named operation.
type TimingMetric struct {
	name    string
	count   atomic.Int64
	totalNs atomic.Int64
	maxNs   atomic.Int64
	minNs   atomic.Int64 // 0 means not set

	mu      sync.Mutex
	samples []float64 // ring buffer of recent durations in ns
	next    int
}

func newTimingMetric(name string) *TimingMetric {
	return &TimingMetric{name: name}
}

// Record records a single timing measurement.
func (m *TimingMetric) Record(d time.Duration) {
	if !Enabled() {
		return
	}
	ns := d.Nanoseconds()

	m.count.Add(1)
	m.totalNs.Add(ns)

	for {
		old := m.maxNs.Load()
		if ns <= old || m.maxNs.CompareAndSwap(old, ns) {
			break
		}
	}
	for {
		old := m.minNs.Load()
		if old != 0 && ns >= old {
			break
		}
		if m.minNs.CompareAndSwap(old, ns) {
			break
		}
	}

	m.mu.Lock()
	if len(m.samples) < sampleWindow {
		m.samples = append(m.samples, float64(ns))
	} else {
		m.samples[m.next] = float64(ns)
	}
	m.next = (m.next + 1) % sampleWindow
	m.mu.Unlock()
}

// Name returns the metric name.
func (m *TimingMetric) Name() string {
	return m.name
}

// Count returns the number of recorded measurements.
func (m *TimingMetric) Count() int64 {
	return m.count.Load()
}

// Quantile returns the p-quantile (0..1) of the recent sample window.
// Returns 0 if nothing has been recorded.
func (m *TimingMetric) Quantile(p float64) time.Duration {
	m.mu.Lock()
	sorted := append([]float64(nil), m.samples...)
	m.mu.Unlock()
	if len(sorted) == 0 {
		return 0
	}
	sort.Float64s(sorted)
	return time.Duration(stat.Quantile(p, stat.Empirical, sorted, nil))
}

// Stats returns all timing statistics at once.
func (m *TimingMetric) Stats() TimingStats {
	count := m.count.Load()
	totalNs := m.totalNs.Load()

	var avgNs int64
	if count > 0 {
		avgNs = totalNs / count
	}

	return TimingStats{
		Name:    m.name,
		Count:   count,
		TotalMs: float64(totalNs) / 1e6,
		AvgMs:   float64(avgNs) / 1e6,
		MaxMs:   float64(m.maxNs.Load()) / 1e6,
		MinMs:   float64(m.minNs.Load()) / 1e6,
		P50Ms:   float64(m.Quantile(0.5).Nanoseconds()) / 1e6,
		P95Ms:   float64(m.Quantile(0.95).Nanoseconds()) / 1e6,
	}
}

// Reset clears all recorded measurements.
func (m *TimingMetric) Reset() {
	m.count.Store(0)
	m.totalNs.Store(0)
	m.maxNs.Store(0)
	m.minNs.Store(0)
	m.mu.Lock()
	m.samples = nil
	m.next = 0
	m.mu.Unlock()
}

// TimingStats holds a snapshot of timing statistics.
type TimingStats struct {
	Name    string  `json:"name"`
	Count   int64   `json:"count"`
	TotalMs float64 `json:"total_ms"`
	AvgMs   float64 `json:"avg_ms"`
	MaxMs   float64 `json:"max_ms"`
	MinMs   float64 `json:"min_ms,omitempty"`
	P50Ms   float64 `json:"p50_ms"`
	P95Ms   float64 `json:"p95_ms"`
}

// Timer returns a function that records elapsed time when called.
// Use with defer for automatic timing:
//
//	defer metrics.Timer(metrics.RenderPass)()
func Timer(m *TimingMetric) func() {
	if !Enabled() || m == nil {
		return func() {}
	}
	start := time.Now()
	return func() {
		m.Record(time.Since(start))
	}
}

// Counter is a monotonically increasing event count.
type Counter struct {
	name string
	n    atomic.Int64
}

// Inc adds one.
func (c *Counter) Inc() {
	if Enabled() {
		c.n.Add(1)
	}
}

// Value returns the current count.
func (c *Counter) Value() int64 {
	return c.n.Load()
}

// Name returns the counter name.
func (c *Counter) Name() string {
	return c.name
}

// Global metrics for the refresh kernel.
var (
	RenderPass       = newTimingMetric("render_pass")
	RedrawPass       = newTimingMetric("redraw_pass")
	AggregateRefresh = newTimingMetric("aggregate_refresh")
	ChartFetch       = newTimingMetric("chart_fetch")

	PassFailures    = &Counter{name: "pass_failures"}
	StaleDiscards   = &Counter{name: "stale_discards"}
	DestroyedDrops  = &Counter{name: "destroyed_drops"}
	SkippedRefresh  = &Counter{name: "skipped_refresh"}
	PassesCompleted = &Counter{name: "passes_completed"}
	PassesCoalesced = &Counter{name: "passes_coalesced"}
)

// AllTimingMetrics returns all registered timing metrics.
func AllTimingMetrics() []*TimingMetric {
	return []*TimingMetric{RenderPass, RedrawPass, AggregateRefresh, ChartFetch}
}

// AllCounters returns all registered counters.
func AllCounters() []*Counter {
	return []*Counter{PassFailures, StaleDiscards, DestroyedDrops, SkippedRefresh, PassesCompleted, PassesCoalesced}
}

// ResetAll resets every metric.
func ResetAll() {
	for _, m := range AllTimingMetrics() {
		m.Reset()
	}
	for _, c := range AllCounters() {
		c.n.Store(0)
	}
}

// AllTimingStats returns stats for all timing metrics that have data.
func AllTimingStats() []TimingStats {
	all := AllTimingMetrics()
	stats := make([]TimingStats, 0, len(all))
	for _, m := range all {
		if m.Count() > 0 {
			stats = append(stats, m.Stats())
		}
	}
	return stats
}

// CounterValues returns every counter keyed by name.
func CounterValues() map[string]int64 {
	out := make(map[string]int64)
	for _, c := range AllCounters() {
		out[c.name] = c.Value()
	}
	return out
}
