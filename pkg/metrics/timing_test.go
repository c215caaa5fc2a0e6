package metrics

import (
	"testing"
	"time"
)

func TestTimingMetric_RecordAndStats(t *testing.T) {
	SetEnabled(true)
	m := newTimingMetric("test")
	for _, ms := range []int{10, 20, 30, 40} {
		m.Record(time.Duration(ms) * time.Millisecond)
	}

	st := m.Stats()
	if st.Count != 4 {
		t.Fatalf("Count = %d, want 4", st.Count)
	}
	if st.MinMs != 10 || st.MaxMs != 40 {
		t.Fatalf("min/max = %v/%v, want 10/40", st.MinMs, st.MaxMs)
	}
	if st.AvgMs != 25 {
		t.Fatalf("AvgMs = %v, want 25", st.AvgMs)
	}
	if p := m.Quantile(0.5); p != 20*time.Millisecond {
		t.Fatalf("p50 = %v, want 20ms", p)
	}
	if p := m.Quantile(1); p != 40*time.Millisecond {
		t.Fatalf("p100 = %v, want 40ms", p)
	}
}

func TestTimingMetric_WindowIsBounded(t *testing.T) {
	SetEnabled(true)
	m := newTimingMetric("window")
	for i := 0; i < sampleWindow+10; i++ {
		m.Record(time.Millisecond)
	}
	m.mu.Lock()
	n := len(m.samples)
	m.mu.Unlock()
	if n != sampleWindow {
		t.Fatalf("kept %d samples, want %d", n, sampleWindow)
	}
}

func TestDisabledRecordsNothing(t *testing.T) {
	SetEnabled(false)
	defer SetEnabled(true)

	m := newTimingMetric("off")
	m.Record(time.Second)
	Timer(m)()
	c := &Counter{name: "c"}
	c.Inc()
	if m.Count() != 0 || c.Value() != 0 {
		t.Fatal("disabled metrics should not record")
	}
}

func TestResetAll(t *testing.T) {
	SetEnabled(true)
	RenderPass.Record(time.Millisecond)
	PassFailures.Inc()
	ResetAll()
	if RenderPass.Count() != 0 || PassFailures.Value() != 0 {
		t.Fatal("ResetAll should clear timings and counters")
	}
	if len(AllTimingStats()) != 0 {
		t.Fatal("AllTimingStats should skip empty metrics")
	}
}
