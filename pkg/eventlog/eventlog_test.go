package eventlog

import (
	"bytes"
	"log"
	"strings"
	"sync"
	"testing"
	"time"

	json "github.com/goccy/go-json"
)

type bufCloser struct {
	bytes.Buffer
	closed bool
}

func (b *bufCloser) Close() error {
	b.closed = true
	return nil
}

func TestParseLevel(t *testing.T) {
	tests := map[string]Level{
		"":        LevelWarn,
		"off":     LevelNone,
		"ERROR":   LevelError,
		"warning": LevelWarn,
		"3":       LevelInfo,
		" debug ": LevelDebug,
		"trace":   LevelTrace,
		"bogus":   LevelWarn,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestEvent_FiltersByLevel(t *testing.T) {
	var out bytes.Buffer
	lg := New("coordinator", WithLevel(LevelInfo), WithOutput(log.New(&out, "", 0)))

	lg.Debug("hidden", nil)
	lg.Info("pass_start", map[string]any{"pass": 7})

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d: %q", len(lines), out.String())
	}
	var payload map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &payload); err != nil {
		t.Fatal(err)
	}
	if payload["event"] != "pass_start" || payload["component"] != "coordinator" || payload["level"] != "info" {
		t.Fatalf("unexpected payload %v", payload)
	}
	if payload["pass"] != float64(7) {
		t.Fatalf("field pass = %v", payload["pass"])
	}
}

func TestEvent_TraceReceivesEverything(t *testing.T) {
	trace := &bufCloser{}
	lg := New("lock", WithLevel(LevelNone), WithOutput(log.New(&bytes.Buffer{}, "", 0)), WithTraceWriter(trace))
	lg.now = func() time.Time { return time.Unix(0, 0) }

	lg.Trace("coalesce", map[string]any{"err": errString("x")})
	if !strings.Contains(trace.String(), `"event":"coalesce"`) {
		t.Fatalf("trace missing event: %q", trace.String())
	}
	if err := lg.Close(); err != nil || !trace.closed {
		t.Fatal("Close should close the trace writer")
	}
}

func TestNamedSharesSink(t *testing.T) {
	var out bytes.Buffer
	lg := New("a", WithLevel(LevelWarn), WithOutput(log.New(&out, "", 0)))
	lg.Named("b").Warn("x", nil)
	if !strings.Contains(out.String(), `"component":"b"`) {
		t.Fatalf("got %q", out.String())
	}
}

func TestNilLoggerIsSafe(t *testing.T) {
	var lg *Logger
	lg.Error("x", nil)
	if lg.Enabled(LevelError) {
		t.Fatal("nil logger should be disabled")
	}
}

func TestCloseWhileEmitting(t *testing.T) {
	trace := &bufCloser{}
	lg := New("coordinator", WithLevel(LevelNone), WithOutput(log.New(&bytes.Buffer{}, "", 0)), WithTraceWriter(trace))

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				lg.Debug("pass_done", map[string]any{"pass": j})
			}
		}()
	}
	if err := lg.Close(); err != nil {
		t.Fatal(err)
	}
	wg.Wait()

	if lg.Enabled(LevelTrace) {
		t.Error("closed trace writer should no longer enable events")
	}
	if !trace.closed {
		t.Error("trace writer not closed")
	}
}

type errString string

func (e errString) Error() string { return string(e) }
