package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Coordinator.LogLevel != "warn" {
		t.Errorf("expected default log level 'warn', got %q", cfg.Coordinator.LogLevel)
	}
	if !cfg.Coordinator.Metrics {
		t.Error("expected metrics enabled by default")
	}
	if cfg.Watch.Debounce != 200*time.Millisecond {
		t.Errorf("expected debounce 200ms, got %v", cfg.Watch.Debounce)
	}
	if cfg.Dashboard.Table != "rows" {
		t.Errorf("expected table 'rows', got %q", cfg.Dashboard.Table)
	}
}

func TestLoadFrom_NonExistent(t *testing.T) {
	cfg, err := LoadFrom("/nonexistent/path/config.yaml")
	if err != nil {
		t.Fatalf("expected no error for missing file, got: %v", err)
	}
	if cfg.Coordinator.LogLevel != "warn" {
		t.Errorf("expected default config, got log level %q", cfg.Coordinator.LogLevel)
	}
}

func TestLoadFrom_ValidConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	content := `
coordinator:
  log_level: debug
  metrics: false

dashboard:
  database: data/flights.db
  table: flights
  filter_file: filters.json
  charts:
    - id: carriers
      kind: bar
      groups: [main]
      dimension: carrier
    - id: map
      kind: raster
      groups: [main, geo]
      dimension: lon,lat
      bounds: [-180, -90, 180, 90]

watch:
  debounce: 50ms
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Coordinator.LogLevel != "debug" || cfg.Coordinator.Metrics {
		t.Errorf("coordinator section not applied: %+v", cfg.Coordinator)
	}
	if want := filepath.Join(dir, "data/flights.db"); cfg.Dashboard.Database != want {
		t.Errorf("expected database %q, got %q", want, cfg.Dashboard.Database)
	}
	if len(cfg.Dashboard.Charts) != 2 {
		t.Fatalf("expected 2 charts, got %d", len(cfg.Dashboard.Charts))
	}
	if m := cfg.FindChart("MAP"); m == nil || len(m.Bounds) != 4 || len(m.Groups) != 2 {
		t.Errorf("raster chart not parsed: %+v", m)
	}
	if cfg.Watch.Debounce != 50*time.Millisecond {
		t.Errorf("expected debounce 50ms, got %v", cfg.Watch.Debounce)
	}
	if cfg.Watch.PollInterval != 2*time.Second {
		t.Errorf("unset poll interval should keep default, got %v", cfg.Watch.PollInterval)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoadFrom_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("coordinator:\n  log_level: info\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CHARTSYNC_LOG_LEVEL", "trace")
	t.Setenv("CHARTSYNC_DEBOUNCE", "1s")
	t.Setenv("CHARTSYNC_METRICS", "false")

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Coordinator.LogLevel != "trace" {
		t.Errorf("env should override log level, got %q", cfg.Coordinator.LogLevel)
	}
	if cfg.Watch.Debounce != time.Second {
		t.Errorf("env should override debounce, got %v", cfg.Watch.Debounce)
	}
	if cfg.Coordinator.Metrics {
		t.Error("env should disable metrics")
	}
}

func TestLoadFrom_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("dashboard: [unclosed"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFrom(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestSaveAndLoad_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := DefaultConfig()
	cfg.Dashboard.Database = "/var/lib/chartsync/rows.db"
	cfg.Dashboard.Charts = []ChartConfig{{ID: "hours", Kind: KindHeatmap, Dimension: "hour"}}

	if err := SaveTo(cfg, path); err != nil {
		t.Fatal(err)
	}
	loaded, err := LoadFrom(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Dashboard.Database != cfg.Dashboard.Database || len(loaded.Dashboard.Charts) != 1 {
		t.Errorf("round trip mismatch: %+v", loaded.Dashboard)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		charts []ChartConfig
		ok     bool
	}{
		{"ok", []ChartConfig{{ID: "a", Kind: KindBar, Dimension: "c"}}, true},
		{"missing id", []ChartConfig{{Kind: KindBar, Dimension: "c"}}, false},
		{"duplicate", []ChartConfig{{ID: "a", Kind: KindPie, Dimension: "c"}, {ID: "a", Kind: KindRow, Dimension: "d"}}, false},
		{"unknown kind", []ChartConfig{{ID: "a", Kind: "sankey", Dimension: "c"}}, false},
		{"raster dims", []ChartConfig{{ID: "m", Kind: KindRaster, Dimension: "x"}}, false},
		{"raster bounds", []ChartConfig{{ID: "m", Kind: KindRaster, Dimension: "x,y", Bounds: []float64{1}}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Dashboard.Database = "db"
			cfg.Dashboard.Charts = tt.charts
			if err := cfg.Validate(); (err == nil) != tt.ok {
				t.Errorf("Validate() = %v, want ok=%v", err, tt.ok)
			}
		})
	}
}

func TestLoadFrom_Hooks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
dashboard:
  database: rows.db
hooks:
  post-redraw:
    - name: notify
      command: echo "$CHARTSYNC_PASS_ID"
      timeout: 3s
    - command: ""
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.Hooks.PostRedraw) != 1 {
		t.Fatalf("post-redraw hooks = %d, want 1", len(cfg.Hooks.PostRedraw))
	}
	if cfg.Hooks.PostRedraw[0].Timeout != 3*time.Second {
		t.Errorf("timeout = %v, want 3s", cfg.Hooks.PostRedraw[0].Timeout)
	}
	if len(cfg.Warnings) != 1 {
		t.Errorf("warnings = %v, want one for the empty command", cfg.Warnings)
	}

	// Saved hooks read back with the same timeout.
	out := filepath.Join(t.TempDir(), "saved.yaml")
	if err := SaveTo(cfg, out); err != nil {
		t.Fatal(err)
	}
	again, err := LoadFrom(out)
	if err != nil {
		t.Fatal(err)
	}
	if got := again.Hooks.PostRedraw[0].Timeout; got != 3*time.Second {
		t.Errorf("round-tripped timeout = %v, want 3s", got)
	}

	cfg.Hooks.PostRedraw[0].OnError = "sometimes"
	if err := cfg.Validate(); err == nil {
		t.Error("expected invalid hook policy to fail validation")
	}
}
