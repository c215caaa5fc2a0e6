// Package config handles loading and saving chartsync configuration.
//
// Configuration is read from YAML and then overridden by environment
// variables:
//   - File:  ~/.config/chartsync/config.yaml (XDG_CONFIG_HOME honoured)
//   - Env:   CHARTSYNC_* variables, see the env tags below
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/vanderheijden86/chartsync/pkg/hooks"
)

// Chart kinds understood by the dashboard builder.
const (
	KindBar     = "bar"
	KindRow     = "row"
	KindPie     = "pie"
	KindHeatmap = "heatmap"
	KindRaster  = "raster"
)

// CoordinatorConfig controls logging, metrics and tracing for the kernel.
type CoordinatorConfig struct {
	LogLevel     string `yaml:"log_level,omitempty" env:"CHARTSYNC_LOG_LEVEL"`
	TracePath    string `yaml:"trace_path,omitempty" env:"CHARTSYNC_TRACE"`
	Metrics      bool   `yaml:"metrics" env:"CHARTSYNC_METRICS"`
	OTelEndpoint string `yaml:"otel_endpoint,omitempty" env:"CHARTSYNC_OTEL_ENDPOINT"`
}

// ChartConfig declares one chart on the dashboard.
type ChartConfig struct {
	ID        string    `yaml:"id"`
	Kind      string    `yaml:"kind"`
	Groups    []string  `yaml:"groups,omitempty"`
	Dimension string    `yaml:"dimension,omitempty"` // column grouped by; raster: "x,y"
	Bounds    []float64 `yaml:"bounds,omitempty"`    // raster initial viewport: minx, miny, maxx, maxy
}

// DashboardConfig describes the data source and charts.
type DashboardConfig struct {
	Database   string        `yaml:"database" env:"CHARTSYNC_DATABASE"`
	Table      string        `yaml:"table" env:"CHARTSYNC_TABLE"`
	FilterFile string        `yaml:"filter_file,omitempty" env:"CHARTSYNC_FILTER_FILE"`
	Charts     []ChartConfig `yaml:"charts,omitempty"`
}

// WatchConfig tunes the filter-file watcher.
type WatchConfig struct {
	Debounce     time.Duration `yaml:"debounce,omitempty" env:"CHARTSYNC_DEBOUNCE"`
	PollInterval time.Duration `yaml:"poll_interval,omitempty" env:"CHARTSYNC_POLL_INTERVAL"`
	ForcePoll    bool          `yaml:"force_poll,omitempty" env:"CHARTSYNC_FORCE_POLL"`
}

// Config is the top-level configuration.
type Config struct {
	Coordinator CoordinatorConfig `yaml:"coordinator"`
	Dashboard   DashboardConfig   `yaml:"dashboard"`
	Watch       WatchConfig       `yaml:"watch,omitempty"`
	Hooks       hooks.Config      `yaml:"hooks,omitempty"`

	// Warnings collects non-fatal problems found while loading.
	Warnings []string `yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Coordinator: CoordinatorConfig{
			LogLevel: "warn",
			Metrics:  true,
		},
		Dashboard: DashboardConfig{
			Table: "rows",
		},
		Watch: WatchConfig{
			Debounce:     200 * time.Millisecond,
			PollInterval: 2 * time.Second,
		},
	}
}

// ConfigDir returns the XDG config directory for chartsync.
func ConfigDir() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "chartsync")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "chartsync")
}

// ConfigPath returns the full path to config.yaml.
func ConfigPath() string {
	dir := ConfigDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "config.yaml")
}

// Load reads the config file from the XDG config directory.
func Load() (Config, error) {
	path := ConfigPath()
	if path == "" {
		cfg := DefaultConfig()
		return cfg, applyEnv(&cfg)
	}
	return LoadFrom(path)
}

// LoadFrom reads config from path and applies environment overrides.
// A missing file yields the defaults (plus overrides).
func LoadFrom(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return cfg, fmt.Errorf("reading config: %w", err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parsing config: %w", err)
		}
		cfg.Warnings = cfg.Hooks.Normalize()
		base := filepath.Dir(path)
		cfg.Dashboard.Database = resolvePath(base, cfg.Dashboard.Database)
		cfg.Dashboard.FilterFile = resolvePath(base, cfg.Dashboard.FilterFile)
	}

	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	cfg.Dashboard.Database = expandHome(cfg.Dashboard.Database)
	cfg.Dashboard.FilterFile = expandHome(cfg.Dashboard.FilterFile)
	return nil
}

// SaveTo writes the config to a specific path.
func SaveTo(cfg Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// Validate checks the dashboard declaration.
func (c Config) Validate() error {
	if c.Dashboard.Database == "" {
		return fmt.Errorf("dashboard.database is required")
	}
	seen := make(map[string]bool)
	for i, ch := range c.Dashboard.Charts {
		if ch.ID == "" {
			return fmt.Errorf("dashboard.charts[%d]: id is required", i)
		}
		if seen[ch.ID] {
			return fmt.Errorf("dashboard.charts[%d]: duplicate id %q", i, ch.ID)
		}
		seen[ch.ID] = true
		switch ch.Kind {
		case KindBar, KindRow, KindPie, KindHeatmap:
			if ch.Dimension == "" {
				return fmt.Errorf("chart %s: dimension is required", ch.ID)
			}
		case KindRaster:
			if len(strings.Split(ch.Dimension, ",")) != 2 {
				return fmt.Errorf("chart %s: raster dimension must be \"x,y\"", ch.ID)
			}
			if len(ch.Bounds) != 0 && len(ch.Bounds) != 4 {
				return fmt.Errorf("chart %s: bounds must have 4 values", ch.ID)
			}
		default:
			return fmt.Errorf("chart %s: unknown kind %q", ch.ID, ch.Kind)
		}
	}
	if err := c.Hooks.Validate(); err != nil {
		return fmt.Errorf("hooks: %w", err)
	}
	return nil
}

// FindChart returns the chart declaration with id, or nil.
func (c Config) FindChart(id string) *ChartConfig {
	for i := range c.Dashboard.Charts {
		if strings.EqualFold(c.Dashboard.Charts[i].ID, id) {
			return &c.Dashboard.Charts[i]
		}
	}
	return nil
}

func resolvePath(base, path string) string {
	path = expandHome(path)
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(base, path)
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
