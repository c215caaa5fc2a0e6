package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/vanderheijden86/chartsync/internal/dashboard"
	"github.com/vanderheijden86/chartsync/internal/datasource"
	"github.com/vanderheijden86/chartsync/internal/telemetry"
	"github.com/vanderheijden86/chartsync/pkg/config"
	"github.com/vanderheijden86/chartsync/pkg/coordinator"
	"github.com/vanderheijden86/chartsync/pkg/eventlog"
	"github.com/vanderheijden86/chartsync/pkg/hooks"
	"github.com/vanderheijden86/chartsync/pkg/lock"
	"github.com/vanderheijden86/chartsync/pkg/metrics"
	"github.com/vanderheijden86/chartsync/pkg/registry"
	"github.com/vanderheijden86/chartsync/pkg/version"
	"github.com/vanderheijden86/chartsync/pkg/watcher"
)

func main() {
	configPath := flag.String("config", "", "Path to config.yaml (default: $XDG_CONFIG_HOME/chartsync/config.yaml)")
	once := flag.Bool("once", false, "Render once, print the report and exit")
	showMetrics := flag.Bool("metrics", false, "Print pass timings and counters on exit")
	versionFlag := flag.Bool("version", false, "Show version")
	flag.Parse()

	if *versionFlag {
		fmt.Printf("chartsync %s\n", version.Version)
		os.Exit(0)
	}

	var (
		cfg config.Config
		err error
	)
	if *configPath != "" {
		cfg, err = config.LoadFrom(*configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *once); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *showMetrics {
		printMetrics(os.Stdout)
	}
}

func run(ctx context.Context, cfg config.Config, once bool) error {
	logger := newLogger(cfg.Coordinator)
	defer logger.Close()
	metrics.SetEnabled(cfg.Coordinator.Metrics)
	for _, w := range cfg.Warnings {
		logger.Warn("config_warning", map[string]any{"message": w})
	}

	tp, shutdown, err := telemetry.Setup(ctx, "chartsync", version.Version, cfg.Coordinator.OTelEndpoint)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(sctx); err != nil {
			logger.Warn("otel_shutdown", map[string]any{"error": err})
		}
	}()

	src, err := datasource.Open(ctx, cfg.Dashboard.Database, cfg.Dashboard.Table)
	if err != nil {
		return err
	}
	defer src.Close()

	coord := coordinator.New(registry.New(),
		coordinator.WithLogger(logger),
		coordinator.WithTracerProvider(tp),
	)
	dash, err := dashboard.Build(cfg.Dashboard, src, coord, logger)
	if err != nil {
		return err
	}
	defer dash.Close()

	out := newPrinter(os.Stdout)
	hookExec := hooks.NewExecutor(cfg.Hooks, logger)
	finish := func(rep coordinator.Report, err error) {
		out.report(rep, err, src.ID(), coord)
		if err := runHooks(ctx, hookExec, rep, err, src.ID(), coord); err != nil {
			out.notice(err.Error())
		}
	}

	if cfg.Dashboard.FilterFile != "" {
		f, err := datasource.LoadFilters(cfg.Dashboard.FilterFile)
		if err != nil {
			return err
		}
		if err := src.SetFilters(f); err != nil {
			return err
		}
	}

	rep, err := coord.RenderAll(ctx, lock.AllGroups()).Wait(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	finish(rep, err)
	// A failed chart is reported above; anything else is fatal.
	var pe *coordinator.PassError
	if err != nil && !errors.As(err, &pe) {
		return err
	}
	if once || cfg.Dashboard.FilterFile == "" {
		return nil
	}

	w, err := watcher.New(cfg.Dashboard.FilterFile,
		watcher.WithDebounceDuration(cfg.Watch.Debounce),
		watcher.WithPollInterval(cfg.Watch.PollInterval),
		watcher.WithForcePoll(cfg.Watch.ForcePoll),
		watcher.WithOnError(func(err error) {
			logger.Warn("watch_error", map[string]any{"path": cfg.Dashboard.FilterFile, "error": err})
		}),
	)
	if err != nil {
		return err
	}
	if err := w.Start(); err != nil {
		return err
	}
	defer w.Stop()

	out.notice(fmt.Sprintf("watching %s (polling=%v), Ctrl-C to exit", w.Path(), w.IsPolling()))
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-w.Changed():
			f, err := dash.ReloadFilters(ctx)
			if err != nil {
				logger.Error("filter_reload", map[string]any{"error": err})
				out.notice("filter reload failed: " + err.Error())
				continue
			}
			rep, err := f.Wait(ctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			finish(rep, err)
		}
	}
}

func newLogger(cc config.CoordinatorConfig) *eventlog.Logger {
	opts := []eventlog.Option{
		eventlog.WithLevel(eventlog.ParseLevel(cc.LogLevel)),
		eventlog.WithOutput(log.New(os.Stderr, "", log.LstdFlags)),
	}
	if path := strings.TrimSpace(cc.TracePath); path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: cannot open trace file %s: %v\n", path, err)
		} else {
			opts = append(opts, eventlog.WithTraceWriter(f))
		}
	}
	return eventlog.New("chartsync", opts...)
}

// runHooks fires the post-pass hooks for a settled pass.
func runHooks(ctx context.Context, ex *hooks.Executor, rep coordinator.Report, passErr error, sourceID string, agg sizer) error {
	if rep.Skipped {
		return nil
	}
	phase, ok := hooks.PhaseFor(rep.Pass.Kind.String())
	if !ok {
		return nil
	}
	rows := -1.0
	if n, ok := agg.LastFilteredSize(sourceID); ok {
		rows = n
	}
	return ex.Run(ctx, phase, hooks.PassContext{
		Kind:      rep.Pass.Kind.String(),
		PassID:    rep.Pass.ID,
		Scope:     rep.Scope.String(),
		Charts:    len(rep.Charts),
		Rows:      rows,
		Failed:    passErr != nil,
		Timestamp: time.Now(),
	})
}
