package coordinator

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vanderheijden86/chartsync/pkg/chart"
	"github.com/vanderheijden86/chartsync/pkg/future"
	"github.com/vanderheijden86/chartsync/pkg/lock"
	"github.com/vanderheijden86/chartsync/pkg/metrics"
)

// RenderAll renders every chart in scope. If a render pass for an
// overlapping scope is running, the request joins that scope's single
// follow-up pass.
func (c *Coordinator) RenderAll(ctx context.Context, scope lock.Scope) *future.Future[Report] {
	if c.refreshDisabled.Load() {
		return c.skipped(scope, chart.PassRender)
	}
	runCtx := withoutCancel(ctx)
	render, _ := c.trackers()
	return render.Start(scope, func() (Report, error) {
		return c.runPass(runCtx, scope, chart.PassRender, "")
	})
}

// RedrawAll redraws every chart in scope except exclude, typically the chart
// whose filter change triggered the redraw. It fails immediately with
// ErrRedrawBeforeRender if no render pass has completed yet.
func (c *Coordinator) RedrawAll(ctx context.Context, scope lock.Scope, exclude chart.Refreshable) *future.Future[Report] {
	if c.refreshDisabled.Load() {
		return c.skipped(scope, chart.PassRedraw)
	}
	if c.firstRenderNs.Load() == 0 {
		c.log.Warn("redraw_before_render", map[string]any{"scope": scope.String()})
		return future.Rejected[Report](ErrRedrawBeforeRender)
	}
	excludeID := ""
	if exclude != nil {
		excludeID = exclude.ChartID()
	}
	runCtx := withoutCancel(ctx)
	_, redraw := c.trackers()
	return redraw.Start(scope, func() (Report, error) {
		return c.runPass(runCtx, scope, chart.PassRedraw, excludeID)
	})
}

func (c *Coordinator) skipped(scope lock.Scope, kind chart.PassKind) *future.Future[Report] {
	metrics.SkippedRefresh.Inc()
	c.log.Trace("pass_skipped", map[string]any{
		"kind":  kind.String(),
		"scope": scope.String(),
	})
	return future.Resolved(Report{
		Pass:    chart.Pass{Kind: kind},
		Scope:   scope,
		Charts:  c.chartsFor(scope),
		Skipped: true,
	})
}

// runPass is the body of one admitted pass: refresh aggregates, fan out to
// every chart, wait for all of them.
func (c *Coordinator) runPass(ctx context.Context, scope lock.Scope, kind chart.PassKind, excludeID string) (Report, error) {
	start := time.Now()
	timing := metrics.RenderPass
	if kind == chart.PassRedraw {
		timing = metrics.RedrawPass
	}
	defer metrics.Timer(timing)()

	charts := c.chartsFor(scope)
	if excludeID != "" {
		kept := charts[:0]
		for _, ch := range charts {
			if ch.ChartID() != excludeID {
				kept = append(kept, ch)
			}
		}
		charts = kept
	}
	pass := chart.Pass{ID: c.passSeq.Add(1), Total: len(charts), Kind: kind}
	report := Report{Pass: pass, Scope: scope, Charts: charts}

	ctx, span := c.tracer.Start(ctx, "chartsync."+kind.String()+"_pass", trace.WithAttributes(
		attribute.String("chartsync.scope", scope.String()),
		attribute.Int64("chartsync.pass_id", int64(pass.ID)),
		attribute.Int("chartsync.total", pass.Total),
	))
	defer span.End()

	c.log.Info("pass_start", map[string]any{
		"kind":    kind.String(),
		"scope":   scope.String(),
		"pass":    pass.ID,
		"total":   pass.Total,
		"exclude": excludeID,
	})

	if c.aggregates.Len() > 0 {
		stop := metrics.Timer(metrics.AggregateRefresh)
		err := c.aggregates.Refresh(ctx)
		stop()
		if err != nil {
			return report, c.failPass(span, &PassError{
				Kind:    kind,
				PassID:  pass.ID,
				Scope:   scope,
				Outcome: chart.OutcomeFailed,
				Cause:   err,
			})
		}
	}

	c.beginProgress(pass)
	fetches := make([]*future.Future[chart.Result], len(charts))
	for i, ch := range charts {
		fetches[i] = c.fetch(ctx, ch, pass, scope)
	}

	results, err := future.All(fetches).Wait(ctx)
	report.Duration = time.Since(start)
	if err != nil {
		c.dropProgress(pass)
		return report, c.failPass(span, err)
	}
	report.Results = results

	if kind == chart.PassRender && c.firstRenderNs.CompareAndSwap(0, time.Now().UnixNano()) {
		c.log.Info("first_render", map[string]any{"pass": pass.ID})
	}
	c.log.Info("pass_done", map[string]any{
		"kind":        kind.String(),
		"scope":       scope.String(),
		"pass":        pass.ID,
		"duration_ms": float64(report.Duration.Microseconds()) / 1000.0,
	})
	return report, nil
}

// fetch starts one chart's part of the pass. A failing chart hears about its
// error through its own listener first; the error then fails the pass.
func (c *Coordinator) fetch(ctx context.Context, ch chart.Refreshable, pass chart.Pass, scope lock.Scope) *future.Future[chart.Result] {
	stop := metrics.Timer(metrics.ChartFetch)

	var f *future.Future[chart.Result]
	switch {
	case pass.Kind == chart.PassRender:
		f = ch.RenderAsync(ctx, pass)
	case chart.IsRenderOnly(ch):
		ch.ExpireCache()
		f = ch.RenderAsync(ctx, pass)
	default:
		ch.ExpireCache()
		f = ch.RedrawAsync(ctx, pass)
	}

	return future.Then(f, func(res chart.Result, err error) (chart.Result, error) {
		stop()
		if err != nil {
			outcome := chart.Classify(err)
			if outcome == chart.OutcomeDestroyed {
				metrics.DestroyedDrops.Inc()
				c.log.Debug("chart_destroyed", map[string]any{
					"chart": ch.ChartID(),
					"pass":  pass.ID,
				})
			} else if rep, ok := ch.(chart.ErrorReporter); ok {
				rep.ReportError(err)
			}
			return res, &PassError{
				Kind:    pass.Kind,
				PassID:  pass.ID,
				Scope:   scope,
				ChartID: ch.ChartID(),
				Outcome: outcome,
				Cause:   err,
			}
		}
		if res.Outcome == chart.OutcomeStale {
			metrics.StaleDiscards.Inc()
			c.log.Trace("stale_discard", map[string]any{
				"chart": ch.ChartID(),
				"query": res.QueryID,
			})
		}
		c.chartDone(pass)
		return res, nil
	})
}

func (c *Coordinator) failPass(span trace.Span, err error) error {
	metrics.PassFailures.Inc()
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	level := c.log.Error
	if IsDestroyed(err) {
		level = c.log.Debug
	}
	level("pass_failed", map[string]any{"error": err})
	return err
}

func (c *Coordinator) beginProgress(pass chart.Pass) {
	if pass.Total == 0 {
		return
	}
	c.mu.Lock()
	c.progress[pass.ID] = 0
	c.mu.Unlock()
}

// dropProgress forgets a failed pass so late sibling completions are not
// counted towards it.
func (c *Coordinator) dropProgress(pass chart.Pass) {
	c.mu.Lock()
	delete(c.progress, pass.ID)
	c.mu.Unlock()
}

// chartDone records one chart's completion and fires the pass-complete hooks
// when it was the last of Total.
func (c *Coordinator) chartDone(pass chart.Pass) {
	c.mu.Lock()
	n, ok := c.progress[pass.ID]
	if !ok {
		c.mu.Unlock()
		return
	}
	n++
	if n < pass.Total {
		c.progress[pass.ID] = n
		c.mu.Unlock()
		return
	}
	delete(c.progress, pass.ID)
	hooks := append([]func(chart.Pass){}, c.onPass...)
	c.mu.Unlock()

	metrics.PassesCompleted.Inc()
	for _, fn := range hooks {
		fn(pass)
	}
}
