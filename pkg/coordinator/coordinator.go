// Package coordinator drives render and redraw passes across the registered
// charts.
//
// A Coordinator owns one lock tracker for render passes and one for redraw
// passes, the aggregate cache, and the switches that suppress or gate
// refreshes. All state lives on the Coordinator; there are no package-level
// singletons.
package coordinator

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/vanderheijden86/chartsync/pkg/aggregate"
	"github.com/vanderheijden86/chartsync/pkg/chart"
	"github.com/vanderheijden86/chartsync/pkg/eventlog"
	"github.com/vanderheijden86/chartsync/pkg/lock"
	"github.com/vanderheijden86/chartsync/pkg/registry"
)

const tracerName = "github.com/vanderheijden86/chartsync/pkg/coordinator"

// Report describes one pass. For short-circuited calls Skipped is true and
// Charts holds the charts that would have been refreshed.
type Report struct {
	Pass     chart.Pass
	Scope    lock.Scope
	Charts   []chart.Refreshable
	Results  []chart.Result
	Skipped  bool
	Duration time.Duration
}

// Stats summarises coordinator activity.
type Stats struct {
	Render lock.Stats
	Redraw lock.Stats
	Passes uint64
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the event logger.
func WithLogger(l *eventlog.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.log = l
		}
	}
}

// WithTracerProvider sets the OpenTelemetry provider used for pass spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *Coordinator) {
		if tp != nil {
			c.tracer = tp.Tracer(tracerName)
		}
	}
}

// WithAggregates shares an existing aggregate cache.
func WithAggregates(cache *aggregate.Cache) Option {
	return func(c *Coordinator) {
		if cache != nil {
			c.aggregates = cache
		}
	}
}

// Coordinator schedules refresh passes over a chart registry.
type Coordinator struct {
	registry   *registry.Registry
	aggregates *aggregate.Cache
	log        *eventlog.Logger
	tracer     trace.Tracer

	refreshDisabled atomic.Bool
	firstRenderNs   atomic.Int64
	passSeq         atomic.Uint64

	mu       sync.Mutex
	render   *lock.Tracker[Report]
	redraw   *lock.Tracker[Report]
	progress map[uint64]int
	onPass   []func(chart.Pass)
}

// New returns a coordinator over reg. A nil reg gets a fresh registry.
func New(reg *registry.Registry, opts ...Option) *Coordinator {
	if reg == nil {
		reg = registry.New()
	}
	c := &Coordinator{
		registry:   reg,
		aggregates: aggregate.NewCache(),
		log:        eventlog.Nop(),
		tracer:     otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.render = lock.New[Report]("render", c.log.Named("render_lock"))
	c.redraw = lock.New[Report]("redraw", c.log.Named("redraw_lock"))
	c.progress = make(map[uint64]int)
	return c
}

// Registry returns the chart registry.
func (c *Coordinator) Registry() *registry.Registry {
	return c.registry
}

// Aggregates returns the aggregate cache.
func (c *Coordinator) Aggregates() *aggregate.Cache {
	return c.aggregates
}

// RegisterAggregate adds a shared aggregate refreshed at the start of every pass.
func (c *Coordinator) RegisterAggregate(a aggregate.Aggregate) {
	c.aggregates.Register(a)
}

// LastFilteredSize returns the aggregate value cached by the last pass.
func (c *Coordinator) LastFilteredSize(sourceID string) (float64, bool) {
	return c.aggregates.LastFilteredSize(sourceID)
}

// SetRefreshDisabled turns the process-wide suppression switch on or off.
// While on, RenderAll and RedrawAll return immediately without fetching.
func (c *Coordinator) SetRefreshDisabled(disabled bool) {
	c.refreshDisabled.Store(disabled)
	c.log.Debug("refresh_disabled", map[string]any{"disabled": disabled})
}

// RefreshDisabled reports the suppression switch.
func (c *Coordinator) RefreshDisabled() bool {
	return c.refreshDisabled.Load()
}

// WithoutRefresh runs fn with refreshes suppressed, restoring the previous
// setting afterwards. Use it around bulk filter changes.
func (c *Coordinator) WithoutRefresh(fn func()) {
	prev := c.refreshDisabled.Swap(true)
	defer c.refreshDisabled.Store(prev)
	fn()
}

// FirstRenderAt returns when the first render pass completed, or the zero
// time if none has.
func (c *Coordinator) FirstRenderAt() time.Time {
	ns := c.firstRenderNs.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// OnPassComplete registers fn to run once every chart in a pass has finished.
// It does not fire for failed passes.
func (c *Coordinator) OnPassComplete(fn func(chart.Pass)) {
	c.mu.Lock()
	c.onPass = append(c.onPass, fn)
	c.mu.Unlock()
}

// Idle reports whether no render or redraw pass is running or pending.
func (c *Coordinator) Idle() bool {
	render, redraw := c.trackers()
	return render.IsEmpty() && redraw.IsEmpty()
}

// Stats returns tracker counters and the number of passes started.
func (c *Coordinator) Stats() Stats {
	render, redraw := c.trackers()
	return Stats{
		Render: render.Stats(),
		Redraw: redraw.Stats(),
		Passes: c.passSeq.Load(),
	}
}

// Reset returns the coordinator to its initial state: fresh trackers, empty
// aggregate cache, refresh enabled, no render recorded. Passes already in
// flight finish against the old trackers. The registry and pass-complete
// hooks are kept.
func (c *Coordinator) Reset() {
	c.mu.Lock()
	c.render = lock.New[Report]("render", c.log.Named("render_lock"))
	c.redraw = lock.New[Report]("redraw", c.log.Named("redraw_lock"))
	c.progress = make(map[uint64]int)
	c.mu.Unlock()

	c.aggregates.Reset()
	c.refreshDisabled.Store(false)
	c.firstRenderNs.Store(0)
	c.passSeq.Store(0)
}

func (c *Coordinator) trackers() (render, redraw *lock.Tracker[Report]) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.render, c.redraw
}

// chartsFor lists the live charts in scope.
func (c *Coordinator) chartsFor(scope lock.Scope) []chart.Refreshable {
	var list []chart.Refreshable
	if scope.All {
		list = c.registry.ListAll()
	} else {
		list = c.registry.List(scope.Group)
	}
	live := list[:0]
	for _, ch := range list {
		if !ch.IsDestroyed() {
			live = append(live, ch)
		}
	}
	return live
}

// withoutCancel detaches a pass from its caller: a follow-up pass may run on
// behalf of many callers, so one caller going away must not abort it.
func withoutCancel(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return context.WithoutCancel(ctx)
}
