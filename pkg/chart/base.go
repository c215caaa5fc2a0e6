package chart

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/vanderheijden86/chartsync/pkg/future"
)

// Request describes one data fetch issued by a Base handle.
type Request struct {
	QueryID uint64
	Pass    Pass
}

// DataFunc fetches the data for one request. Returning ErrStale (or an error
// wrapping it) drops the response without failing the pass.
type DataFunc func(ctx context.Context, req Request) (any, error)

// Option configures a Base.
type Option func(*Base)

// WithRenderOnly marks the chart as unable to redraw incrementally.
func WithRenderOnly(renderOnly bool) Option {
	return func(b *Base) {
		b.renderOnly = renderOnly
	}
}

// WithOnData registers a listener invoked after data is applied.
func WithOnData(fn func(Result)) Option {
	return func(b *Base) {
		if fn != nil {
			b.onData = append(b.onData, fn)
		}
	}
}

// WithOnError registers the chart's error listener.
func WithOnError(fn func(error)) Option {
	return func(b *Base) {
		if fn != nil {
			b.onError = append(b.onError, fn)
		}
	}
}

// Base is a Refreshable that sequences its fetches with a per-handle query
// counter. The counter never resets; a response is applied only if no newer
// request has been issued since, so out-of-order responses cannot overwrite
// fresher data.
type Base struct {
	id         string
	fetch      DataFunc
	renderOnly bool
	onData     []func(Result)
	onError    []func(error)

	queryID   atomic.Uint64
	destroyed atomic.Bool

	// accept, when set, is consulted under mu just before data is stored.
	accept func(data any) bool

	mu         sync.Mutex
	appliedQID uint64
	cache      any
	cacheValid bool
	last       Result
	hasLast    bool
}

// NewBase returns a handle that loads its data through fetch.
func NewBase(id string, fetch DataFunc, opts ...Option) *Base {
	b := &Base{id: id, fetch: fetch}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// ChartID returns the handle's identity.
func (b *Base) ChartID() string {
	return b.id
}

// RenderAsync fetches (or reuses cached) data and applies it.
func (b *Base) RenderAsync(ctx context.Context, pass Pass) *future.Future[Result] {
	return b.run(ctx, pass, true)
}

// RedrawAsync always fetches fresh data and applies it.
func (b *Base) RedrawAsync(ctx context.Context, pass Pass) *future.Future[Result] {
	return b.run(ctx, pass, false)
}

// ExpireCache drops cached data so the next render fetches again.
func (b *Base) ExpireCache() {
	b.mu.Lock()
	b.cache = nil
	b.cacheValid = false
	b.mu.Unlock()
}

// IsDestroyed reports whether Destroy has been called.
func (b *Base) IsDestroyed() bool {
	return b.destroyed.Load()
}

// Destroy tears the handle down. In-flight fetches reject with ErrDestroyed.
func (b *Base) Destroy() {
	b.mu.Lock()
	b.destroyed.Store(true)
	b.cache = nil
	b.cacheValid = false
	b.mu.Unlock()
}

// RenderOnly implements the RenderOnly interface.
func (b *Base) RenderOnly() bool {
	return b.renderOnly
}

// ReportError forwards err to the chart's error listeners.
func (b *Base) ReportError(err error) {
	for _, fn := range b.onError {
		fn(err)
	}
}

// QueryID returns the id of the most recently issued request.
func (b *Base) QueryID() uint64 {
	return b.queryID.Load()
}

// LastApplied returns the most recent applied result.
func (b *Base) LastApplied() (Result, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.last, b.hasLast
}

func (b *Base) run(ctx context.Context, pass Pass, useCache bool) *future.Future[Result] {
	if b.destroyed.Load() {
		return future.Rejected[Result](fmt.Errorf("chart %s: %w", b.id, ErrDestroyed))
	}
	qid := b.queryID.Add(1)

	return future.Go(func() (Result, error) {
		res := Result{ChartID: b.id, QueryID: qid, Pass: pass}

		data, err := b.load(ctx, Request{QueryID: qid, Pass: pass}, useCache)
		if b.destroyed.Load() {
			res.Outcome = OutcomeDestroyed
			return res, fmt.Errorf("chart %s: query %d: %w", b.id, qid, ErrDestroyed)
		}
		if err != nil {
			res.Outcome = Classify(err)
			if res.Outcome == OutcomeStale {
				return res, nil
			}
			return res, fmt.Errorf("chart %s: query %d: %w", b.id, qid, err)
		}

		res.Data = data
		switch b.apply(&res) {
		case OutcomeDestroyed:
			res.Outcome = OutcomeDestroyed
			res.Data = nil
			return res, fmt.Errorf("chart %s: query %d: %w", b.id, qid, ErrDestroyed)
		case OutcomeStale:
			res.Outcome = OutcomeStale
			res.Data = nil
			return res, nil
		}
		for _, fn := range b.onData {
			fn(res)
		}
		return res, nil
	})
}

func (b *Base) load(ctx context.Context, req Request, useCache bool) (any, error) {
	if useCache {
		b.mu.Lock()
		cached, ok := b.cache, b.cacheValid
		b.mu.Unlock()
		if ok {
			return cached, nil
		}
	}
	if b.fetch == nil {
		return nil, nil
	}
	return b.fetch(ctx, req)
}

// apply records res if the handle is alive, res is still the newest request
// and accept (if any) still wants its data. Checks and store happen under one
// lock so a response can never land after a newer one or after Destroy.
func (b *Base) apply(res *Result) Outcome {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.destroyed.Load() {
		return OutcomeDestroyed
	}
	if res.QueryID != b.queryID.Load() || res.QueryID <= b.appliedQID {
		return OutcomeStale
	}
	if b.accept != nil && !b.accept(res.Data) {
		b.cache = nil
		b.cacheValid = false
		return OutcomeStale
	}
	res.Outcome = OutcomeApplied
	b.appliedQID = res.QueryID
	b.cache = res.Data
	b.cacheValid = true
	b.last = *res
	b.hasLast = true
	return OutcomeApplied
}
