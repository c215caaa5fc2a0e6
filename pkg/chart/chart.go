// Package chart defines the contract between the refresh coordinator and the
// chart handles it schedules, plus a reusable base handle that implements
// query sequencing, stale-response discard and the destroyed-chart race.
package chart

import (
	"context"
	"errors"

	"github.com/vanderheijden86/chartsync/pkg/future"
)

// PassKind distinguishes render passes from redraw passes.
type PassKind int

const (
	// PassRender builds a chart from scratch.
	PassRender PassKind = iota
	// PassRedraw updates an already rendered chart.
	PassRedraw
)

func (k PassKind) String() string {
	switch k {
	case PassRender:
		return "render"
	case PassRedraw:
		return "redraw"
	default:
		return "unknown"
	}
}

// Pass identifies one coordinated refresh attempt. Total is the number of
// charts taking part, so a chart can tell whether it completed last.
type Pass struct {
	ID    uint64
	Total int
	Kind  PassKind
}

// Refreshable is implemented by every chart the coordinator drives.
type Refreshable interface {
	ChartID() string
	RenderAsync(ctx context.Context, pass Pass) *future.Future[Result]
	RedrawAsync(ctx context.Context, pass Pass) *future.Future[Result]
	ExpireCache()
	IsDestroyed() bool
}

// RenderOnly is implemented by charts that cannot redraw incrementally. When
// RenderOnly returns true, redraw passes call RenderAsync instead.
type RenderOnly interface {
	RenderOnly() bool
}

// ErrorReporter is implemented by charts with their own error listener.
type ErrorReporter interface {
	ReportError(err error)
}

// IsRenderOnly reports whether c opted out of incremental redraws.
func IsRenderOnly(c Refreshable) bool {
	ro, ok := c.(RenderOnly)
	return ok && ro.RenderOnly()
}

var (
	// ErrDestroyed is returned for fetches on, or results arriving for, a
	// chart that has been torn down.
	ErrDestroyed = errors.New("chart destroyed")

	// ErrStale may be returned by a fetcher to declare its response
	// superseded. It is never surfaced as a pass failure.
	ErrStale = errors.New("stale response")
)

// Outcome classifies what happened to one chart fetch.
type Outcome int

const (
	// OutcomeApplied means the data was applied to the chart.
	OutcomeApplied Outcome = iota
	// OutcomeStale means a newer request superseded this one; the data was
	// silently dropped.
	OutcomeStale
	// OutcomeFailed means the fetch failed; reported and fatal to the pass.
	OutcomeFailed
	// OutcomeDestroyed means the chart was torn down before the data landed.
	OutcomeDestroyed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeApplied:
		return "applied"
	case OutcomeStale:
		return "stale"
	case OutcomeFailed:
		return "failed"
	case OutcomeDestroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}

// Classify maps a fetch error to its Outcome.
func Classify(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeApplied
	case errors.Is(err, ErrDestroyed):
		return OutcomeDestroyed
	case errors.Is(err, ErrStale):
		return OutcomeStale
	default:
		return OutcomeFailed
	}
}

// Result is what a chart reports for one RenderAsync/RedrawAsync call.
type Result struct {
	ChartID string
	QueryID uint64
	Pass    Pass
	Outcome Outcome
	Data    any
}
