package chart

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

// gatedFetch returns a DataFunc whose responses are released per query id.
func gatedFetch() (DataFunc, map[uint64]chan any) {
	gates := map[uint64]chan any{
		1: make(chan any),
		2: make(chan any),
		3: make(chan any),
	}
	return func(ctx context.Context, req Request) (any, error) {
		return <-gates[req.QueryID], nil
	}, gates
}

func waitResult(t *testing.T, f interface {
	Wait(context.Context) (Result, error)
}) (Result, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return f.Wait(ctx)
}

func TestBase_DiscardsOutOfOrderResponse(t *testing.T) {
	fetch, gates := gatedFetch()
	var applied atomic.Int32
	b := NewBase("bar", fetch, WithOnData(func(Result) { applied.Add(1) }))

	first := b.RedrawAsync(context.Background(), Pass{ID: 1, Total: 1, Kind: PassRedraw})
	second := b.RedrawAsync(context.Background(), Pass{ID: 2, Total: 1, Kind: PassRedraw})

	gates[2] <- "fresh"
	res2, err := waitResult(t, second)
	if err != nil {
		t.Fatal(err)
	}
	if res2.Outcome != OutcomeApplied {
		t.Fatalf("second outcome = %v, want applied", res2.Outcome)
	}

	gates[1] <- "old"
	res1, err := waitResult(t, first)
	if err != nil {
		t.Fatalf("stale response must not be an error, got %v", err)
	}
	if res1.Outcome != OutcomeStale {
		t.Fatalf("first outcome = %v, want stale", res1.Outcome)
	}

	last, ok := b.LastApplied()
	if !ok || last.Data != "fresh" || last.QueryID != 2 {
		t.Fatalf("LastApplied = %+v, want query 2 with fresh data", last)
	}
	if applied.Load() != 1 {
		t.Fatalf("onData fired %d times, want 1", applied.Load())
	}
}

func TestBase_QueryIDNeverResets(t *testing.T) {
	b := NewBase("row", func(context.Context, Request) (any, error) { return 1, nil })
	for i := 0; i < 3; i++ {
		if _, err := waitResult(t, b.RedrawAsync(context.Background(), Pass{})); err != nil {
			t.Fatal(err)
		}
	}
	b.ExpireCache()
	if b.QueryID() != 3 {
		t.Fatalf("QueryID = %d, want 3", b.QueryID())
	}
}

func TestBase_DestroyedRejectsNewAndInFlight(t *testing.T) {
	fetch, gates := gatedFetch()
	b := NewBase("pie", fetch)

	inFlight := b.RenderAsync(context.Background(), Pass{ID: 1, Total: 1})
	b.Destroy()
	gates[1] <- "late"

	res, err := waitResult(t, inFlight)
	if !errors.Is(err, ErrDestroyed) {
		t.Fatalf("expected ErrDestroyed, got %v", err)
	}
	if res.Outcome != OutcomeDestroyed {
		t.Fatalf("outcome = %v, want destroyed", res.Outcome)
	}
	if _, ok := b.LastApplied(); ok {
		t.Fatal("destroyed chart must not apply data")
	}

	if _, err := waitResult(t, b.RenderAsync(context.Background(), Pass{})); !errors.Is(err, ErrDestroyed) {
		t.Fatalf("expected immediate ErrDestroyed, got %v", err)
	}
}

func TestBase_ApplyAfterDestroyIsDropped(t *testing.T) {
	b := NewBase("pie", nil)
	qid := b.queryID.Add(1)

	// Destroy lands after the fetch returned but before the store.
	b.Destroy()
	res := Result{ChartID: "pie", QueryID: qid, Data: "late"}
	if got := b.apply(&res); got != OutcomeDestroyed {
		t.Fatalf("apply = %v, want destroyed", got)
	}
	if _, ok := b.LastApplied(); ok {
		t.Fatal("destroyed chart must not apply data")
	}
}

func TestBase_RenderUsesCacheUntilExpired(t *testing.T) {
	var calls atomic.Int32
	b := NewBase("bar", func(context.Context, Request) (any, error) {
		return calls.Add(1), nil
	})

	for i := 0; i < 2; i++ {
		if _, err := waitResult(t, b.RenderAsync(context.Background(), Pass{})); err != nil {
			t.Fatal(err)
		}
	}
	if calls.Load() != 1 {
		t.Fatalf("fetch called %d times, want 1 (cached)", calls.Load())
	}

	b.ExpireCache()
	if _, err := waitResult(t, b.RenderAsync(context.Background(), Pass{})); err != nil {
		t.Fatal(err)
	}
	if calls.Load() != 2 {
		t.Fatalf("fetch called %d times after expire, want 2", calls.Load())
	}
}

func TestBase_FetchErrorIsFailedOutcome(t *testing.T) {
	boom := errors.New("query failed")
	b := NewBase("bar", func(context.Context, Request) (any, error) { return nil, boom })

	res, err := waitResult(t, b.RedrawAsync(context.Background(), Pass{}))
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped boom, got %v", err)
	}
	if res.Outcome != OutcomeFailed {
		t.Fatalf("outcome = %v, want failed", res.Outcome)
	}
}

func TestBase_ReportErrorFiresListeners(t *testing.T) {
	var got error
	b := NewBase("bar", nil, WithOnError(func(err error) { got = err }))
	boom := errors.New("x")
	b.ReportError(boom)
	if got != boom {
		t.Fatalf("listener got %v", got)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		want Outcome
	}{
		{nil, OutcomeApplied},
		{ErrStale, OutcomeStale},
		{ErrDestroyed, OutcomeDestroyed},
		{errors.New("x"), OutcomeFailed},
	}
	for _, tt := range tests {
		if got := Classify(tt.err); got != tt.want {
			t.Errorf("Classify(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}
