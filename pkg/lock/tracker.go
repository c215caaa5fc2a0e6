// Package lock implements the mutual-exclusion-plus-coalescing primitive that
// serialises refresh passes.
//
// A Tracker admits at most one running pass per scope. A pass over all groups
// excludes every per-group pass and vice versa. Requests that arrive while a
// scope is busy do not queue: they collapse into a single follow-up pass that
// starts once the blocking passes settle, and every such caller receives the
// follow-up's future.
package lock

import (
	"sync"
	"sync/atomic"

	"github.com/vanderheijden86/chartsync/pkg/eventlog"
	"github.com/vanderheijden86/chartsync/pkg/future"
	"github.com/vanderheijden86/chartsync/pkg/metrics"
)

// Scope is either a single chart group or all groups.
type Scope struct {
	Group string
	All   bool
}

// AllGroups is the scope covering every group.
func AllGroups() Scope {
	return Scope{All: true}
}

// Group is the scope of one named group.
func Group(name string) Scope {
	return Scope{Group: name}
}

func (s Scope) String() string {
	if s.All {
		return "*"
	}
	return s.Group
}

// Runner performs one pass.
type Runner[T any] func() (T, error)

type followUp[T any] struct {
	fut    *future.Future[T]
	runner Runner[T]
}

// Stats counts tracker activity since construction.
type Stats struct {
	Started   uint64 // runner invocations
	Coalesced uint64 // requests folded into an existing follow-up
	FollowUps uint64 // follow-ups created
}

// Tracker serialises passes per scope. The zero value is not usable; call New.
type Tracker[T any] struct {
	name string
	log  *eventlog.Logger

	mu            sync.Mutex
	all           *future.Future[T]
	groups        map[string]*future.Future[T]
	pendingAll    *followUp[T]
	pendingGroups map[string]*followUp[T]

	started   atomic.Uint64
	coalesced atomic.Uint64
	followUps atomic.Uint64
}

// New returns an idle tracker. name labels log events ("render", "redraw").
func New[T any](name string, log *eventlog.Logger) *Tracker[T] {
	if log == nil {
		log = eventlog.Nop()
	}
	return &Tracker[T]{
		name:          name,
		log:           log,
		groups:        make(map[string]*future.Future[T]),
		pendingGroups: make(map[string]*followUp[T]),
	}
}

// ShouldStart reports whether a pass for scope could begin right now.
func (t *Tracker[T]) ShouldStart(scope Scope) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.shouldStartLocked(scope)
}

// IsEmpty reports whether no pass is running or pending in any scope.
func (t *Tracker[T]) IsEmpty() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.all == nil && t.pendingAll == nil && len(t.groups) == 0 && len(t.pendingGroups) == 0
}

// IsScopeEmpty reports whether scope itself has nothing running or pending.
func (t *Tracker[T]) IsScopeEmpty(scope Scope) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if scope.All {
		return t.all == nil && t.pendingAll == nil
	}
	return t.groups[scope.Group] == nil && t.pendingGroups[scope.Group] == nil
}

// Stats returns activity counters.
func (t *Tracker[T]) Stats() Stats {
	return Stats{
		Started:   t.started.Load(),
		Coalesced: t.coalesced.Load(),
		FollowUps: t.followUps.Load(),
	}
}

// Start runs runner for scope now if nothing blocks it and no follow-up is
// queued. Otherwise it returns the scope's follow-up future, creating it if
// needed. A later request
// replaces the follow-up's runner so the follow-up covers the newest state.
func (t *Tracker[T]) Start(scope Scope, runner Runner[T]) *future.Future[T] {
	t.mu.Lock()
	defer t.mu.Unlock()

	// A queued follow-up may be about to launch; joining it keeps one
	// pending pass per scope even in the window before awaitTurn wakes.
	if p := t.pendingLocked(scope); p != nil {
		p.runner = runner
		n := t.coalesced.Add(1)
		metrics.PassesCoalesced.Inc()
		t.log.Debug("coalesce", map[string]any{
			"tracker": t.name,
			"scope":   scope.String(),
			"count":   n,
		})
		return p.fut
	}

	if t.admitLocked(scope) {
		f := future.New[T]()
		t.launchLocked(scope, f, runner)
		return f
	}

	p := &followUp[T]{fut: future.New[T](), runner: runner}
	if scope.All {
		t.pendingAll = p
	} else {
		t.pendingGroups[scope.Group] = p
	}
	t.followUps.Add(1)
	t.log.Debug("follow_up_queued", map[string]any{
		"tracker": t.name,
		"scope":   scope.String(),
	})
	go t.awaitTurn(scope, p)
	return p.fut
}

// awaitTurn waits for the passes blocking scope, then promotes p to the
// running pass. If another scope grabbed the slot in between, it waits again.
func (t *Tracker[T]) awaitTurn(scope Scope, p *followUp[T]) {
	for {
		t.mu.Lock()
		if t.admitLocked(scope) {
			if scope.All {
				t.pendingAll = nil
			} else {
				delete(t.pendingGroups, scope.Group)
			}
			t.launchLocked(scope, p.fut, p.runner)
			t.mu.Unlock()
			return
		}
		blockers := t.blockersLocked(scope)
		t.mu.Unlock()

		// Each blocker is waited on independently; a failed pass only
		// unblocks us sooner.
		<-future.Settled(blockers...)
	}
}

// launchLocked records f as scope's running pass and starts runner. The slot
// is cleared before f settles so waiters on f observe an idle scope.
func (t *Tracker[T]) launchLocked(scope Scope, f *future.Future[T], runner Runner[T]) {
	if scope.All {
		t.all = f
	} else {
		t.groups[scope.Group] = f
	}
	n := t.started.Add(1)
	t.log.Trace("pass_admitted", map[string]any{
		"tracker": t.name,
		"scope":   scope.String(),
		"started": n,
	})

	go func() {
		v, err := future.Safe(runner)

		t.mu.Lock()
		if scope.All {
			if t.all == f {
				t.all = nil
			}
		} else if t.groups[scope.Group] == f {
			delete(t.groups, scope.Group)
		}
		t.mu.Unlock()

		if err != nil {
			t.log.Trace("pass_released", map[string]any{
				"tracker": t.name,
				"scope":   scope.String(),
				"error":   err,
			})
		}
		f.Resolve(v, err)
	}()
}

func (t *Tracker[T]) shouldStartLocked(scope Scope) bool {
	if t.all != nil {
		return false
	}
	if scope.All {
		return len(t.groups) == 0
	}
	return t.groups[scope.Group] == nil
}

// admitLocked is shouldStartLocked plus one ordering rule: an all-groups pass
// also waits for group follow-ups that were queued before it could start.
func (t *Tracker[T]) admitLocked(scope Scope) bool {
	if !t.shouldStartLocked(scope) {
		return false
	}
	return !scope.All || len(t.pendingGroups) == 0
}

func (t *Tracker[T]) pendingLocked(scope Scope) *followUp[T] {
	if scope.All {
		return t.pendingAll
	}
	return t.pendingGroups[scope.Group]
}

func (t *Tracker[T]) blockersLocked(scope Scope) []*future.Future[T] {
	if t.all != nil {
		return []*future.Future[T]{t.all}
	}
	if !scope.All {
		if f := t.groups[scope.Group]; f != nil {
			return []*future.Future[T]{f}
		}
		return nil
	}
	blockers := make([]*future.Future[T], 0, len(t.groups)+len(t.pendingGroups))
	for _, f := range t.groups {
		blockers = append(blockers, f)
	}
	for _, p := range t.pendingGroups {
		blockers = append(blockers, p.fut)
	}
	return blockers
}
