// Package registry tracks which charts belong to which chart group.
package registry

import (
	"sort"
	"sync"

	"github.com/vanderheijden86/chartsync/pkg/chart"
)

// DefaultGroup is used when a chart is registered without a group.
const DefaultGroup = "__default_chart_group__"

// Registry is a multi-map from group name to an ordered, de-duplicated list
// of chart handles. Charts are identified by ChartID.
type Registry struct {
	mu     sync.RWMutex
	groups map[string][]chart.Refreshable
	order  []string // group names in first-registration order
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{groups: make(map[string][]chart.Refreshable)}
}

// Register adds c to each group. A chart already present in a group keeps its
// original position.
func (r *Registry) Register(c chart.Refreshable, groups ...string) {
	if c == nil {
		return
	}
	if len(groups) == 0 {
		groups = []string{DefaultGroup}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, g := range groups {
		list, ok := r.groups[g]
		if !ok {
			r.order = append(r.order, g)
		}
		if indexOf(list, c.ChartID()) >= 0 {
			continue
		}
		r.groups[g] = append(list, c)
	}
}

// Deregister removes c from the named groups, or from every group when none
// are named. Groups left empty are dropped.
func (r *Registry) Deregister(c chart.Refreshable, groups ...string) {
	if c == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(groups) == 0 {
		groups = append([]string(nil), r.order...)
	}
	for _, g := range groups {
		list := r.groups[g]
		i := indexOf(list, c.ChartID())
		if i < 0 {
			continue
		}
		list = append(list[:i:i], list[i+1:]...)
		if len(list) == 0 {
			r.dropGroupLocked(g)
			continue
		}
		r.groups[g] = list
	}
}

// List returns a copy of the charts in group.
func (r *Registry) List(group string) []chart.Refreshable {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]chart.Refreshable(nil), r.groups[group]...)
}

// ListAll returns every registered chart once, in group registration order.
func (r *Registry) ListAll() []chart.Refreshable {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[string]bool)
	var all []chart.Refreshable
	for _, g := range r.order {
		for _, c := range r.groups[g] {
			if seen[c.ChartID()] {
				continue
			}
			seen[c.ChartID()] = true
			all = append(all, c)
		}
	}
	return all
}

// Clear removes the named groups, or everything when none are named.
func (r *Registry) Clear(groups ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(groups) == 0 {
		r.groups = make(map[string][]chart.Refreshable)
		r.order = nil
		return
	}
	for _, g := range groups {
		r.dropGroupLocked(g)
	}
}

// Has reports whether a chart with id is registered in group.
func (r *Registry) Has(group, id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return indexOf(r.groups[group], id) >= 0
}

// Groups returns the registered group names, sorted.
func (r *Registry) Groups() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := append([]string(nil), r.order...)
	sort.Strings(names)
	return names
}

func (r *Registry) dropGroupLocked(g string) {
	if _, ok := r.groups[g]; !ok {
		return
	}
	delete(r.groups, g)
	for i, name := range r.order {
		if name == g {
			r.order = append(r.order[:i:i], r.order[i+1:]...)
			break
		}
	}
}

func indexOf(list []chart.Refreshable, id string) int {
	for i, c := range list {
		if c.ChartID() == id {
			return i
		}
	}
	return -1
}
