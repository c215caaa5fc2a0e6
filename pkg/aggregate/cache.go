// Package aggregate keeps the cross-chart aggregate values ("last filtered
// size") that every chart reads between refresh passes.
package aggregate

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/vanderheijden86/chartsync/pkg/future"
)

// Aggregate is a shared count or sum over a data source.
type Aggregate interface {
	SourceID() string
	ValueAsync(ctx context.Context) *future.Future[float64]
}

// Func adapts a plain function to Aggregate.
type Func struct {
	ID    string
	Value func(ctx context.Context) (float64, error)
}

// SourceID implements Aggregate.
func (f Func) SourceID() string { return f.ID }

// ValueAsync implements Aggregate.
func (f Func) ValueAsync(ctx context.Context) *future.Future[float64] {
	return future.Go(func() (float64, error) { return f.Value(ctx) })
}

// maxConcurrentRefresh bounds in-flight ValueAsync calls during Refresh.
const maxConcurrentRefresh = 16

// Cache maps data-source ids to their registered aggregate and the value seen
// at the last successful refresh.
type Cache struct {
	mu         sync.RWMutex
	aggregates map[string]*entry
	values     map[string]float64
}

// entry gives each registration a distinct identity, so a refresh never
// writes a value for an aggregate replaced while it was in flight.
type entry struct {
	agg Aggregate
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{
		aggregates: make(map[string]*entry),
		values:     make(map[string]float64),
	}
}

// Register adds or replaces the aggregate for its source id.
func (c *Cache) Register(a Aggregate) {
	c.mu.Lock()
	c.aggregates[a.SourceID()] = &entry{agg: a}
	c.mu.Unlock()
}

// Deregister drops the aggregate and its cached value.
func (c *Cache) Deregister(id string) {
	c.mu.Lock()
	delete(c.aggregates, id)
	delete(c.values, id)
	c.mu.Unlock()
}

// Len returns the number of registered aggregates.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.aggregates)
}

// SourceIDs returns registered ids, sorted.
func (c *Cache) SourceIDs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]string, 0, len(c.aggregates))
	for id := range c.aggregates {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// LastFilteredSize returns the value cached by the last successful refresh.
func (c *Cache) LastFilteredSize(id string) (float64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.values[id]
	return v, ok
}

// Refresh re-reads every registered aggregate concurrently. New values become
// visible together once all of them succeed; on any failure the previously
// cached values are kept and the first error is returned.
func (c *Cache) Refresh(ctx context.Context) error {
	c.mu.RLock()
	entries := make([]*entry, 0, len(c.aggregates))
	for _, e := range c.aggregates {
		entries = append(entries, e)
	}
	c.mu.RUnlock()
	if len(entries) == 0 {
		return nil
	}

	fresh := make([]float64, len(entries))
	var g errgroup.Group
	g.SetLimit(maxConcurrentRefresh)
	for i, e := range entries {
		a := e.agg
		g.Go(func() error {
			v, err := a.ValueAsync(ctx).Wait(ctx)
			if err != nil {
				return fmt.Errorf("aggregate %s: %w", a.SourceID(), err)
			}
			fresh[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	c.mu.Lock()
	for i, e := range entries {
		id := e.agg.SourceID()
		// Skip aggregates deregistered or replaced while the refresh was in flight.
		if c.aggregates[id] == e {
			c.values[id] = fresh[i]
		}
	}
	c.mu.Unlock()
	return nil
}

// Reset drops every aggregate and value.
func (c *Cache) Reset() {
	c.mu.Lock()
	c.aggregates = make(map[string]*entry)
	c.values = make(map[string]float64)
	c.mu.Unlock()
}
