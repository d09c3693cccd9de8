// Package observe keeps a bidirectional registry between process-local
// window ids and one externally scoped id type.
package observe

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency bounds the number of custom id lookups in flight for a
// single ChangeObserved call.
const DefaultConcurrency = 16

// Maker resolves the custom id for a common id. An error means no mapping.
type Maker[C comparable, X comparable] func(ctx context.Context, id C) (X, error)

// Outcome is the result for one id of a ChangeObserved call.
type Outcome[C comparable, X comparable] struct {
	ID     C
	Custom X
	OK     bool
	Err    error
}

// Change holds the per-id outcomes of a ChangeObserved call, in request order.
type Change[C comparable, X comparable] struct {
	Added   []Outcome[C, X]
	Removed []Outcome[C, X]
}

// Resolved returns the custom ids that were found, dropping misses.
func (c *Change[C, X]) Resolved() Info[X] {
	out := Info[X]{AddToObserved: []X{}, DeleteFromObserved: []X{}}
	for _, o := range c.Added {
		if o.OK {
			out.AddToObserved = append(out.AddToObserved, o.Custom)
		}
	}
	for _, o := range c.Removed {
		if o.OK {
			out.DeleteFromObserved = append(out.DeleteFromObserved, o.Custom)
		}
	}
	return out
}

// Failed returns the ids whose add or delete did not resolve.
func (c *Change[C, X]) Failed() []C {
	var out []C
	for _, o := range c.Added {
		if !o.OK {
			out = append(out, o.ID)
		}
	}
	for _, o := range c.Removed {
		if !o.OK {
			out = append(out, o.ID)
		}
	}
	return out
}

// Mapper maps common ids to custom ids and back. Both directions are always
// updated together.
type Mapper[C comparable, X comparable] struct {
	mu          sync.RWMutex
	observed    map[C]X
	inverse     map[X]C
	concurrency int
}

// NewMapper creates an empty mapper. concurrency <= 0 uses DefaultConcurrency.
func NewMapper[C comparable, X comparable](concurrency int) *Mapper[C, X] {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Mapper[C, X]{
		observed:    make(map[C]X),
		inverse:     make(map[X]C),
		concurrency: concurrency,
	}
}

// ChangeObserved removes the ids in DeleteFromObserved and resolves the ids
// in AddToObserved through maker. Adds run concurrently with no ordering
// among them. A failed lookup leaves no mapping behind. Re-adding an
// observed id replaces its mapping.
func (m *Mapper[C, X]) ChangeObserved(ctx context.Context, info Info[C], maker Maker[C, X]) *Change[C, X] {
	change := &Change[C, X]{
		Added:   make([]Outcome[C, X], len(info.AddToObserved)),
		Removed: make([]Outcome[C, X], 0, len(info.DeleteFromObserved)),
	}

	m.mu.Lock()
	for _, id := range info.DeleteFromObserved {
		custom, ok := m.observed[id]
		if ok {
			delete(m.observed, id)
			delete(m.inverse, custom)
		}
		change.Removed = append(change.Removed, Outcome[C, X]{ID: id, Custom: custom, OK: ok})
	}
	m.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.concurrency)
	for i, id := range info.AddToObserved {
		g.Go(func() error {
			custom, err := maker(gctx, id)
			if err != nil {
				change.Added[i] = Outcome[C, X]{ID: id, Err: err}
				return nil
			}
			m.put(id, custom)
			change.Added[i] = Outcome[C, X]{ID: id, Custom: custom, OK: true}
			return nil
		})
	}
	_ = g.Wait()
	return change
}

func (m *Mapper[C, X]) put(id C, custom X) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if old, ok := m.observed[id]; ok {
		delete(m.inverse, old)
	}
	if oldID, ok := m.inverse[custom]; ok {
		delete(m.observed, oldID)
	}
	m.observed[id] = custom
	m.inverse[custom] = id
}

// CustomID looks up the custom id of a common id.
func (m *Mapper[C, X]) CustomID(id C) (X, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	x, ok := m.observed[id]
	return x, ok
}

// CommonID looks up the common id of a custom id.
func (m *Mapper[C, X]) CommonID(custom X) (C, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.inverse[custom]
	return id, ok
}

// Len returns the number of mappings.
func (m *Mapper[C, X]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.observed)
}

// Pairs returns a copy of the common to custom mapping.
func (m *Mapper[C, X]) Pairs() map[C]X {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[C]X, len(m.observed))
	for k, v := range m.observed {
		out[k] = v
	}
	return out
}
