package controller

import (
	"context"
	"sort"
	"sync"
)

// Registry holds the owning handle of every replicator whose session has
// not yet quiesced. A replicator is added when it is created and removed
// when its primary engine (and secondary, if any) have stopped.
//
// Thread-safety: all methods are safe for concurrent use.
type Registry struct {
	mu      sync.Mutex
	active  map[string]*Replicator
	changed chan struct{} // closed and replaced on every removal
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		active:  make(map[string]*Replicator),
		changed: make(chan struct{}),
	}
}

var defaultRegistry = NewRegistry()

// DefaultRegistry returns the registry used when New is not given one.
func DefaultRegistry() *Registry {
	return defaultRegistry
}

func (g *Registry) add(r *Replicator) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.active[r.id] = r
}

func (g *Registry) remove(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.active[id]; !ok {
		return
	}
	delete(g.active, id)
	close(g.changed)
	g.changed = make(chan struct{})
}

// Get returns the active replicator with the given ID.
func (g *Registry) Get(id string) (*Replicator, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	r, ok := g.active[id]
	return r, ok
}

// List returns the active replicators ordered by ID.
func (g *Registry) List() []*Replicator {
	g.mu.Lock()
	out := make([]*Replicator, 0, len(g.active))
	for _, r := range g.active {
		out = append(out, r)
	}
	g.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// Len returns the number of active replicators.
func (g *Registry) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.active)
}

// StopAll asks every active replicator to stop. It does not wait.
func (g *Registry) StopAll() {
	for _, r := range g.List() {
		r.Stop()
	}
}

// Wait blocks until the registry is empty or ctx is done.
func (g *Registry) Wait(ctx context.Context) error {
	for {
		g.mu.Lock()
		if len(g.active) == 0 {
			g.mu.Unlock()
			return nil
		}
		changed := g.changed
		g.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-changed:
		}
	}
}
