// Package source defines the adapter capability the pipeline consumes.
// Concrete adapters (RSS scrapers, social monitors, authority APIs) live
// outside the core and hand the pipeline pre-normalized candidates.
package source

import (
	"context"
	"errors"
	"time"

	"github.com/linnemanlabs/airsight/internal/incident"
)

// ErrUnavailable marks an adapter network or parse failure. It is isolated
// per adapter: one adapter failing never aborts the cycle or discards
// sibling results.
var ErrUnavailable = errors.New("source unavailable")

// Adapter fetches candidate incidents reported since the given cutoff.
type Adapter interface {
	// Name identifies the adapter in logs, metrics, and status output.
	Name() string

	// Fast reports whether the adapter is cheap enough for the
	// breaking-news pass between full cycles.
	Fast() bool

	// Fetch returns candidates since the cutoff. Failures should wrap
	// ErrUnavailable.
	Fetch(ctx context.Context, since time.Time) ([]incident.Candidate, error)
}

// Registry holds the enabled source adapters.
type Registry struct {
	adapters []Adapter
	byName   map[string]Adapter
}

// NewRegistry creates an empty adapter registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]Adapter)}
}

// Register adds an adapter, keyed by its Name. Registration order is
// preserved for deterministic cycle reporting.
func (r *Registry) Register(a Adapter) {
	if _, dup := r.byName[a.Name()]; dup {
		return
	}
	r.byName[a.Name()] = a
	r.adapters = append(r.adapters, a)
}

// Get retrieves an adapter by name.
func (r *Registry) Get(name string) (Adapter, bool) {
	a, ok := r.byName[name]
	return a, ok
}

// All returns every registered adapter in registration order.
func (r *Registry) All() []Adapter {
	return append([]Adapter(nil), r.adapters...)
}

// Fast returns the adapters eligible for the breaking-news pass.
func (r *Registry) Fast() []Adapter {
	out := make([]Adapter, 0, len(r.adapters))
	for _, a := range r.adapters {
		if a.Fast() {
			out = append(out, a)
		}
	}
	return out
}
