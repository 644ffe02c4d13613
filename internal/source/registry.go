// Package source holds the set of configured data sources. The registry is
// owned by the process wiring and swapped whole on config reload; readers
// get copies and never observe a partial update.
package source

import (
	"errors"
	"sort"
	"sync"

	"github.com/BarkinBalci/dora-metrics-service/internal/domain"
)

// ErrSourceNotFound is returned when no source has the requested ID
var ErrSourceNotFound = errors.New("source not found")

// Registry is a concurrency-safe store of data source descriptors
type Registry struct {
	mu      sync.RWMutex
	sources map[string]domain.DataSourceDescriptor
}

// NewRegistry creates a registry holding sources
func NewRegistry(sources []domain.DataSourceDescriptor) *Registry {
	r := &Registry{}
	r.Replace(sources)
	return r
}

// Replace swaps the full source set
func (r *Registry) Replace(sources []domain.DataSourceDescriptor) {
	next := make(map[string]domain.DataSourceDescriptor, len(sources))
	for _, s := range sources {
		next[s.ID] = s
	}

	r.mu.Lock()
	r.sources = next
	r.mu.Unlock()
}

// Get returns a copy of the source with the given ID
func (r *Registry) Get(id string) (*domain.DataSourceDescriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sources[id]
	if !ok {
		return nil, ErrSourceNotFound
	}
	return &s, nil
}

// List returns all sources ordered by ID
func (r *Registry) List() []domain.DataSourceDescriptor {
	r.mu.RLock()
	out := make([]domain.DataSourceDescriptor, 0, len(r.sources))
	for _, s := range r.sources {
		out = append(out, s)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Enabled returns enabled sources ordered by ID
func (r *Registry) Enabled() []domain.DataSourceDescriptor {
	all := r.List()
	out := all[:0]
	for _, s := range all {
		if s.Enabled {
			out = append(out, s)
		}
	}
	return out
}
