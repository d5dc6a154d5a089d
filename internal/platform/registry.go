package platform

import (
	"fmt"

	"sales-reconciler/internal/models"
)

// Registry holds the adapters keyed by platform name.
type Registry struct {
	adapters map[models.Platform]Adapter
	order    []models.Platform
}

// NewRegistry creates a registry; registration order is the default source
// order for imports.
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[models.Platform]Adapter)}
	for _, a := range adapters {
		if _, dup := r.adapters[a.Platform()]; !dup {
			r.order = append(r.order, a.Platform())
		}
		r.adapters[a.Platform()] = a
	}
	return r
}

// Get returns the adapter for name. Unknown names yield models.ErrNotFound
// and adapters without credentials models.ErrConfigIncomplete.
func (r *Registry) Get(name string) (Adapter, error) {
	a, ok := r.adapters[models.Platform(name)]
	if !ok {
		return nil, fmt.Errorf("platform %q: %w", name, models.ErrNotFound)
	}
	if !a.Configured() {
		return nil, fmt.Errorf("platform %q: %w", name, models.ErrConfigIncomplete)
	}
	return a, nil
}

// Platforms lists the registered platforms in registration order.
func (r *Registry) Platforms() []models.Platform {
	return append([]models.Platform(nil), r.order...)
}

// Configured returns the adapters that have credentials, in order.
func (r *Registry) Configured() []Adapter {
	var out []Adapter
	for _, p := range r.order {
		if a := r.adapters[p]; a.Configured() {
			out = append(out, a)
		}
	}
	return out
}
