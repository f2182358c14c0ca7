package connector

import (
	"fmt"
	"slices"
	"sync"

	domerrors "github.com/garyellow/convobot-go/internal/errors"
)

// Registry holds connector providers keyed by type.
//
// Registering a second provider for a type fails with ErrDuplicateProvider;
// Replace is the only way to swap one. The none provider is always present.
type Registry struct {
	mu        sync.RWMutex
	providers map[Type]Provider
}

// NewRegistry creates a registry that already knows the none provider.
func NewRegistry() *Registry {
	return &Registry{providers: map[Type]Provider{TypeNone: NoneProvider{}}}
}

// Register adds a provider. Registering the same type twice is an error.
func (r *Registry) Register(p Provider) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.providers[p.Type()]; exists {
		return fmt.Errorf("%w: %q", domerrors.ErrDuplicateProvider, p.Type())
	}
	r.providers[p.Type()] = p
	return nil
}

// MustRegister is Register for process startup wiring.
func (r *Registry) MustRegister(providers ...Provider) {
	for _, p := range providers {
		if err := r.Register(p); err != nil {
			panic(err)
		}
	}
}

// Replace installs p, overriding any provider of the same type.
func (r *Registry) Replace(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Type()] = p
}

// Resolve returns the provider for t or an error wrapping ErrNotFound.
func (r *Registry) Resolve(t Type) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.providers[t]
	if !ok {
		return nil, fmt.Errorf("connector provider %q: %w", t, domerrors.ErrNotFound)
	}
	return p, nil
}

// Types lists registered connector types in sorted order.
func (r *Registry) Types() []Type {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]Type, 0, len(r.providers))
	for t := range r.providers {
		types = append(types, t)
	}
	slices.Sort(types)
	return types
}
