package backend

import (
	"fmt"
	"sort"
	"sync"
)

// Registry maps providers to the factories that load them.
type Registry struct {
	factories map[BackendProvider]Factory
	mu        sync.RWMutex
}

// NewRegistry creates a new backend registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[BackendProvider]Factory),
	}
}

// Register adds a factory to the registry.
func (r *Registry) Register(provider BackendProvider, factory Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[provider]; exists {
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, provider)
	}

	r.factories[provider] = factory
	return nil
}

// Get retrieves a factory by provider.
func (r *Registry) Get(provider BackendProvider) (Factory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	f, ok := r.factories[provider]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, provider)
	}

	return f, nil
}

// Providers lists the registered providers in sorted order.
func (r *Registry) Providers() []BackendProvider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]BackendProvider, 0, len(r.factories))
	for p := range r.factories {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })

	return out
}
