package backend

import (
	"fmt"
	"sync"
)

// Registry manages backend instances.
type Registry struct {
	backends map[BackendProvider]Backend
	mu       sync.RWMutex
}

// NewRegistry creates a new backend registry.
func NewRegistry() *Registry {
	return &Registry{
		backends: make(map[BackendProvider]Backend),
	}
}

// Register adds a backend to the registry.
func (r *Registry) Register(b Backend) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	provider := b.Provider()
	if _, exists := r.backends[provider]; exists {
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, provider)
	}

	r.backends[provider] = b
	return nil
}

// Get retrieves a backend by provider.
func (r *Registry) Get(provider BackendProvider) (Backend, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, ok := r.backends[provider]
	return b, ok
}

// Close closes all registered backends.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, b := range r.backends {
		if err := b.Close(); err != nil {
			return err
		}
	}

	return nil
}
