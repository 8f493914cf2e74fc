package model

import (
	"sort"
	"sync"

	"github.com/ekisa-team/ttsd/internal/config"
)

// Registry stores loaded model instances.
type Registry struct {
	models map[string]*ModelInstance
	config *config.Config
	mu     sync.RWMutex
}

// NewRegistry creates a new model registry.
func NewRegistry(config *config.Config) *Registry {
	return &Registry{
		models: make(map[string]*ModelInstance),
		config: config,
	}
}

// Config returns the config snapshot the registry was built from.
func (r *Registry) Config() *config.Config {
	return r.config
}

// Set adds a model instance to the registry.
func (r *Registry) Set(instance *ModelInstance) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.models[instance.ID] = instance
}

// Get returns the model instance with the given ID.
func (r *Registry) Get(id string) (*ModelInstance, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	instance, ok := r.models[id]
	return instance, ok
}

// List returns all model instances ordered by config order, then ID.
func (r *Registry) List() []*ModelInstance {
	r.mu.RLock()
	defer r.mu.RUnlock()

	instances := make([]*ModelInstance, 0, len(r.models))
	for _, instance := range r.models {
		instances = append(instances, instance)
	}

	sort.Slice(instances, func(i, j int) bool {
		oi, oj := order(instances[i]), order(instances[j])
		if oi != oj {
			return oi < oj
		}
		return instances[i].ID < instances[j].ID
	})

	return instances
}

// Delete deletes the model instance with the given ID.
func (r *Registry) Delete(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.models, id)
}

func order(mi *ModelInstance) int {
	if mi.Config == nil {
		return 0
	}
	return mi.Config.Order
}
