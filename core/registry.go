package core

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// AdapterRegistry owns the immutable AdapterSpec values keyed by provider
// name. Specs are validated on registration so a malformed table fails at
// construction, not mid-dispatch.
type AdapterRegistry struct {
	mu       sync.RWMutex
	adapters map[string]AdapterSpec
}

func NewAdapterRegistry() *AdapterRegistry {
	return &AdapterRegistry{adapters: make(map[string]AdapterSpec)}
}

func (r *AdapterRegistry) Register(spec AdapterSpec) error {
	if r == nil {
		return fmt.Errorf("core: adapter registry is nil")
	}
	if err := spec.Validate(); err != nil {
		return err
	}
	id := strings.TrimSpace(spec.ID)
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.adapters[id]; exists {
		return fmt.Errorf("core: adapter already registered: %s", id)
	}
	r.adapters[id] = spec
	return nil
}

func (r *AdapterRegistry) Get(providerID string) (AdapterSpec, bool) {
	if r == nil {
		return AdapterSpec{}, false
	}
	id := strings.TrimSpace(providerID)
	if id == "" {
		return AdapterSpec{}, false
	}
	r.mu.RLock()
	spec, ok := r.adapters[id]
	r.mu.RUnlock()
	return spec, ok
}

func (r *AdapterRegistry) List() []AdapterSpec {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	keys := make([]string, 0, len(r.adapters))
	for id := range r.adapters {
		keys = append(keys, id)
	}
	r.mu.RUnlock()
	sort.Strings(keys)
	specs := make([]AdapterSpec, 0, len(keys))
	r.mu.RLock()
	for _, id := range keys {
		specs = append(specs, r.adapters[id])
	}
	r.mu.RUnlock()
	return specs
}
