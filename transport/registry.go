package transport

import (
	"net/http"
	"sort"
	"strings"
	"sync"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-dispatch/core"
)

// Registry maps transport kinds to adapters. Providers declare the kind
// they speak and the dispatcher resolves it at call time.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]core.TransportAdapter
}

func NewRegistry() *Registry {
	return &Registry{adapters: map[string]core.TransportAdapter{}}
}

// NewDefaultRegistry returns a registry with the REST adapter installed.
func NewDefaultRegistry(client HTTPDoer) *Registry {
	registry := NewRegistry()
	_ = registry.Register(NewRESTAdapter(client))
	return registry
}

func (r *Registry) Register(adapter core.TransportAdapter) error {
	if r == nil {
		return transportError(
			"transport: registry is nil",
			goerrors.CategoryInternal,
			http.StatusInternalServerError,
			nil,
		)
	}
	if adapter == nil {
		return transportError(
			"transport: adapter is required",
			goerrors.CategoryBadInput,
			http.StatusBadRequest,
			nil,
		)
	}
	kind := normalizeKind(adapter.Kind())
	if kind == "" {
		return transportError(
			"transport: adapter kind is required",
			goerrors.CategoryBadInput,
			http.StatusBadRequest,
			nil,
		)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.adapters[kind]; exists {
		return transportError(
			"transport: adapter kind already registered",
			goerrors.CategoryConflict,
			http.StatusConflict,
			map[string]any{"kind": kind},
		)
	}
	r.adapters[kind] = adapter
	return nil
}

func (r *Registry) Resolve(kind string) (core.TransportAdapter, error) {
	if r == nil {
		return nil, transportError(
			"transport: registry is nil",
			goerrors.CategoryInternal,
			http.StatusInternalServerError,
			nil,
		)
	}
	normalized := normalizeKind(kind)
	if normalized == "" {
		normalized = KindREST
	}

	r.mu.RLock()
	adapter, exists := r.adapters[normalized]
	r.mu.RUnlock()
	if !exists {
		return nil, transportError(
			"transport: adapter kind is not registered",
			goerrors.CategoryNotFound,
			http.StatusNotFound,
			map[string]any{"kind": normalized},
		)
	}
	return adapter, nil
}

func (r *Registry) List() []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]string, 0, len(r.adapters))
	for kind := range r.adapters {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	return kinds
}

func normalizeKind(kind string) string {
	return strings.ToLower(strings.TrimSpace(kind))
}

var _ core.TransportResolver = (*Registry)(nil)
