package storage

import (
	"sort"
	"sync"
)

// Registry named stores, resolves request-level storage_type values
type Registry struct {
	mu       sync.RWMutex
	stores   map[Type]Store
	fallback Type
}

// NewRegistry fallback is used when a request names no storage type
func NewRegistry(fallback Type) *Registry {
	return &Registry{stores: make(map[Type]Store), fallback: fallback}
}

// Register adds or replaces a store
func (r *Registry) Register(t Type, s Store) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stores[t] = s
}

// Default the fallback store
func (r *Registry) Default() (Store, error) {
	return r.Get("")
}

// Get resolves name to a store
// "" means the fallback, plugin_storage is the embedded store
func (r *Registry) Get(name string) (Store, error) {
	t := ParseType(name)
	if t == "" {
		t = r.fallback
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.stores[t]
	if !ok {
		return nil, ErrStoreNotConfigured.WithMsgf("storage type not configured: %s", t).
			WithData("storage_type", string(t))
	}
	return s, nil
}

// Types configured store types, sorted
func (r *Registry) Types() []Type {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]Type, 0, len(r.stores))
	for t := range r.stores {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// Close closes all stores, returns the first error
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var first error
	for _, s := range r.stores {
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// ParseType maps user-facing names onto store types
func ParseType(name string) Type {
	switch name {
	case PluginStorage, "plugin", "local":
		return TypeEmbedded
	default:
		return Type(name)
	}
}

// Shutdown implements do.ShutdownerWithError
func (r *Registry) Shutdown() error {
	return r.Close()
}
