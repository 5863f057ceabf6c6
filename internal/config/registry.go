package config

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/MrWong99/chatsim/pkg/provider/llm"
)

// ErrProviderNotRegistered is returned by [Registry.Create] when no factory
// has been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Factory builds a provider from its configuration entry.
type Factory func(ProviderEntry) (llm.Provider, error)

// Registry maps provider names to their constructor functions. It is safe
// for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register registers a provider factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) Register(name string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// Names returns the registered provider names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for n := range r.factories {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// Create instantiates a provider using the factory registered under
// entry.Name. Returns [ErrProviderNotRegistered] if there is none.
func (r *Registry) Create(entry ProviderEntry) (llm.Provider, error) {
	r.mu.RLock()
	factory, ok := r.factories[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrProviderNotRegistered, entry.Name)
	}
	p, err := factory(entry)
	if err != nil {
		return nil, fmt.Errorf("config: create provider %q: %w", entry.Name, err)
	}
	return p, nil
}

// CreateAll instantiates every entry in order. It fails on the first
// entry that cannot be built.
func (r *Registry) CreateAll(entries []ProviderEntry) ([]llm.Provider, error) {
	out := make([]llm.Provider, 0, len(entries))
	for _, e := range entries {
		p, err := r.Create(e)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// OptString extracts a string value from a provider Options map.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func OptString(opts map[string]any, key string) string {
	s, _ := opts[key].(string)
	return s
}

// OptFloat extracts a numeric value from a provider Options map.
func OptFloat(opts map[string]any, key string) (float64, bool) {
	switch v := opts[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	}
	return 0, false
}

// OptBool extracts a boolean value from a provider Options map.
func OptBool(opts map[string]any, key string) (bool, bool) {
	b, ok := opts[key].(bool)
	return b, ok
}
