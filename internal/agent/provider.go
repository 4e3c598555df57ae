// Package agent launches mapper agent processes and streams their raw
// stdout back to the session layer. The agent's reasoning is opaque to this
// engine; the only contract is the chunked event stream on stdout.
package agent

import (
	"sort"
	"sync"

	"github.com/jonivernergaard/Oracle-MCP/internal/domain"
)

// ProviderSpec describes how to launch one mapper provider.
type ProviderSpec struct {
	Name    string
	Command string
	Args    []string
	Env     map[string]string
}

// Registry is a thread-safe registry of provider specifications.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]ProviderSpec
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]ProviderSpec)}
}

// Register adds a provider spec to the registry.
// Returns ErrProviderUnavailable if a provider with the same name is already registered.
func (r *Registry) Register(spec ProviderSpec) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.providers[spec.Name]; exists {
		return domain.WrapEngineError(domain.ErrProviderUnavailable.Code, "provider already registered", nil)
	}
	r.providers[spec.Name] = spec
	return nil
}

// Get returns the spec for the named provider, or ErrProviderUnavailable.
func (r *Registry) Get(name string) (ProviderSpec, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	spec, ok := r.providers[name]
	if !ok {
		return ProviderSpec{}, domain.ErrProviderUnavailable
	}
	return spec, nil
}

// List returns all registered provider names in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
