package provider

import (
	"fmt"
	"strings"
	"sync"
)

// Registry tracks registered providers, keyed by provider id (spec §4.3,
// §9: the process wires concrete providers into one shared registry).
type Registry struct {
	mu           sync.RWMutex
	providers    map[string]Provider
	defaultModel string // "provider/model", empty for no configured default
}

// NewRegistry creates an empty registry. defaultModel is "provider/model",
// consulted by DefaultModel before falling back to any registered model.
func NewRegistry(defaultModel string) *Registry {
	return &Registry{providers: make(map[string]Provider), defaultModel: defaultModel}
}

// Register adds or replaces a provider.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.ID()] = p
}

// Get retrieves a provider by id.
func (r *Registry) Get(providerID string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[providerID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProviderNotFound, providerID)
	}
	return p, nil
}

// List returns every registered provider in no particular order.
func (r *Registry) List() []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Provider, 0, len(r.providers))
	for _, p := range r.providers {
		out = append(out, p)
	}
	return out
}

// GetModel looks up one model by provider/model id pair.
func (r *Registry) GetModel(providerID, modelID string) (*ModelInfo, error) {
	p, err := r.Get(providerID)
	if err != nil {
		return nil, err
	}
	for _, m := range p.Models() {
		if m.ID == modelID {
			mm := m
			return &mm, nil
		}
	}
	return nil, fmt.Errorf("%w: %s/%s", ErrModelNotFound, providerID, modelID)
}

// AllModels returns every model from every registered provider.
func (r *Registry) AllModels() []ModelInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []ModelInfo
	for _, p := range r.providers {
		out = append(out, p.Models()...)
	}
	return out
}

// DefaultModel resolves the registry's configured default ("provider/model")
// or, failing that, the first model of a registered provider that has
// models; which provider is picked is not defined (map iteration order).
func (r *Registry) DefaultModel() (providerID, modelID string, err error) {
	if r.defaultModel != "" {
		pid, mid := ParseModelString(r.defaultModel)
		if _, err := r.GetModel(pid, mid); err == nil {
			return pid, mid, nil
		}
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.providers {
		if models := p.Models(); len(models) > 0 {
			return p.ID(), models[0].ID, nil
		}
	}
	return "", "", fmt.Errorf("provider: no models registered")
}

// ParseModelString parses "provider/model"; a bare model id (no slash)
// returns an empty providerID.
func ParseModelString(s string) (providerID, modelID string) {
	parts := strings.SplitN(s, "/", 2)
	if len(parts) == 2 {
		return parts[0], parts[1]
	}
	return "", s
}
