package provider

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/jordanhubbard/gauntlet/pkg/config"
)

// RegisteredProvider pairs a protocol client with the model to ask for.
type RegisteredProvider struct {
	ID       string
	Model    string
	Protocol Protocol
}

// Registry manages registered providers
type Registry struct {
	mu        sync.RWMutex
	providers map[string]*RegisteredProvider
}

// NewRegistry creates a new provider registry
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]*RegisteredProvider)}
}

// NewRegistryFromConfig registers every configured provider.
func NewRegistryFromConfig(providers []config.Provider) (*Registry, error) {
	r := NewRegistry()
	for _, p := range providers {
		if err := r.Register(p.ID, p.Model, NewOpenAIProvider(p.Endpoint, p.APIKey, 0)); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a provider under id.
func (r *Registry) Register(id, model string, protocol Protocol) error {
	if id == "" {
		return fmt.Errorf("provider id is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.providers[id]; exists {
		return fmt.Errorf("provider %s already registered", id)
	}
	r.providers[id] = &RegisteredProvider{ID: id, Model: model, Protocol: protocol}
	return nil
}

// Get retrieves a provider by id
func (r *Registry) Get(id string) (*RegisteredProvider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[id]
	if !ok {
		return nil, fmt.Errorf("provider not found: %s", id)
	}
	return p, nil
}

// IDs lists registered provider ids, sorted.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.providers))
	for id := range r.providers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ProviderStatus reports whether a provider serves its configured model.
type ProviderStatus struct {
	ID        string   `json:"id"`
	Model     string   `json:"model"`
	Available bool     `json:"available"`
	Models    []string `json:"models,omitempty"`
	Error     string   `json:"error,omitempty"`
}

// Check lists each provider's models and looks for the configured one.
// A provider with no configured model is available when it answers.
func (r *Registry) Check(ctx context.Context) []ProviderStatus {
	out := make([]ProviderStatus, 0, len(r.IDs()))
	for _, id := range r.IDs() {
		p, err := r.Get(id)
		if err != nil {
			continue
		}
		st := ProviderStatus{ID: id, Model: p.Model}
		models, err := p.Protocol.GetModels(ctx)
		if err != nil {
			st.Error = err.Error()
			out = append(out, st)
			continue
		}
		for _, m := range models {
			st.Models = append(st.Models, m.ID)
			if m.ID == p.Model {
				st.Available = true
			}
		}
		if p.Model == "" {
			st.Available = true
		} else if !st.Available {
			st.Error = fmt.Sprintf("model %s not served", p.Model)
		}
		out = append(out, st)
	}
	return out
}
