package dispatch

import (
	"fmt"
	"sort"
	"sync"
)

// Resolver finds the responder for an agent.
type Resolver interface {
	ResponderFor(agentID string) (Responder, error)
}

// Responders is a fixed agent id -> responder table.
type Responders map[string]Responder

// ResponderFor looks the agent up.
func (r Responders) ResponderFor(agentID string) (Responder, error) {
	if resp, ok := r[agentID]; ok && resp != nil {
		return resp, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrNoResponder, agentID)
}

// Registry maps agents to responder kinds and kinds to implementations.
// Agents without an assignment use the default kind.
type Registry struct {
	mu          sync.RWMutex
	kinds       map[string]Responder
	agents      map[string]string
	defaultKind string
}

var _ Resolver = (*Registry)(nil)

// NewRegistry creates an empty registry.
func NewRegistry(defaultKind string) *Registry {
	return &Registry{
		kinds:       make(map[string]Responder),
		agents:      make(map[string]string),
		defaultKind: defaultKind,
	}
}

// Register installs the responder for a kind, replacing any previous one.
func (r *Registry) Register(kind string, resp Responder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.kinds[kind] = resp
}

// Assign binds an agent to a kind.
func (r *Registry) Assign(agentID, kind string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.agents[agentID] = kind
}

// KindOf returns the kind an agent resolves to.
func (r *Registry) KindOf(agentID string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if kind, ok := r.agents[agentID]; ok {
		return kind
	}
	return r.defaultKind
}

// Kinds lists registered kinds, sorted.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.kinds))
	for k := range r.kinds {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// ResponderFor resolves agent -> kind -> responder.
func (r *Registry) ResponderFor(agentID string) (Responder, error) {
	kind := r.KindOf(agentID)
	r.mu.RLock()
	resp, ok := r.kinds[kind]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s (kind %q)", ErrNoResponder, agentID, kind)
	}
	return resp, nil
}
