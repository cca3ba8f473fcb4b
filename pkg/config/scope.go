// rewrite/pkg/config/scope.go

package config

import (
	"fmt"
	"sort"
	"sync"
)

// Scope is a named bundle of configuration overrides. It is immutable once defined.
type Scope struct {
	name     string
	settings map[string]interface{}
}

// NewScope copies settings into a new scope.
func NewScope(name string, settings map[string]interface{}) *Scope {
	copied := make(map[string]interface{}, len(settings))
	for k, v := range settings {
		copied[k] = v
	}
	return &Scope{name: name, settings: copied}
}

func (s *Scope) Name() string { return s.name }

// Setting returns the override for key, if the scope defines one.
func (s *Scope) Setting(key string) (interface{}, bool) {
	v, ok := s.settings[key]
	return v, ok
}

// Settings returns a copy of the scope's overrides.
func (s *Scope) Settings() map[string]interface{} {
	copied := make(map[string]interface{}, len(s.settings))
	for k, v := range s.settings {
		copied[k] = v
	}
	return copied
}

// Activator is the process-wide side of scope activation. Activate must be
// idempotent: activating an already active scope is a no-op.
type Activator interface {
	Activate(s *Scope)
}

// Registry holds the scopes of one configuration generation and tracks which of
// them have been activated at least once.
type Registry struct {
	mu     sync.RWMutex
	scopes map[string]*Scope
	active map[*Scope]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		scopes: make(map[string]*Scope),
		active: make(map[*Scope]struct{}),
	}
}

// Define adds a scope. Names are unique within a registry.
func (r *Registry) Define(name string, settings map[string]interface{}) (*Scope, error) {
	if name == "" {
		return nil, fmt.Errorf("scope name is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.scopes[name]; exists {
		return nil, fmt.Errorf("scope %q already defined", name)
	}
	scope := NewScope(name, settings)
	r.scopes[name] = scope
	return scope, nil
}

func (r *Registry) Lookup(name string) (*Scope, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.scopes[name]
	return s, ok
}

// Names returns the defined scope names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.scopes))
	for name := range r.scopes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) Activate(s *Scope) {
	r.mu.RLock()
	_, done := r.active[s]
	r.mu.RUnlock()
	if done {
		return
	}

	r.mu.Lock()
	r.active[s] = struct{}{}
	r.mu.Unlock()
}

func (r *Registry) IsActive(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.scopes[name]
	if !ok {
		return false
	}
	_, active := r.active[s]
	return active
}

// Active returns the names of all scopes activated so far, sorted.
func (r *Registry) Active() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.active))
	for s := range r.active {
		names = append(names, s.name)
	}
	sort.Strings(names)
	return names
}

// ScopeGroup is the per-request record of activated scopes. It is append-only
// and not safe for concurrent use; a request owns its group exclusively.
type ScopeGroup struct {
	scopes []*Scope
}

// Add appends s unless it is already part of the group.
func (g *ScopeGroup) Add(s *Scope) bool {
	for _, existing := range g.scopes {
		if existing == s {
			return false
		}
	}
	g.scopes = append(g.scopes, s)
	return true
}

func (g *ScopeGroup) Len() int { return len(g.scopes) }

// Scopes returns the activated scopes in activation order.
func (g *ScopeGroup) Scopes() []*Scope {
	out := make([]*Scope, len(g.scopes))
	copy(out, g.scopes)
	return out
}

// Names returns the activated scope names in activation order.
func (g *ScopeGroup) Names() []string {
	names := make([]string, len(g.scopes))
	for i, s := range g.scopes {
		names[i] = s.name
	}
	return names
}

// Lookup resolves key against the activated scopes, later activations first.
func (g *ScopeGroup) Lookup(key string) (interface{}, bool) {
	for i := len(g.scopes) - 1; i >= 0; i-- {
		if v, ok := g.scopes[i].settings[key]; ok {
			return v, true
		}
	}
	return nil, false
}

// Effective merges all activated overrides over base.
func (g *ScopeGroup) Effective(base map[string]interface{}) map[string]interface{} {
	merged := make(map[string]interface{}, len(base))
	for k, v := range base {
		merged[k] = v
	}
	for _, s := range g.scopes {
		for k, v := range s.settings {
			merged[k] = v
		}
	}
	return merged
}
