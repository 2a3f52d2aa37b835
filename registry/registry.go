// Package registry maps agent type names to factories. Types are registered
// under a namespace and addressed as "namespace/name"; a bare name resolves
// when it is unique across namespaces.
package registry

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/hupe1980/meshcore/agent"
	"github.com/hupe1980/meshcore/core"
)

// ErrUnknownType is returned by Get for unregistered names.
var ErrUnknownType = fmt.Errorf("%w: unknown agent type", core.ErrInvalidState)

// Registry is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]agent.Factory
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{factories: make(map[string]agent.Factory)}
}

// Qualify joins namespace and name.
func Qualify(namespace, name string) string {
	if namespace == "" {
		return name
	}
	return namespace + "/" + name
}

// Register adds factory under namespace/name. Registering an existing name fails.
func (r *Registry) Register(namespace, name string, factory agent.Factory) error {
	if name == "" || strings.Contains(name, "/") {
		return fmt.Errorf("%w: invalid agent type name %q", core.ErrValidation, name)
	}
	if factory == nil {
		return fmt.Errorf("%w: nil factory for %q", core.ErrValidation, name)
	}

	key := Qualify(namespace, name)

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.factories[key]; ok {
		return fmt.Errorf("%w: agent type %q already registered", core.ErrInvalidState, key)
	}
	r.factories[key] = factory
	return nil
}

// MustRegister is Register that panics on error.
func (r *Registry) MustRegister(namespace, name string, factory agent.Factory) {
	if err := r.Register(namespace, name, factory); err != nil {
		panic(err)
	}
}

// Get resolves a qualified or unique bare name.
func (r *Registry) Get(name string) (agent.Factory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if f, ok := r.factories[name]; ok {
		return f, nil
	}
	if strings.Contains(name, "/") {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, name)
	}

	var (
		found agent.Factory
		hits  []string
	)
	for key, f := range r.factories {
		if key[strings.LastIndex(key, "/")+1:] == name {
			found = f
			hits = append(hits, key)
		}
	}
	switch len(hits) {
	case 0:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, name)
	case 1:
		return found, nil
	}
	sort.Strings(hits)
	return nil, fmt.Errorf("%w: %q is ambiguous (%s)", ErrUnknownType, name, strings.Join(hits, ", "))
}

// List returns the sorted qualified names of all registered types.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.factories))
	for key := range r.factories {
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}
