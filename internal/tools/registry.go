package tools

import (
	"fmt"
	"sort"

	"github.com/ternarybob/equityresearch/internal/interfaces"
)

// Registry holds the tools offered to the agent, in registration order
type Registry struct {
	ordered []interfaces.Tool
	byName  map[string]interfaces.Tool
}

// NewRegistry registers tools. Duplicate names are rejected.
func NewRegistry(tools ...interfaces.Tool) (*Registry, error) {
	r := &Registry{byName: make(map[string]interfaces.Tool, len(tools))}
	for _, t := range tools {
		if _, exists := r.byName[t.Name()]; exists {
			return nil, fmt.Errorf("duplicate tool name: %s", t.Name())
		}
		r.byName[t.Name()] = t
		r.ordered = append(r.ordered, t)
	}
	return r, nil
}

// All returns the tools in registration order
func (r *Registry) All() []interfaces.Tool {
	out := make([]interfaces.Tool, len(r.ordered))
	copy(out, r.ordered)
	return out
}

// Get looks a tool up by machine name
func (r *Registry) Get(name string) (interfaces.Tool, bool) {
	t, ok := r.byName[name]
	return t, ok
}

// Names returns the sorted machine names
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
