package agent

import (
	"fmt"
	"sort"

	"github.com/eap-project/eap/pkg/models"
)

// Registry enumerates the specialist agents available to the platform.
// It is populated once at startup and read-only thereafter, so lookups
// need no locking.
type Registry struct {
	specs     map[string]Spec
	order     []string
	factories map[string]Factory
	fallback  Factory
}

// NewRegistry builds a registry from the startup agent catalog.
// The default factory is used for every agent id without a specific one.
func NewRegistry(specs []Spec, defaultFactory Factory) (*Registry, error) {
	r := &Registry{
		specs:     make(map[string]Spec, len(specs)),
		factories: make(map[string]Factory),
		fallback:  defaultFactory,
	}
	for _, spec := range specs {
		if spec.ID == "" {
			return nil, fmt.Errorf("agent spec with empty id")
		}
		if _, dup := r.specs[spec.ID]; dup {
			return nil, fmt.Errorf("duplicate agent id %q", spec.ID)
		}
		if spec.MinRole == "" {
			spec.MinRole = models.RoleViewer
		}
		if !models.ValidRole(string(spec.MinRole)) {
			return nil, fmt.Errorf("agent %q: invalid min_role %q", spec.ID, spec.MinRole)
		}
		r.specs[spec.ID] = spec
		r.order = append(r.order, spec.ID)
	}
	sort.Strings(r.order)
	return r, nil
}

// RegisterFactory binds a specific factory to an agent id. Must be called
// during startup wiring, before the registry is shared.
func (r *Registry) RegisterFactory(agentID string, f Factory) {
	r.factories[agentID] = f
}

// Get returns the spec for an agent id.
func (r *Registry) Get(agentID string) (Spec, bool) {
	spec, ok := r.specs[agentID]
	return spec, ok
}

// List returns all specs in stable id order.
func (r *Registry) List() []Spec {
	out := make([]Spec, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.specs[id])
	}
	return out
}

// FilterByRole returns the specs a user of the given role is cleared for.
func (r *Registry) FilterByRole(role models.Role) []Spec {
	out := make([]Spec, 0, len(r.order))
	for _, id := range r.order {
		spec := r.specs[id]
		if role.AtLeast(spec.MinRole) {
			out = append(out, spec)
		}
	}
	return out
}

// CreateAgent instantiates the agent for an id using its registered
// factory, falling back to the default factory.
func (r *Registry) CreateAgent(agentID string, deps Deps) (Agent, error) {
	spec, ok := r.specs[agentID]
	if !ok {
		return nil, fmt.Errorf("unknown agent %q", agentID)
	}
	factory := r.factories[agentID]
	if factory == nil {
		factory = r.fallback
	}
	if factory == nil {
		return nil, fmt.Errorf("no factory available for agent %q", agentID)
	}
	return factory(spec, deps), nil
}
