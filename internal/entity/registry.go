package entity

import (
	"fmt"
	"sort"

	id "civica/pkg/domain"
)

// Registry resolves entity types to their services. It is assembled once at
// wiring time; lookups afterwards are read-only.
type Registry struct {
	services map[id.EntityType]*Service
}

func NewRegistry() *Registry {
	return &Registry{services: make(map[id.EntityType]*Service)}
}

// Register adds a service and validates its schema, including that every
// delegated field points at a type that will resolve. Child types may be
// registered in any order; cross-references are verified by Check.
func (r *Registry) Register(s *Service) error {
	if err := s.schema.check(); err != nil {
		return err
	}
	if _, ok := r.services[s.schema.Type]; ok {
		return fmt.Errorf("entity type %s registered twice", s.schema.Type)
	}
	r.services[s.schema.Type] = s
	s.registry = r
	return nil
}

// Check verifies that every delegated field resolves to a registered service.
// Call after all Register calls.
func (r *Registry) Check() error {
	for typ, svc := range r.services {
		for _, f := range svc.schema.Fields {
			if !f.delegated() {
				continue
			}
			if _, ok := r.services[f.Child]; !ok {
				return fmt.Errorf("%s.%s delegates to unregistered type %s", typ, f.Name, f.Child)
			}
		}
	}
	return nil
}

// Lookup returns the service owning an entity type.
func (r *Registry) Lookup(typ id.EntityType) (*Service, bool) {
	s, ok := r.services[typ]
	return s, ok
}

// Types lists the registered entity types, sorted for stable output.
func (r *Registry) Types() []id.EntityType {
	out := make([]id.EntityType, 0, len(r.services))
	for typ := range r.services {
		out = append(out, typ)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
