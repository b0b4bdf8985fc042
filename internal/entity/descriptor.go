package entity

import (
	"fmt"

	id "civica/pkg/domain"
)

// FieldKind classifies how the interpreter treats a field.
type FieldKind int

const (
	// FieldLocal is stored directly on the entity's own row.
	FieldLocal FieldKind = iota
	// FieldVirtual is computed on snapshot fetch, never diffed or persisted.
	FieldVirtual
	// FieldIgnored is excluded from the apply/validate pass (derived data).
	FieldIgnored
	// FieldDelegatedByValue represents children owned by another service whose
	// ids are embedded on this entity. The child is persisted first, then its
	// id is written into the parent.
	FieldDelegatedByValue
	// FieldDelegatedByRelation represents children that store a foreign key
	// pointing back at this entity. The parent is persisted first, then each
	// child is linked through RelationField.
	FieldDelegatedByRelation
)

// FieldDescriptor is the static metadata for one field, consulted by the
// generic interpreter without per-entity special-casing.
type FieldDescriptor struct {
	Name string
	Kind FieldKind

	// Child names the entity type a delegated field fans out to.
	Child id.EntityType
	// RelationField is the child-side foreign key field; set only for
	// FieldDelegatedByRelation.
	RelationField string
	// Array marks delegated fields holding many children rather than one.
	Array bool

	// Required rejects creation without a value for this field.
	Required bool
	// Validate is the field-level validator run in Stage B against changed
	// values. Nil means any value is accepted.
	Validate func(value any) error
	// Compute fills a virtual field on snapshot fetch.
	Compute func(doc Document) any
}

func (f FieldDescriptor) delegated() bool {
	return f.Kind == FieldDelegatedByValue || f.Kind == FieldDelegatedByRelation
}

// Schema is the compile-time field table for one entity type.
type Schema struct {
	Type   id.EntityType
	Fields []FieldDescriptor
}

// Field looks up a descriptor by name.
func (s Schema) Field(name string) (FieldDescriptor, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldDescriptor{}, false
}

// check enforces structural invariants at registration time so a bad table
// fails fast at wiring rather than mid-orchestration.
func (s Schema) check() error {
	if s.Type.IsNil() {
		return fmt.Errorf("schema has no entity type")
	}
	seen := make(map[string]bool, len(s.Fields))
	for _, f := range s.Fields {
		if f.Name == "" {
			return fmt.Errorf("%s: field with empty name", s.Type)
		}
		if seen[f.Name] {
			return fmt.Errorf("%s: duplicate field %q", s.Type, f.Name)
		}
		seen[f.Name] = true
		if f.delegated() && f.Child.IsNil() {
			return fmt.Errorf("%s.%s: delegated field without child type", s.Type, f.Name)
		}
		if f.Kind == FieldDelegatedByRelation && f.RelationField == "" {
			return fmt.Errorf("%s.%s: by-relation field without relation field", s.Type, f.Name)
		}
		if f.Kind != FieldDelegatedByRelation && f.RelationField != "" {
			return fmt.Errorf("%s.%s: relation field on non-relation descriptor", s.Type, f.Name)
		}
		if f.Kind == FieldVirtual && f.Compute == nil {
			return fmt.Errorf("%s.%s: virtual field without compute", s.Type, f.Name)
		}
	}
	return nil
}
