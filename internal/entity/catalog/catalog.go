// Package catalog assembles the standard entity registry for the civic
// facility register: organizations, facilities, their sub-spaces, and
// investment records. Field tables here are the only per-type knowledge; the
// orchestration itself lives in the entity package and is identical for every
// type.
package catalog

import (
	"fmt"
	"log/slog"
	"strings"

	"civica/internal/entity"
	id "civica/pkg/domain"
)

// New builds the registry with every catalog type registered against the
// given store.
func New(store entity.Store, logger *slog.Logger) (*entity.Registry, error) {
	registry := entity.NewRegistry()
	for _, schema := range []entity.Schema{
		Organization(),
		Facility(),
		Subspace(),
		Investment(),
	} {
		if err := registry.Register(entity.NewService(schema, store, logger)); err != nil {
			return nil, err
		}
	}
	if err := registry.Check(); err != nil {
		return nil, err
	}
	return registry, nil
}

// Organization is a tenant-owning legal body. Local fields only.
func Organization() entity.Schema {
	return entity.Schema{
		Type: id.EntityTypeOrganization,
		Fields: []entity.FieldDescriptor{
			{Name: "name", Kind: entity.FieldLocal, Required: true, Validate: nonEmptyString("name")},
			{Name: "registrationNumber", Kind: entity.FieldLocal, Required: true, Validate: nonEmptyString("registrationNumber")},
			{Name: "address", Kind: entity.FieldLocal},
			{Name: "contactEmail", Kind: entity.FieldLocal, Validate: emailish},
		},
	}
}

// Facility is the richest type: it exercises every descriptor kind. Sub-spaces
// are owned by the subspace service with their ids embedded here (child
// persists first); investments store a `facility` foreign key back at this
// row (facility persists first).
func Facility() entity.Schema {
	return entity.Schema{
		Type: id.EntityTypeFacility,
		Fields: []entity.FieldDescriptor{
			{Name: "name", Kind: entity.FieldLocal, Required: true, Validate: nonEmptyString("name")},
			{Name: "address", Kind: entity.FieldLocal, Required: true, Validate: nonEmptyString("address")},
			{Name: "organization", Kind: entity.FieldLocal},
			{Name: "category", Kind: entity.FieldLocal, Validate: oneOf("category", "sport", "culture", "education", "health")},
			{Name: "displayName", Kind: entity.FieldVirtual, Compute: facilityDisplayName},
			{Name: "occupancyRate", Kind: entity.FieldIgnored},
			{Name: "subSpaces", Kind: entity.FieldDelegatedByValue, Child: id.EntityTypeSubspace, Array: true},
			{Name: "investments", Kind: entity.FieldDelegatedByRelation, Child: id.EntityTypeInvestment, RelationField: "facility", Array: true},
		},
	}
}

// Subspace is a bookable area inside a facility. It carries its own
// by-relation children, so recursion through a facility reaches two levels of
// independently owned entities.
func Subspace() entity.Schema {
	return entity.Schema{
		Type: id.EntityTypeSubspace,
		Fields: []entity.FieldDescriptor{
			{Name: "name", Kind: entity.FieldLocal, Required: true, Validate: nonEmptyString("name")},
			{Name: "areaM2", Kind: entity.FieldLocal, Validate: positiveNumber("areaM2")},
			{Name: "purpose", Kind: entity.FieldLocal},
			{Name: "investments", Kind: entity.FieldDelegatedByRelation, Child: id.EntityTypeInvestment, RelationField: "subSpace", Array: true},
		},
	}
}

// Investment records money spent on a facility or one of its sub-spaces. The
// foreign keys are plain local fields here; parents inject them through the
// relation binding.
func Investment() entity.Schema {
	return entity.Schema{
		Type: id.EntityTypeInvestment,
		Fields: []entity.FieldDescriptor{
			{Name: "title", Kind: entity.FieldLocal, Required: true, Validate: nonEmptyString("title")},
			{Name: "amount", Kind: entity.FieldLocal, Required: true, Validate: positiveNumber("amount")},
			{Name: "year", Kind: entity.FieldLocal, Validate: yearRange},
			{Name: "facility", Kind: entity.FieldLocal},
			{Name: "subSpace", Kind: entity.FieldLocal},
		},
	}
}

func facilityDisplayName(doc entity.Document) any {
	name, _ := doc["name"].(string)
	address, _ := doc["address"].(string)
	if address == "" {
		return name
	}
	return name + " (" + address + ")"
}

func nonEmptyString(field string) func(any) error {
	return func(v any) error {
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("%s must be a string", field)
		}
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s cannot be blank", field)
		}
		return nil
	}
}

func oneOf(field string, allowed ...string) func(any) error {
	return func(v any) error {
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("%s must be a string", field)
		}
		for _, a := range allowed {
			if s == a {
				return nil
			}
		}
		return fmt.Errorf("%s must be one of %s", field, strings.Join(allowed, ", "))
	}
}

func positiveNumber(field string) func(any) error {
	return func(v any) error {
		n, ok := v.(float64)
		if !ok {
			return fmt.Errorf("%s must be a number", field)
		}
		if n <= 0 {
			return fmt.Errorf("%s must be positive", field)
		}
		return nil
	}
}

func emailish(v any) error {
	s, ok := v.(string)
	if !ok {
		return fmt.Errorf("contactEmail must be a string")
	}
	if s != "" && !strings.Contains(s, "@") {
		return fmt.Errorf("contactEmail is not a valid address")
	}
	return nil
}

func yearRange(v any) error {
	n, ok := v.(float64)
	if !ok {
		return fmt.Errorf("year must be a number")
	}
	if n < 1900 || n > 2100 {
		return fmt.Errorf("year is out of range")
	}
	return nil
}
