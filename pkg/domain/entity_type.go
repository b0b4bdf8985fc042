package domain

import "fmt"

// EntityType names the entity service a change request targets. The set of
// valid types is fixed at wiring time by the entity registry; parsing here only
// rejects obviously malformed input so the registry stays the single source of
// truth for which services exist.
type EntityType string

// Entity types shipped with the standard catalog.
const (
	EntityTypeOrganization EntityType = "organization"
	EntityTypeFacility     EntityType = "facility"
	EntityTypeSubspace     EntityType = "subspace"
	EntityTypeInvestment   EntityType = "investment"
)

func (t EntityType) String() string { return string(t) }

// IsNil returns true when no entity type has been set.
func (t EntityType) IsNil() bool { return t == "" }

// ParseEntityType validates the syntactic shape of an entity type name.
func ParseEntityType(s string) (EntityType, error) {
	if s == "" {
		return "", fmt.Errorf("entity type is required")
	}
	if len(s) > 64 {
		return "", fmt.Errorf("entity type is malformed")
	}
	return EntityType(s), nil
}
