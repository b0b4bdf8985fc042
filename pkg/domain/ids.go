// Package domain holds the shared domain primitives: typed identifiers and the
// entity-type vocabulary. Typed UUID wrappers prevent cross-type assignment at
// compile time and enforce validity at parse time (trust boundaries).
package domain

import (
	"github.com/google/uuid"

	dErrors "civica/pkg/domain-errors"
)

// Typed identifiers. Distinct types so a RequestID can never be passed where a
// UserID is expected.
type (
	// RequestID identifies a change request.
	RequestID uuid.UUID

	// UserID identifies an authenticated user.
	UserID uuid.UUID

	// TenantID identifies an owning tenant organization.
	TenantID uuid.UUID

	// EntityID identifies a domain entity row inside an entity service.
	EntityID uuid.UUID
)

func (i RequestID) String() string { return uuid.UUID(i).String() }
func (i UserID) String() string    { return uuid.UUID(i).String() }
func (i TenantID) String() string  { return uuid.UUID(i).String() }
func (i EntityID) String() string  { return uuid.UUID(i).String() }

func (i RequestID) IsNil() bool { return uuid.UUID(i) == uuid.Nil }
func (i UserID) IsNil() bool    { return uuid.UUID(i) == uuid.Nil }
func (i TenantID) IsNil() bool  { return uuid.UUID(i) == uuid.Nil }
func (i EntityID) IsNil() bool  { return uuid.UUID(i) == uuid.Nil }

// NewRequestID generates a fresh request identifier.
func NewRequestID() RequestID { return RequestID(uuid.New()) }

// NewEntityID generates a fresh entity identifier.
func NewEntityID() EntityID { return EntityID(uuid.New()) }

// parseUUID enforces the shared invariant: IDs must be valid, non-empty,
// non-nil UUIDs. All typed parsers funnel through it.
func parseUUID(s, kind string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" id is required")
	}
	if len(s) > 64 {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" id is malformed")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" id is malformed")
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" id cannot be the nil UUID")
	}
	return u, nil
}

// ParseRequestID validates and returns a RequestID.
func ParseRequestID(s string) (RequestID, error) {
	u, err := parseUUID(s, "request")
	if err != nil {
		return RequestID{}, err
	}
	return RequestID(u), nil
}

// ParseUserID validates and returns a UserID.
func ParseUserID(s string) (UserID, error) {
	u, err := parseUUID(s, "user")
	if err != nil {
		return UserID{}, err
	}
	return UserID(u), nil
}

// ParseTenantID validates and returns a TenantID.
func ParseTenantID(s string) (TenantID, error) {
	u, err := parseUUID(s, "tenant")
	if err != nil {
		return TenantID{}, err
	}
	return TenantID(u), nil
}

// ParseEntityID validates and returns an EntityID.
func ParseEntityID(s string) (EntityID, error) {
	u, err := parseUUID(s, "entity")
	if err != nil {
		return EntityID{}, err
	}
	return EntityID(u), nil
}
