// Package models holds the change-request aggregate: the request record, its
// append-only history, the status vocabulary, the permission evaluator, and
// the status state machine. Everything here is pure domain logic; persistence
// and orchestration live in the sibling store and service packages.
package models

import (
	"time"

	"github.com/google/uuid"

	id "civica/pkg/domain"
)

// Status is the request lifecycle state. Mutable only through the state
// machine; APPROVED and REJECTED are terminal.
type Status string

const (
	StatusDraft     Status = "DRAFT"
	StatusCreated   Status = "CREATED"
	StatusSubmitted Status = "SUBMITTED"
	StatusApproved  Status = "APPROVED"
	StatusRejected  Status = "REJECTED"
	StatusReturned  Status = "RETURNED"
)

func (s Status) String() string { return string(s) }

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusCreated, StatusSubmitted, StatusApproved, StatusRejected, StatusReturned:
		return true
	}
	return false
}

// Terminal statuses accept no further transitions.
func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// Editable statuses may have their change sets modified by the submitter.
func (s Status) Editable() bool {
	return s == StatusDraft || s == StatusReturned
}

// Decidable statuses sit in the reviewer's queue.
func (s Status) Decidable() bool {
	return s == StatusCreated || s == StatusSubmitted
}

// Request is a proposed change to one domain entity, owned by the request
// repository. EntityID is empty while the request proposes creation of a new
// entity; it is written back after approval and immutable once set. TenantID
// is snapshotted from the creator's active profile at creation and never
// mutated afterwards.
type Request struct {
	ID         id.RequestID  `json:"id"`
	Status     Status        `json:"status"`
	EntityType id.EntityType `json:"entityType"`
	EntityID   string        `json:"entity,omitempty"`
	Changes    ChangeSet     `json:"changes"`
	TenantID   id.TenantID   `json:"tenant,omitempty"`
	CreatedBy  id.UserID     `json:"createdBy"`
	CreatedAt  time.Time     `json:"createdAt"`
	UpdatedBy  id.UserID     `json:"updatedBy"`
	UpdatedAt  time.Time     `json:"updatedAt"`
}

// TargetsCreation reports whether this request proposes a brand-new entity.
func (r *Request) TargetsCreation() bool { return r.EntityID == "" }

// HistoryType labels one history row. Status transitions map 1:1 onto their
// status name; CREATED doubles as the birth record and DELETED closes the
// trail. Transitions back into DRAFT leave no row.
type HistoryType string

const (
	HistoryCreated   HistoryType = "CREATED"
	HistorySubmitted HistoryType = "SUBMITTED"
	HistoryApproved  HistoryType = "APPROVED"
	HistoryRejected  HistoryType = "REJECTED"
	HistoryReturned  HistoryType = "RETURNED"
	HistoryDeleted   HistoryType = "DELETED"
)

// HistoryTypeForStatus maps a status transition onto its history row type.
// The second return is false for statuses that record no history (DRAFT).
func HistoryTypeForStatus(s Status) (HistoryType, bool) {
	switch s {
	case StatusCreated:
		return HistoryCreated, true
	case StatusSubmitted:
		return HistorySubmitted, true
	case StatusApproved:
		return HistoryApproved, true
	case StatusRejected:
		return HistoryRejected, true
	case StatusReturned:
		return HistoryReturned, true
	}
	return "", false
}

// RequestHistory is one append-only audit row. Born when a request is
// created, transitions status, or is deleted; never mutated or deleted by
// users, never garbage-collected.
type RequestHistory struct {
	ID        uuid.UUID    `json:"id"`
	RequestID id.RequestID `json:"request"`
	Type      HistoryType  `json:"type"`
	Changes   ChangeSet    `json:"changes,omitempty"`
	Comment   string       `json:"comment,omitempty"`
	CreatedBy id.UserID    `json:"createdBy"`
	CreatedAt time.Time    `json:"createdAt"`
}
