// Package audit captures the workflow audit trail. Domain logic emits Events
// into a channel; a background Worker persists them and fans out to
// publishers. Keep Event transport-agnostic so stores and sinks can share it.
package audit

import (
	"context"
	"time"

	id "civica/pkg/domain"
)

// Action names one auditable workflow occurrence.
type Action string

const (
	ActionRequestCreated   Action = "request_created"
	ActionRequestSubmitted Action = "request_submitted"
	ActionRequestApproved  Action = "request_approved"
	ActionRequestRejected  Action = "request_rejected"
	ActionRequestReturned  Action = "request_returned"
	ActionRequestDeleted   Action = "request_deleted"
	ActionApplyFailed      Action = "apply_failed"
)

// Event is one audit trail entry. ActorID is who performed the action;
// OnBehalfOf is set when the system applies changes as the original requester
// after a reviewer approval, so both identities stay traceable.
type Event struct {
	Action     Action
	Timestamp  time.Time
	RequestID  id.RequestID
	EntityType id.EntityType
	EntityID   string
	TenantID   id.TenantID
	ActorID    id.UserID
	OnBehalfOf id.UserID
	Reason     string
	// CorrelationID is the HTTP request id from context, when present.
	CorrelationID string
}

// Store persists audit events for later inspection.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByRequest(ctx context.Context, requestID id.RequestID) ([]Event, error)
}

// Publisher pushes events to an external sink (message broker, SIEM).
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}
