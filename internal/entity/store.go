package entity

import (
	"context"

	id "civica/pkg/domain"
)

// Store persists entity documents. Each service passes its own entity type on
// every call; implementations keep rows segregated by type so one service
// never reads another's data except through the service contract.
//
// Delegated-by-value fields are stored as id scalars/arrays; hydration back
// into child documents happens in Service.FetchSnapshot.
type Store interface {
	// Create persists a new document. The id must already be set.
	Create(ctx context.Context, typ id.EntityType, doc Document) (Document, error)
	// Get returns the stored document or sentinel.ErrNotFound.
	Get(ctx context.Context, typ id.EntityType, entityID string) (Document, error)
	// Update replaces the stored document or returns sentinel.ErrNotFound.
	Update(ctx context.Context, typ id.EntityType, entityID string, doc Document) (Document, error)
	// Delete removes the document or returns sentinel.ErrNotFound.
	Delete(ctx context.Context, typ id.EntityType, entityID string) error
	// ListByField returns documents whose top-level field equals value,
	// ordered by id. Used to resolve by-relation children.
	ListByField(ctx context.Context, typ id.EntityType, field, value string) ([]Document, error)
}
