// Package store owns Request and RequestHistory persistence. Thin by design:
// all policy lives in the models and service packages.
package store

import (
	"context"

	"civica/internal/workflow/models"
	id "civica/pkg/domain"
)

// Visibility is the OR-filter for what one caller may see: requests they
// created, plus requests owned by their active tenant when set.
type Visibility struct {
	UserID   id.UserID
	TenantID id.TenantID
}

// Filter narrows a request listing.
type Filter struct {
	// VisibleTo scopes to one caller's requests; nil lists everything
	// (reviewer and internal paths).
	VisibleTo *Visibility
	// Statuses keeps only the given statuses; empty keeps all.
	Statuses []models.Status
	// ExcludeStatuses drops the given statuses after the above.
	ExcludeStatuses []models.Status
	// EntityType keeps one target type; empty keeps all.
	EntityType id.EntityType
}

func (f Filter) matches(req *models.Request) bool {
	if f.VisibleTo != nil {
		visible := req.CreatedBy == f.VisibleTo.UserID
		if !visible && !f.VisibleTo.TenantID.IsNil() && req.TenantID == f.VisibleTo.TenantID {
			visible = true
		}
		if !visible {
			return false
		}
	}
	if len(f.Statuses) > 0 {
		found := false
		for _, s := range f.Statuses {
			if req.Status == s {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	for _, s := range f.ExcludeStatuses {
		if req.Status == s {
			return false
		}
	}
	if !f.EntityType.IsNil() && req.EntityType != f.EntityType {
		return false
	}
	return true
}

// RequestStore persists requests and their append-only history. Returns
// sentinel.ErrNotFound for missing records; services translate upward.
type RequestStore interface {
	Create(ctx context.Context, req *models.Request) error
	Get(ctx context.Context, requestID id.RequestID) (*models.Request, error)
	Update(ctx context.Context, req *models.Request) error
	Delete(ctx context.Context, requestID id.RequestID) error
	// List returns matching requests, most recently updated first.
	List(ctx context.Context, filter Filter) ([]*models.Request, error)

	AppendHistory(ctx context.Context, row *models.RequestHistory) error
	// ListHistory returns one request's trail, newest first.
	ListHistory(ctx context.Context, requestID id.RequestID) ([]*models.RequestHistory, error)
}
