package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"civica/internal/workflow/models"
	id "civica/pkg/domain"
	"civica/pkg/platform/sentinel"
)

// MemoryStore is the in-memory RequestStore for unit tests and local
// development. Records are copied on the way in and out.
type MemoryStore struct {
	mu       sync.RWMutex
	requests map[id.RequestID]*models.Request
	history  map[id.RequestID][]*models.RequestHistory
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		requests: make(map[id.RequestID]*models.Request),
		history:  make(map[id.RequestID][]*models.RequestHistory),
	}
}

func copyRequest(req *models.Request) *models.Request {
	clone := *req
	clone.Changes = req.Changes.Clone()
	return &clone
}

func copyHistory(row *models.RequestHistory) *models.RequestHistory {
	clone := *row
	clone.Changes = row.Changes.Clone()
	return &clone
}

func (s *MemoryStore) Create(_ context.Context, req *models.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.requests[req.ID]; exists {
		return fmt.Errorf("create request %s: %w", req.ID, sentinel.ErrConflict)
	}
	s.requests[req.ID] = copyRequest(req)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, requestID id.RequestID) (*models.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	req, ok := s.requests[requestID]
	if !ok {
		return nil, fmt.Errorf("get request %s: %w", requestID, sentinel.ErrNotFound)
	}
	return copyRequest(req), nil
}

func (s *MemoryStore) Update(_ context.Context, req *models.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.requests[req.ID]; !ok {
		return fmt.Errorf("update request %s: %w", req.ID, sentinel.ErrNotFound)
	}
	s.requests[req.ID] = copyRequest(req)
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, requestID id.RequestID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.requests[requestID]; !ok {
		return fmt.Errorf("delete request %s: %w", requestID, sentinel.ErrNotFound)
	}
	delete(s.requests, requestID)
	return nil
}

func (s *MemoryStore) List(_ context.Context, filter Filter) ([]*models.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Request
	for _, req := range s.requests {
		if filter.matches(req) {
			out = append(out, copyRequest(req))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

func (s *MemoryStore) AppendHistory(_ context.Context, row *models.RequestHistory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history[row.RequestID] = append(s.history[row.RequestID], copyHistory(row))
	return nil
}

func (s *MemoryStore) ListHistory(_ context.Context, requestID id.RequestID) ([]*models.RequestHistory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows := s.history[requestID]
	out := make([]*models.RequestHistory, 0, len(rows))
	// Walk backwards so rows appended later come first, then let the stable
	// sort order distinct timestamps without disturbing same-instant rows.
	for i := len(rows) - 1; i >= 0; i-- {
		out = append(out, copyHistory(rows[i]))
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}
