package entity

import (
	"context"
	"fmt"
	"sort"
	"sync"

	id "civica/pkg/domain"
	"civica/pkg/platform/sentinel"
)

// MemoryStore is an in-memory Store for unit tests and local development.
// Documents are deep-copied on the way in and out so callers can never mutate
// stored state through shared maps.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[id.EntityType]map[string]Document
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[id.EntityType]map[string]Document)}
}

func (s *MemoryStore) Create(_ context.Context, typ id.EntityType, doc Document) (Document, error) {
	entityID := doc.ID()
	if entityID == "" {
		return nil, fmt.Errorf("create %s: %w: missing id", typ, sentinel.ErrInvalidState)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := s.docs[typ]
	if rows == nil {
		rows = make(map[string]Document)
		s.docs[typ] = rows
	}
	if _, exists := rows[entityID]; exists {
		return nil, fmt.Errorf("create %s %s: %w", typ, entityID, sentinel.ErrConflict)
	}
	rows[entityID] = doc.Clone()
	return doc.Clone(), nil
}

func (s *MemoryStore) Get(_ context.Context, typ id.EntityType, entityID string) (Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[typ][entityID]
	if !ok {
		return nil, fmt.Errorf("get %s %s: %w", typ, entityID, sentinel.ErrNotFound)
	}
	return doc.Clone(), nil
}

func (s *MemoryStore) Update(_ context.Context, typ id.EntityType, entityID string, doc Document) (Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[typ][entityID]; !ok {
		return nil, fmt.Errorf("update %s %s: %w", typ, entityID, sentinel.ErrNotFound)
	}
	s.docs[typ][entityID] = doc.Clone()
	return doc.Clone(), nil
}

func (s *MemoryStore) Delete(_ context.Context, typ id.EntityType, entityID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[typ][entityID]; !ok {
		return fmt.Errorf("delete %s %s: %w", typ, entityID, sentinel.ErrNotFound)
	}
	delete(s.docs[typ], entityID)
	return nil
}

func (s *MemoryStore) ListByField(_ context.Context, typ id.EntityType, field, value string) ([]Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Document
	for _, doc := range s.docs[typ] {
		if v, ok := doc[field].(string); ok && v == value {
			out = append(out, doc.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out, nil
}
