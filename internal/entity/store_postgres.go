package entity

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"

	id "civica/pkg/domain"
	"civica/pkg/platform/sentinel"
	txcontext "civica/pkg/platform/tx"
)

// PostgresStore persists entity documents as jsonb rows in a single
// `entities` table keyed by (entity_type, id).
//
// Schema:
//
//	CREATE TABLE entities (
//	    entity_type TEXT  NOT NULL,
//	    id          UUID  NOT NULL,
//	    doc         JSONB NOT NULL,
//	    PRIMARY KEY (entity_type, id)
//	);
//	CREATE INDEX entities_doc_gin ON entities USING gin (doc);
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *PostgresStore) Create(ctx context.Context, typ id.EntityType, doc Document) (Document, error) {
	entityID := doc.ID()
	if entityID == "" {
		return nil, fmt.Errorf("create %s: %w: missing id", typ, sentinel.ErrInvalidState)
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal %s document: %w", typ, err)
	}
	_, err = s.execer(ctx).ExecContext(ctx,
		`INSERT INTO entities (entity_type, id, doc) VALUES ($1, $2, $3)`,
		typ.String(), entityID, raw,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return nil, fmt.Errorf("create %s %s: %w", typ, entityID, sentinel.ErrConflict)
		}
		return nil, fmt.Errorf("insert %s: %w", typ, err)
	}
	return doc.Clone(), nil
}

func (s *PostgresStore) Get(ctx context.Context, typ id.EntityType, entityID string) (Document, error) {
	var raw []byte
	err := s.execer(ctx).QueryRowContext(ctx,
		`SELECT doc FROM entities WHERE entity_type = $1 AND id = $2`,
		typ.String(), entityID,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get %s %s: %w", typ, entityID, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", typ, err)
	}
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal %s document: %w", typ, err)
	}
	return doc, nil
}

func (s *PostgresStore) Update(ctx context.Context, typ id.EntityType, entityID string, doc Document) (Document, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal %s document: %w", typ, err)
	}
	res, err := s.execer(ctx).ExecContext(ctx,
		`UPDATE entities SET doc = $3 WHERE entity_type = $1 AND id = $2`,
		typ.String(), entityID, raw,
	)
	if err != nil {
		return nil, fmt.Errorf("update %s: %w", typ, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("update %s %s: %w", typ, entityID, sentinel.ErrNotFound)
	}
	return doc.Clone(), nil
}

func (s *PostgresStore) Delete(ctx context.Context, typ id.EntityType, entityID string) error {
	res, err := s.execer(ctx).ExecContext(ctx,
		`DELETE FROM entities WHERE entity_type = $1 AND id = $2`,
		typ.String(), entityID,
	)
	if err != nil {
		return fmt.Errorf("delete %s: %w", typ, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("delete %s %s: %w", typ, entityID, sentinel.ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) ListByField(ctx context.Context, typ id.EntityType, field, value string) ([]Document, error) {
	rows, err := s.execer(ctx).QueryContext(ctx,
		`SELECT doc FROM entities WHERE entity_type = $1 AND doc->>$2 = $3 ORDER BY id`,
		typ.String(), field, value,
	)
	if err != nil {
		return nil, fmt.Errorf("list %s by %s: %w", typ, field, err)
	}
	defer rows.Close()

	var out []Document
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan %s: %w", typ, err)
		}
		var doc Document
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("unmarshal %s document: %w", typ, err)
		}
		out = append(out, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", typ, err)
	}
	return out, nil
}
