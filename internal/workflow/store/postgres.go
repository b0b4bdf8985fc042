package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"civica/internal/workflow/models"
	id "civica/pkg/domain"
	"civica/pkg/platform/sentinel"
	txcontext "civica/pkg/platform/tx"
)

// PostgresStore is the production RequestStore.
//
// Schema:
//
//	CREATE TABLE requests (
//	    id          UUID PRIMARY KEY,
//	    status      TEXT NOT NULL,
//	    entity_type TEXT NOT NULL,
//	    entity_id   TEXT,
//	    changes     JSONB NOT NULL DEFAULT '[]',
//	    tenant_id   UUID,
//	    created_by  UUID,
//	    created_at  TIMESTAMPTZ NOT NULL,
//	    updated_by  UUID,
//	    updated_at  TIMESTAMPTZ NOT NULL
//	);
//	CREATE TABLE request_history (
//	    id         UUID PRIMARY KEY,
//	    request_id UUID NOT NULL,
//	    type       TEXT NOT NULL,
//	    changes    JSONB NOT NULL DEFAULT '[]',
//	    comment    TEXT NOT NULL DEFAULT '',
//	    created_by UUID,
//	    created_at TIMESTAMPTZ NOT NULL
//	);
//	CREATE INDEX requests_visibility ON requests (created_by, tenant_id, status);
//	CREATE INDEX request_history_request ON request_history (request_id, created_at DESC);
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
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

func nullableUUID(u uuid.UUID) any {
	if u == uuid.Nil {
		return nil
	}
	return u
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func (s *PostgresStore) Create(ctx context.Context, req *models.Request) error {
	changes, err := json.Marshal(req.Changes)
	if err != nil {
		return fmt.Errorf("marshal changes: %w", err)
	}
	_, err = s.execer(ctx).ExecContext(ctx, `
		INSERT INTO requests (id, status, entity_type, entity_id, changes, tenant_id, created_by, created_at, updated_by, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		uuid.UUID(req.ID), req.Status.String(), req.EntityType.String(), nullableString(req.EntityID),
		changes, nullableUUID(uuid.UUID(req.TenantID)), nullableUUID(uuid.UUID(req.CreatedBy)),
		req.CreatedAt, nullableUUID(uuid.UUID(req.UpdatedBy)), req.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return fmt.Errorf("create request %s: %w", req.ID, sentinel.ErrConflict)
		}
		return fmt.Errorf("insert request: %w", err)
	}
	return nil
}

const requestColumns = `id, status, entity_type, entity_id, changes, tenant_id, created_by, created_at, updated_by, updated_at`

func (s *PostgresStore) Get(ctx context.Context, requestID id.RequestID) (*models.Request, error) {
	row := s.execer(ctx).QueryRowContext(ctx,
		`SELECT `+requestColumns+` FROM requests WHERE id = $1`, uuid.UUID(requestID))
	req, err := scanRequest(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get request %s: %w", requestID, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query request: %w", err)
	}
	return req, nil
}

func (s *PostgresStore) Update(ctx context.Context, req *models.Request) error {
	changes, err := json.Marshal(req.Changes)
	if err != nil {
		return fmt.Errorf("marshal changes: %w", err)
	}
	res, err := s.execer(ctx).ExecContext(ctx, `
		UPDATE requests
		SET status = $2, entity_id = $3, changes = $4, updated_by = $5, updated_at = $6
		WHERE id = $1
	`,
		uuid.UUID(req.ID), req.Status.String(), nullableString(req.EntityID),
		changes, nullableUUID(uuid.UUID(req.UpdatedBy)), req.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update request: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update request %s: %w", req.ID, sentinel.ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, requestID id.RequestID) error {
	res, err := s.execer(ctx).ExecContext(ctx,
		`DELETE FROM requests WHERE id = $1`, uuid.UUID(requestID))
	if err != nil {
		return fmt.Errorf("delete request: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("delete request %s: %w", requestID, sentinel.ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context, filter Filter) ([]*models.Request, error) {
	query := `SELECT ` + requestColumns + ` FROM requests WHERE 1=1`
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.VisibleTo != nil {
		if filter.VisibleTo.TenantID.IsNil() {
			query += ` AND created_by = ` + arg(uuid.UUID(filter.VisibleTo.UserID))
		} else {
			query += ` AND (created_by = ` + arg(uuid.UUID(filter.VisibleTo.UserID)) +
				` OR tenant_id = ` + arg(uuid.UUID(filter.VisibleTo.TenantID)) + `)`
		}
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, st := range filter.Statuses {
			statuses[i] = st.String()
		}
		query += ` AND status = ANY(` + arg(pq.Array(statuses)) + `)`
	}
	for _, st := range filter.ExcludeStatuses {
		query += ` AND status <> ` + arg(st.String())
	}
	if !filter.EntityType.IsNil() {
		query += ` AND entity_type = ` + arg(filter.EntityType.String())
	}
	query += ` ORDER BY updated_at DESC, id`

	rows, err := s.execer(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	defer rows.Close()

	var out []*models.Request
	for rows.Next() {
		req, err := scanRequest(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan request: %w", err)
		}
		out = append(out, req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate requests: %w", err)
	}
	return out, nil
}

func scanRequest(scan func(dest ...any) error) (*models.Request, error) {
	var (
		req       models.Request
		reqID     uuid.UUID
		status    string
		entType   string
		entityID  sql.NullString
		changes   []byte
		tenantID  *uuid.UUID
		createdBy *uuid.UUID
		updatedBy *uuid.UUID
	)
	err := scan(&reqID, &status, &entType, &entityID, &changes, &tenantID,
		&createdBy, &req.CreatedAt, &updatedBy, &req.UpdatedAt)
	if err != nil {
		return nil, err
	}
	req.ID = id.RequestID(reqID)
	req.Status = models.Status(status)
	req.EntityType = id.EntityType(entType)
	req.EntityID = entityID.String
	if err := json.Unmarshal(changes, &req.Changes); err != nil {
		return nil, fmt.Errorf("unmarshal changes: %w", err)
	}
	if tenantID != nil {
		req.TenantID = id.TenantID(*tenantID)
	}
	if createdBy != nil {
		req.CreatedBy = id.UserID(*createdBy)
	}
	if updatedBy != nil {
		req.UpdatedBy = id.UserID(*updatedBy)
	}
	return &req, nil
}

func (s *PostgresStore) AppendHistory(ctx context.Context, row *models.RequestHistory) error {
	changes, err := json.Marshal(row.Changes)
	if err != nil {
		return fmt.Errorf("marshal history changes: %w", err)
	}
	_, err = s.execer(ctx).ExecContext(ctx, `
		INSERT INTO request_history (id, request_id, type, changes, comment, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`,
		row.ID, uuid.UUID(row.RequestID), string(row.Type), changes, row.Comment,
		nullableUUID(uuid.UUID(row.CreatedBy)), row.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert history: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListHistory(ctx context.Context, requestID id.RequestID) ([]*models.RequestHistory, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, `
		SELECT id, request_id, type, changes, comment, created_by, created_at
		FROM request_history
		WHERE request_id = $1
		ORDER BY created_at DESC, id
	`, uuid.UUID(requestID))
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	var out []*models.RequestHistory
	for rows.Next() {
		var (
			row       models.RequestHistory
			reqID     uuid.UUID
			histType  string
			changes   []byte
			createdBy *uuid.UUID
		)
		if err := rows.Scan(&row.ID, &reqID, &histType, &changes, &row.Comment, &createdBy, &row.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		row.RequestID = id.RequestID(reqID)
		row.Type = models.HistoryType(histType)
		if err := json.Unmarshal(changes, &row.Changes); err != nil {
			return nil, fmt.Errorf("unmarshal history changes: %w", err)
		}
		if createdBy != nil {
			row.CreatedBy = id.UserID(*createdBy)
		}
		out = append(out, &row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return out, nil
}
