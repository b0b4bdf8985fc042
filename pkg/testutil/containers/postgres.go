//go:build integration

package containers

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// schema holds the full DDL for the integration database. Kept in one place
// so every store suite runs against the same tables the server expects.
const schema = `
CREATE TABLE IF NOT EXISTS entities (
    entity_type TEXT  NOT NULL,
    id          UUID  NOT NULL,
    doc         JSONB NOT NULL,
    PRIMARY KEY (entity_type, id)
);
CREATE INDEX IF NOT EXISTS entities_doc_gin ON entities USING gin (doc);

CREATE TABLE IF NOT EXISTS requests (
    id          UUID PRIMARY KEY,
    status      TEXT NOT NULL,
    entity_type TEXT NOT NULL,
    entity_id   TEXT,
    changes     JSONB NOT NULL DEFAULT '[]',
    tenant_id   UUID,
    created_by  UUID,
    created_at  TIMESTAMPTZ NOT NULL,
    updated_by  UUID,
    updated_at  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS requests_visibility ON requests (created_by, tenant_id, status);

CREATE TABLE IF NOT EXISTS request_history (
    id         UUID PRIMARY KEY,
    request_id UUID NOT NULL,
    type       TEXT NOT NULL,
    changes    JSONB NOT NULL DEFAULT '[]',
    comment    TEXT NOT NULL DEFAULT '',
    created_by UUID,
    created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS request_history_request ON request_history (request_id, created_at DESC);
`

// PostgresContainer wraps a testcontainers Postgres instance with an open
// connection pool and the schema applied.
type PostgresContainer struct {
	Container testcontainers.Container
	DSN       string
	DB        *sql.DB
}

// NewPostgresContainer starts a new Postgres container and applies the schema.
func NewPostgresContainer(t *testing.T) *PostgresContainer {
	t.Helper()

	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("civica"),
		tcpostgres.WithUsername("civica"),
		tcpostgres.WithPassword("civica"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("failed to get postgres connection string: %v", err)
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("failed to open postgres connection: %v", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		_ = container.Terminate(ctx)
		t.Fatalf("failed to ping postgres: %v", err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		_ = container.Terminate(ctx)
		t.Fatalf("failed to apply schema: %v", err)
	}

	// Managed by the singleton Manager and shared across suites; Ryuk
	// handles cleanup, so no t.Cleanup here.

	return &PostgresContainer{
		Container: container,
		DSN:       dsn,
		DB:        db,
	}
}

// TruncateTables empties the given tables. Use between tests for isolation.
func (p *PostgresContainer) TruncateTables(ctx context.Context, tables ...string) error {
	if len(tables) == 0 {
		return nil
	}
	_, err := p.DB.ExecContext(ctx,
		fmt.Sprintf("TRUNCATE TABLE %s", strings.Join(tables, ", ")))
	return err
}
