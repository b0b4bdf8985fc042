//go:build integration

package store_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"civica/internal/workflow/models"
	"civica/internal/workflow/store"
	id "civica/pkg/domain"
	"civica/pkg/platform/sentinel"
	"civica/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.PostgresStore
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.store = store.NewPostgres(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	ctx := context.Background()
	s.Require().NoError(s.postgres.TruncateTables(ctx, "requests", "request_history"))
}

func newStoredRequest(status models.Status) *models.Request {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &models.Request{
		ID:         id.NewRequestID(),
		Status:     status,
		EntityType: id.EntityTypeFacility,
		Changes: models.ChangeSet{
			{Op: "add", Path: "/name", Value: json.RawMessage(`"Corn Exchange"`)},
		},
		TenantID:  id.TenantID(uuid.New()),
		CreatedBy: id.UserID(uuid.New()),
		CreatedAt: now,
		UpdatedBy: id.UserID(uuid.New()),
		UpdatedAt: now,
	}
}

func (s *PostgresStoreSuite) TestRoundTrip() {
	ctx := context.Background()
	req := newStoredRequest(models.StatusDraft)
	s.Require().NoError(s.store.Create(ctx, req))

	found, err := s.store.Get(ctx, req.ID)
	s.Require().NoError(err)
	s.Equal(req.Status, found.Status)
	s.Equal(req.EntityType, found.EntityType)
	s.Equal(req.Changes, found.Changes)
	s.Equal(req.TenantID, found.TenantID)
	s.Equal(req.CreatedBy, found.CreatedBy)
	s.WithinDuration(req.CreatedAt, found.CreatedAt, time.Millisecond)
}

func (s *PostgresStoreSuite) TestTenantlessRequestRoundTripsNulls() {
	ctx := context.Background()
	req := newStoredRequest(models.StatusDraft)
	req.TenantID = id.TenantID{}
	req.EntityID = ""
	s.Require().NoError(s.store.Create(ctx, req))

	found, err := s.store.Get(ctx, req.ID)
	s.Require().NoError(err)
	s.True(found.TenantID.IsNil())
	s.Empty(found.EntityID)
}

func (s *PostgresStoreSuite) TestCreateConflictAndMissingRows() {
	ctx := context.Background()
	req := newStoredRequest(models.StatusDraft)
	s.Require().NoError(s.store.Create(ctx, req))
	s.ErrorIs(s.store.Create(ctx, req), sentinel.ErrConflict)

	missing := id.NewRequestID()
	_, err := s.store.Get(ctx, missing)
	s.ErrorIs(err, sentinel.ErrNotFound)
	s.ErrorIs(s.store.Delete(ctx, missing), sentinel.ErrNotFound)

	ghost := newStoredRequest(models.StatusDraft)
	s.ErrorIs(s.store.Update(ctx, ghost), sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestUpdatePersistsStatusAndEntityID() {
	ctx := context.Background()
	req := newStoredRequest(models.StatusCreated)
	s.Require().NoError(s.store.Create(ctx, req))

	req.Status = models.StatusApproved
	req.EntityID = uuid.NewString()
	req.UpdatedAt = req.UpdatedAt.Add(time.Minute)
	s.Require().NoError(s.store.Update(ctx, req))

	found, err := s.store.Get(ctx, req.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusApproved, found.Status)
	s.Equal(req.EntityID, found.EntityID)
}

func (s *PostgresStoreSuite) TestListFiltersAndOrder() {
	ctx := context.Background()
	creator := id.UserID(uuid.New())
	tenant := id.TenantID(uuid.New())

	mine := newStoredRequest(models.StatusDraft)
	mine.CreatedBy = creator
	mine.TenantID = id.TenantID{}
	mine.UpdatedAt = mine.UpdatedAt.Add(-time.Hour)

	tenantOwned := newStoredRequest(models.StatusSubmitted)
	tenantOwned.TenantID = tenant

	foreign := newStoredRequest(models.StatusCreated)
	foreign.EntityType = id.EntityTypeOrganization

	for _, req := range []*models.Request{mine, tenantOwned, foreign} {
		s.Require().NoError(s.store.Create(ctx, req))
	}

	out, err := s.store.List(ctx, store.Filter{
		VisibleTo: &store.Visibility{UserID: creator, TenantID: tenant},
	})
	s.Require().NoError(err)
	s.Require().Len(out, 2)
	s.Equal(tenantOwned.ID, out[0].ID, "most recently updated first")
	s.Equal(mine.ID, out[1].ID)

	out, err = s.store.List(ctx, store.Filter{
		Statuses: []models.Status{models.StatusSubmitted, models.StatusCreated},
	})
	s.Require().NoError(err)
	s.Len(out, 2)

	out, err = s.store.List(ctx, store.Filter{
		ExcludeStatuses: []models.Status{models.StatusDraft},
		EntityType:      id.EntityTypeOrganization,
	})
	s.Require().NoError(err)
	s.Require().Len(out, 1)
	s.Equal(foreign.ID, out[0].ID)
}

func (s *PostgresStoreSuite) TestHistoryOutlivesRequest() {
	ctx := context.Background()
	req := newStoredRequest(models.StatusCreated)
	s.Require().NoError(s.store.Create(ctx, req))

	base := time.Now().UTC().Truncate(time.Microsecond)
	for i, typ := range []models.HistoryType{models.HistoryCreated, models.HistoryDeleted} {
		s.Require().NoError(s.store.AppendHistory(ctx, &models.RequestHistory{
			ID:        uuid.New(),
			RequestID: req.ID,
			Type:      typ,
			Comment:   "row " + string(typ),
			CreatedBy: req.CreatedBy,
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}))
	}
	s.Require().NoError(s.store.Delete(ctx, req.ID))

	rows, err := s.store.ListHistory(ctx, req.ID)
	s.Require().NoError(err)
	s.Require().Len(rows, 2)
	s.Equal(models.HistoryDeleted, rows[0].Type)
	s.Equal(models.HistoryCreated, rows[1].Type)
	s.Equal(req.CreatedBy, rows[0].CreatedBy)
}
