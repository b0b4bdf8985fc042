//go:build integration

package entity_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"civica/internal/entity"
	id "civica/pkg/domain"
	"civica/pkg/platform/sentinel"
	"civica/pkg/testutil/containers"
)

type EntityPostgresSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *entity.PostgresStore
}

func TestEntityPostgresSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(EntityPostgresSuite))
}

func (s *EntityPostgresSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.store = entity.NewPostgresStore(s.postgres.DB)
}

func (s *EntityPostgresSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "entities"))
}

func (s *EntityPostgresSuite) TestDocumentRoundTrip() {
	ctx := context.Background()
	doc := entity.Document{
		"id":      uuid.NewString(),
		"name":    "Guildhall",
		"address": "1 Market Square",
	}

	created, err := s.store.Create(ctx, id.EntityTypeFacility, doc)
	s.Require().NoError(err)
	s.Equal(doc.ID(), created.ID())

	found, err := s.store.Get(ctx, id.EntityTypeFacility, doc.ID())
	s.Require().NoError(err)
	s.Equal("Guildhall", found["name"])

	// Same id under a different type is a distinct row.
	_, err = s.store.Get(ctx, id.EntityTypeSubspace, doc.ID())
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *EntityPostgresSuite) TestCreateRequiresIDAndRejectsDuplicates() {
	ctx := context.Background()
	_, err := s.store.Create(ctx, id.EntityTypeFacility, entity.Document{"name": "No ID"})
	s.ErrorIs(err, sentinel.ErrInvalidState)

	doc := entity.Document{"id": uuid.NewString(), "name": "Once"}
	_, err = s.store.Create(ctx, id.EntityTypeFacility, doc)
	s.Require().NoError(err)
	_, err = s.store.Create(ctx, id.EntityTypeFacility, doc)
	s.ErrorIs(err, sentinel.ErrConflict)
}

func (s *EntityPostgresSuite) TestUpdateAndDelete() {
	ctx := context.Background()
	doc := entity.Document{"id": uuid.NewString(), "name": "Before"}
	_, err := s.store.Create(ctx, id.EntityTypeFacility, doc)
	s.Require().NoError(err)

	doc["name"] = "After"
	_, err = s.store.Update(ctx, id.EntityTypeFacility, doc.ID(), doc)
	s.Require().NoError(err)
	found, err := s.store.Get(ctx, id.EntityTypeFacility, doc.ID())
	s.Require().NoError(err)
	s.Equal("After", found["name"])

	s.Require().NoError(s.store.Delete(ctx, id.EntityTypeFacility, doc.ID()))
	_, err = s.store.Get(ctx, id.EntityTypeFacility, doc.ID())
	s.ErrorIs(err, sentinel.ErrNotFound)

	_, err = s.store.Update(ctx, id.EntityTypeFacility, doc.ID(), doc)
	s.ErrorIs(err, sentinel.ErrNotFound)
	s.ErrorIs(s.store.Delete(ctx, id.EntityTypeFacility, doc.ID()), sentinel.ErrNotFound)
}

func (s *EntityPostgresSuite) TestListByFieldMatchesJSONField() {
	ctx := context.Background()
	facilityID := uuid.NewString()
	for i := 0; i < 2; i++ {
		_, err := s.store.Create(ctx, id.EntityTypeInvestment, entity.Document{
			"id":       uuid.NewString(),
			"title":    "Roof works",
			"facility": facilityID,
		})
		s.Require().NoError(err)
	}
	_, err := s.store.Create(ctx, id.EntityTypeInvestment, entity.Document{
		"id":       uuid.NewString(),
		"title":    "Elsewhere",
		"facility": uuid.NewString(),
	})
	s.Require().NoError(err)

	docs, err := s.store.ListByField(ctx, id.EntityTypeInvestment, "facility", facilityID)
	s.Require().NoError(err)
	s.Len(docs, 2)
	for _, doc := range docs {
		s.Equal(facilityID, doc["facility"])
	}
}
