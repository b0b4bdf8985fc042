package handler

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"civica/internal/entity"
	"civica/internal/entity/catalog"
	"civica/internal/platform/token"
	"civica/internal/workflow/service"
	"civica/internal/workflow/store"
	id "civica/pkg/domain"
	"civica/pkg/requestcontext"
	"civica/pkg/testutil"
)

const signingKey = "test-signing-key"

func newRouter(t *testing.T) (http.Handler, *token.Service) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	entityStore := entity.NewMemoryStore()
	registry, err := catalog.New(entityStore, logger)
	require.NoError(t, err)

	requestStore := store.NewMemoryStore()
	recorder := service.NewRecorder(requestStore, registry, nil, nil, logger)
	requests := service.New(requestStore, registry, recorder, service.WithLogger(logger))

	jwtService := token.NewService(signingKey, "civica-test", "civica-api")

	router := chi.NewRouter()
	New(requests, logger, jwtService).Register(router)
	return router, jwtService
}

func bearerFor(t *testing.T, jwtService *token.Service, identity requestcontext.Identity) string {
	t.Helper()
	raw, err := jwtService.GenerateAccessToken(identity.UserID, identity.TenantID, identity.Role, time.Hour)
	require.NoError(t, err)
	return "Bearer " + raw
}

func doJSON(t *testing.T, router http.Handler, method, target, bearer string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != nil {
		req = testutil.NewJSONRequest(t, method, target, body)
	} else {
		req = testutil.NewRequest(t, method, target)
	}
	if bearer != "" {
		req.Header.Set("Authorization", bearer)
	}
	return testutil.DoRequest(router, req)
}

type viewResponse struct {
	Request struct {
		ID      string `json:"id"`
		Status  string `json:"status"`
		Entity  string `json:"entity"`
		Changes []struct {
			Op   string `json:"op"`
			Path string `json:"path"`
		} `json:"changes"`
	} `json:"request"`
	Permissions struct {
		CanEdit     bool `json:"canEdit"`
		CanValidate bool `json:"canValidate"`
	} `json:"permissions"`
}

func TestAuthRequired(t *testing.T) {
	router, _ := newRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/requests", "", nil)
	testutil.AssertStatusAndError(t, rec, http.StatusUnauthorized, "unauthorized")

	rec = doJSON(t, router, http.MethodGet, "/requests", "Bearer not-a-token", nil)
	testutil.AssertStatusAndError(t, rec, http.StatusUnauthorized, "unauthorized")
}

func TestCreateAndDecideViaHandlers(t *testing.T) {
	router, jwtService := newRouter(t)

	requester := requestcontext.Identity{
		UserID:   id.UserID(uuid.New()),
		TenantID: id.TenantID(uuid.New()),
		Role:     id.RoleUser,
	}
	reviewer := requestcontext.Identity{
		UserID:   id.UserID(uuid.New()),
		TenantID: id.TenantID(uuid.New()),
		Role:     id.RoleReviewer,
	}
	requesterToken := bearerFor(t, jwtService, requester)
	reviewerToken := bearerFor(t, jwtService, reviewer)

	createBody := map[string]any{
		"entityType": "facility",
		"status":     "CREATED",
		"changes": []map[string]any{
			{"op": "add", "path": "/name", "value": "Harbor Hall"},
			{"op": "add", "path": "/address", "value": "2 Quay Street"},
		},
	}
	rec := doJSON(t, router, http.MethodPost, "/requests", requesterToken, createBody)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created viewResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&created))
	assert.Equal(t, "CREATED", created.Request.Status)
	assert.NotEmpty(t, created.Request.ID)

	// The requester no longer edits a queued request; the reviewer validates.
	rec = doJSON(t, router, http.MethodGet, "/requests/"+created.Request.ID, reviewerToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var seen viewResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&seen))
	assert.False(t, seen.Permissions.CanEdit)
	assert.True(t, seen.Permissions.CanValidate)

	decision := map[string]any{"decision": "APPROVED", "comment": "fine"}
	rec = doJSON(t, router, http.MethodPost, "/requests/"+created.Request.ID+"/decision", reviewerToken, decision)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var decided viewResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&decided))
	assert.Equal(t, "APPROVED", decided.Request.Status)
	assert.NotEmpty(t, decided.Request.Entity, "approval writes the new entity id back")

	// History newest first with the decision comment.
	rec = doJSON(t, router, http.MethodGet, "/requests/"+created.Request.ID+"/history", requesterToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var history struct {
		History []struct {
			Type    string `json:"type"`
			Comment string `json:"comment"`
		} `json:"history"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&history))
	require.Len(t, history.History, 2)
	assert.Equal(t, "APPROVED", history.History[0].Type)
	assert.Equal(t, "fine", history.History[0].Comment)
}

func TestCreateValidationFailureReturns422(t *testing.T) {
	router, jwtService := newRouter(t)
	requester := requestcontext.Identity{
		UserID:   id.UserID(uuid.New()),
		TenantID: id.TenantID(uuid.New()),
		Role:     id.RoleUser,
	}

	createBody := map[string]any{
		"entityType": "facility",
		"status":     "CREATED",
		"changes": []map[string]any{
			{"op": "add", "path": "/address", "value": "3 Hollow Way"},
		},
	}
	rec := doJSON(t, router, http.MethodPost, "/requests", bearerFor(t, jwtService, requester), createBody)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())

	var envelope struct {
		Error   string         `json:"error"`
		Details map[string]any `json:"details"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&envelope))
	assert.Equal(t, "validation_failed", envelope.Error)
	assert.Contains(t, envelope.Details, "fields")
}

func TestRequestPathValidation(t *testing.T) {
	router, jwtService := newRouter(t)
	caller := requestcontext.Identity{
		UserID:   id.UserID(uuid.New()),
		TenantID: id.TenantID(uuid.New()),
		Role:     id.RoleUser,
	}
	bearer := bearerFor(t, jwtService, caller)

	rec := doJSON(t, router, http.MethodGet, "/requests/not-a-uuid", bearer, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/requests/"+uuid.NewString(), bearer, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
