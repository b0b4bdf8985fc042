// Package handler exposes the change-request API over HTTP. Policy and
// orchestration live in the service; handlers only decode, delegate, and
// translate coded errors into the JSON envelope.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"civica/internal/platform/middleware"
	"civica/internal/workflow/models"
	"civica/internal/workflow/service"
	id "civica/pkg/domain"
	dErrors "civica/pkg/domain-errors"
	"civica/pkg/platform/httputil"
	strutil "civica/pkg/platform/strings"
)

// Service defines the request operations the handler needs.
type Service interface {
	Create(ctx context.Context, input service.CreateInput) (*service.View, error)
	Update(ctx context.Context, requestID id.RequestID, input service.UpdateInput) (*service.View, error)
	Decide(ctx context.Context, requestID id.RequestID, decision models.Status, comment *string) (*service.View, error)
	Get(ctx context.Context, requestID id.RequestID) (*service.View, error)
	List(ctx context.Context, input service.ListInput) ([]*service.View, error)
	Delete(ctx context.Context, requestID id.RequestID) error
	History(ctx context.Context, requestID id.RequestID) ([]*models.RequestHistory, error)
}

// Handler handles change-request endpoints.
type Handler struct {
	logger       *slog.Logger
	requests     Service
	jwtValidator middleware.JWTValidator
}

// New creates a new request Handler.
func New(requests Service, logger *slog.Logger, jwtValidator middleware.JWTValidator) *Handler {
	return &Handler{
		logger:       logger,
		requests:     requests,
		jwtValidator: jwtValidator,
	}
}

// Register registers the request routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	requestRouter := chi.NewRouter()
	requestRouter.Use(middleware.Recovery(h.logger))
	requestRouter.Use(middleware.RequestID)
	requestRouter.Use(middleware.RequestTime)
	requestRouter.Use(middleware.Logger(h.logger))
	requestRouter.Use(middleware.Timeout(30 * time.Second))
	requestRouter.Use(middleware.ContentTypeJSON)
	requestRouter.Use(middleware.RequireAuth(h.jwtValidator, h.logger))

	requestRouter.Post("/", h.handleCreate)
	requestRouter.Get("/", h.handleList)
	requestRouter.Get("/{id}", h.handleGet)
	requestRouter.Patch("/{id}", h.handleUpdate)
	requestRouter.Delete("/{id}", h.handleDelete)
	requestRouter.Post("/{id}/decision", h.handleDecide)
	requestRouter.Get("/{id}/history", h.handleHistory)

	r.Mount("/requests", requestRouter)
}

type createRequest struct {
	EntityType string           `json:"entityType"`
	EntityID   string           `json:"entity,omitempty"`
	Changes    models.ChangeSet `json:"changes"`
	Status     string           `json:"status,omitempty"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var body createRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	view, err := h.requests.Create(ctx, service.CreateInput{
		EntityType: id.EntityType(body.EntityType),
		EntityID:   body.EntityID,
		Changes:    body.Changes,
		Status:     models.Status(body.Status),
	})
	if err != nil {
		h.writeServiceError(ctx, w, "create request", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, view)
}

type updateRequest struct {
	Changes *models.ChangeSet `json:"changes,omitempty"`
	Status  *string           `json:"status,omitempty"`
	Comment *string           `json:"comment,omitempty"`
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID, err := pathRequestID(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	var body updateRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	input := service.UpdateInput{Changes: body.Changes, Comment: body.Comment}
	if body.Status != nil {
		status := models.Status(*body.Status)
		input.Status = &status
	}

	view, err := h.requests.Update(ctx, requestID, input)
	if err != nil {
		h.writeServiceError(ctx, w, "update request", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, view)
}

type decisionRequest struct {
	Decision string  `json:"decision"`
	Comment  *string `json:"comment,omitempty"`
}

func (h *Handler) handleDecide(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID, err := pathRequestID(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	var body decisionRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	view, err := h.requests.Decide(ctx, requestID, models.Status(body.Decision), body.Comment)
	if err != nil {
		h.writeServiceError(ctx, w, "decide request", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, view)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID, err := pathRequestID(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	view, err := h.requests.Get(ctx, requestID)
	if err != nil {
		h.writeServiceError(ctx, w, "get request", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, view)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	input := service.ListInput{
		EntityType: id.EntityType(q.Get("entityType")),
		Tasks:      q.Get("view") == "tasks",
		Mine:       q.Get("view") == "mine",
	}
	for _, raw := range strutil.DedupeAndTrim(q["status"]) {
		status := models.Status(raw)
		if !status.Valid() {
			httputil.WriteError(w, dErrors.Newf(dErrors.CodeBadRequest, "unknown status %q", raw))
			return
		}
		input.Statuses = append(input.Statuses, status)
	}

	views, err := h.requests.List(ctx, input)
	if err != nil {
		h.writeServiceError(ctx, w, "list requests", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"requests": views})
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID, err := pathRequestID(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	if err := h.requests.Delete(ctx, requestID); err != nil {
		h.writeServiceError(ctx, w, "delete request", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID, err := pathRequestID(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	rows, err := h.requests.History(ctx, requestID)
	if err != nil {
		h.writeServiceError(ctx, w, "list history", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"history": rows})
}

func pathRequestID(r *http.Request) (id.RequestID, error) {
	requestID, err := id.ParseRequestID(chi.URLParam(r, "id"))
	if err != nil {
		return id.RequestID{}, dErrors.New(dErrors.CodeBadRequest, "invalid request id")
	}
	return requestID, nil
}

func (h *Handler) writeServiceError(ctx context.Context, w http.ResponseWriter, op string, err error) {
	if dErrors.Is(err, dErrors.CodeInternal) {
		h.logger.ErrorContext(ctx, "request operation failed",
			"op", op,
			"error", err.Error(),
		)
	} else {
		h.logger.WarnContext(ctx, "request operation rejected",
			"op", op,
			"error", err.Error(),
		)
	}
	httputil.WriteError(w, err)
}
