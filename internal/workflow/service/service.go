// Package service orchestrates the change-request lifecycle: creation,
// editing, reviewer decisions, visibility-scoped reads, and the audit trail
// with its approval side effect. Handlers stay thin; all policy funnels
// through the permission evaluator and the status state machine in models.
package service

import (
	"context"
	"log/slog"
	"time"

	"civica/internal/entity"
	"civica/internal/workflow/metrics"
	"civica/internal/workflow/models"
	"civica/internal/workflow/store"
	id "civica/pkg/domain"
	dErrors "civica/pkg/domain-errors"
	"civica/pkg/requestcontext"
)

// View is one request as seen by one caller: the record plus the caller's
// derived permissions over it.
type View struct {
	Request     *models.Request    `json:"request"`
	Permissions models.Permissions `json:"permissions"`
}

// RequestService owns the request repository and the lifecycle rules around
// it. Entity semantics stay behind the registry; this service only decides
// who may do what, when, and records everything that happened.
type RequestService struct {
	store    store.RequestStore
	registry *entity.Registry
	recorder *Recorder
	tx       StoreTx
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

type Option func(s *RequestService)

func WithLogger(logger *slog.Logger) Option {
	return func(s *RequestService) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *RequestService) {
		s.metrics = m
	}
}

func WithTx(tx StoreTx) Option {
	return func(s *RequestService) {
		s.tx = tx
	}
}

// New constructs a RequestService.
func New(st store.RequestStore, registry *entity.Registry, recorder *Recorder, opts ...Option) *RequestService {
	s := &RequestService{store: st, registry: registry, recorder: recorder, tx: noopTx{}}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// CreateInput is the caller-settable part of a new request. EntityID empty
// means the request proposes creation of a new entity.
type CreateInput struct {
	EntityType id.EntityType
	EntityID   string
	Changes    models.ChangeSet
	Status     models.Status
}

// Create opens a new request. Requests are born DRAFT (private scratchpad,
// no history) or CREATED (straight into the reviewer queue). The owning
// tenant is snapshotted from the caller's active profile and never changes.
func (s *RequestService) Create(ctx context.Context, input CreateInput) (*View, error) {
	caller := requestcontext.Caller(ctx)

	status := input.Status
	if status == "" {
		status = models.StatusDraft
	}
	if status != models.StatusDraft && status != models.StatusCreated {
		return nil, dErrors.Newf(dErrors.CodePolicyViolation, "a request cannot be created as %s", status)
	}
	if _, ok := s.registry.Lookup(input.EntityType); !ok {
		return nil, dErrUnknownEntityType(input.EntityType)
	}
	if err := input.Changes.Validate(); err != nil {
		return nil, err
	}
	if input.EntityID != "" {
		if err := s.checkTarget(ctx, input.EntityType, input.EntityID); err != nil {
			return nil, err
		}
	}

	now := requestcontext.Now(ctx)
	req := &models.Request{
		ID:         id.NewRequestID(),
		Status:     status,
		EntityType: input.EntityType,
		EntityID:   input.EntityID,
		Changes:    input.Changes.Clone(),
		TenantID:   caller.TenantID,
		CreatedBy:  caller.UserID,
		CreatedAt:  now,
		UpdatedBy:  caller.UserID,
		UpdatedAt:  now,
	}

	if err := s.validateChanges(ctx, req); err != nil {
		return nil, err
	}

	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.store.Create(txCtx, req); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to create request")
		}
		return s.recorder.RecordCreation(txCtx, req)
	})
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.IncrementRequestsCreated()
	}
	return s.view(req, caller), nil
}

// UpdateInput carries a partial update. Nil fields stay untouched. The
// request's entity type, target entity, and owning tenant are immutable.
type UpdateInput struct {
	Changes *models.ChangeSet
	Status  *models.Status
	Comment *string
}

// Update edits a request's change set and/or moves its status. Edits need
// edit permission on an editable status; transitions go through the state
// machine, which also covers reviewer decisions arriving via PATCH.
func (s *RequestService) Update(ctx context.Context, requestID id.RequestID, input UpdateInput) (*View, error) {
	caller := requestcontext.Caller(ctx)
	req, err := s.load(ctx, requestID, caller)
	if err != nil {
		return nil, err
	}
	perms := models.EvaluatePermissions(req, caller)
	from := req.Status

	if input.Changes != nil {
		if !perms.Edit {
			return nil, dErrors.New(dErrors.CodePolicyViolation, "caller may not edit this request")
		}
		if err := input.Changes.Validate(); err != nil {
			return nil, err
		}
		req.Changes = input.Changes.Clone()
	}
	if input.Status != nil && *input.Status != from {
		if err := models.ValidateStatus(req, *input.Status, perms); err != nil {
			return nil, err
		}
		req.Status = *input.Status
	}

	if err := s.validateChanges(ctx, req); err != nil {
		return nil, err
	}

	req.UpdatedBy = caller.UserID
	req.UpdatedAt = requestcontext.Now(ctx)

	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.store.Update(txCtx, req); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update request")
		}
		return s.recorder.RecordTransition(txCtx, req, from, input.Comment)
	})
	if err != nil {
		return nil, err
	}
	if req.Status != from {
		if s.metrics != nil {
			s.metrics.IncrementTransition(req.Status.String())
		}
		if req.Status == models.StatusApproved {
			s.recorder.ApplyApproved(ctx, req, input.Comment)
		}
	}
	return s.view(req, caller), nil
}

// Decide records a reviewer decision: APPROVED, REJECTED, or RETURNED, with
// an optional comment for the requester. Approval triggers the entity write
// chain as the original requester.
func (s *RequestService) Decide(ctx context.Context, requestID id.RequestID, decision models.Status, comment *string) (*View, error) {
	switch decision {
	case models.StatusApproved, models.StatusRejected, models.StatusReturned:
	default:
		return nil, dErrors.Newf(dErrors.CodePolicyViolation, "%s is not a decision", decision)
	}
	return s.Update(ctx, requestID, UpdateInput{Status: &decision, Comment: comment})
}

// Get returns one request with the caller's derived permissions. Requests
// outside the caller's visibility read as not found.
func (s *RequestService) Get(ctx context.Context, requestID id.RequestID) (*View, error) {
	caller := requestcontext.Caller(ctx)
	req, err := s.load(ctx, requestID, caller)
	if err != nil {
		return nil, err
	}
	return s.view(req, caller), nil
}

// ListInput selects one listing. Tasks is the caller's work queue: decidable
// statuses for reviewers, the caller's own DRAFT and RETURNED requests for
// everyone else. Mine scopes to the caller's own and tenant requests.
type ListInput struct {
	Statuses   []models.Status
	EntityType id.EntityType
	Tasks      bool
	Mine       bool
}

// List returns requests visible to the caller, most recently updated first.
// Non-reviewers always get the Mine scoping; reviewers see everything except
// other people's drafts.
func (s *RequestService) List(ctx context.Context, input ListInput) ([]*View, error) {
	caller := requestcontext.Caller(ctx)
	start := time.Now()
	if s.metrics != nil {
		defer s.metrics.ObserveList(start)
	}

	filter := store.Filter{Statuses: input.Statuses, EntityType: input.EntityType}
	reviewer := caller.Role.CanReview()

	if input.Tasks {
		if reviewer || caller.IsSystem() {
			filter.Statuses = []models.Status{models.StatusCreated, models.StatusSubmitted}
		} else {
			// A submitter's queue is the work back in their court.
			filter.VisibleTo = &store.Visibility{UserID: caller.UserID, TenantID: caller.TenantID}
			filter.Statuses = []models.Status{models.StatusDraft, models.StatusReturned}
		}
	} else if input.Mine || (!reviewer && !caller.IsSystem()) {
		filter.VisibleTo = &store.Visibility{UserID: caller.UserID, TenantID: caller.TenantID}
	} else if reviewer {
		// Drafts are private to the submitter side.
		filter.ExcludeStatuses = []models.Status{models.StatusDraft}
	}

	reqs, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list requests")
	}
	views := make([]*View, 0, len(reqs))
	for _, req := range reqs {
		views = append(views, s.view(req, caller))
	}
	return views, nil
}

// Delete removes a request. Only the submitter side, and only while the
// request is editable; everything else keeps its trail and its place in the
// queue. The DELETED history row outlives the request.
func (s *RequestService) Delete(ctx context.Context, requestID id.RequestID) error {
	caller := requestcontext.Caller(ctx)
	req, err := s.load(ctx, requestID, caller)
	if err != nil {
		return err
	}
	perms := models.EvaluatePermissions(req, caller)
	if !perms.Edit {
		return dErrors.New(dErrors.CodePolicyViolation, "caller may not delete this request")
	}

	return s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.recorder.RecordDeletion(txCtx, req); err != nil {
			return err
		}
		if err := s.store.Delete(txCtx, requestID); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to delete request")
		}
		return nil
	})
}

// History returns the request's trail, newest first.
func (s *RequestService) History(ctx context.Context, requestID id.RequestID) ([]*models.RequestHistory, error) {
	caller := requestcontext.Caller(ctx)
	if _, err := s.load(ctx, requestID, caller); err != nil {
		return nil, err
	}
	rows, err := s.store.ListHistory(ctx, requestID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list history")
	}
	return rows, nil
}

// validateChanges runs the entity-side validation for statuses that demand a
// consistent change set. Drafts and bounced-back requests short-circuit: they
// are scratchpads and may hold anything syntactically well formed.
func (s *RequestService) validateChanges(ctx context.Context, req *models.Request) error {
	switch req.Status {
	case models.StatusDraft, models.StatusRejected, models.StatusReturned:
		return nil
	}

	svc, ok := s.registry.Lookup(req.EntityType)
	if !ok {
		return dErrUnknownEntityType(req.EntityType)
	}

	var old entity.Document
	if !req.TargetsCreation() {
		var err error
		old, err = svc.FetchSnapshot(ctx, req.EntityID)
		if err != nil {
			return err
		}
	}
	proposed, err := req.Changes.Materialize(old)
	if err != nil {
		return err
	}

	outcome, err := svc.ApplyOrValidate(ctx, entity.Call{
		Entity:   proposed,
		Old:      old,
		Apply:    false,
		ActingAs: requestcontext.Caller(ctx),
	})
	if err != nil {
		return err
	}
	if !outcome.Valid {
		return dErrors.New(dErrors.CodeValidationFailed, "change set failed validation").
			WithDetails(map[string]any{"fields": outcome.Errors})
	}
	return nil
}

// checkTarget confirms the target entity exists before a request is opened
// against it.
func (s *RequestService) checkTarget(ctx context.Context, typ id.EntityType, entityID string) error {
	svc, _ := s.registry.Lookup(typ)
	if _, err := svc.FetchSnapshot(ctx, entityID); err != nil {
		return dErrors.Wrap(err, dErrors.CodeNotFound, "target entity not found")
	}
	return nil
}

// load fetches a request and enforces visibility. Invisible requests read as
// not found so their existence never leaks.
func (s *RequestService) load(ctx context.Context, requestID id.RequestID, caller requestcontext.Identity) (*models.Request, error) {
	req, err := s.store.Get(ctx, requestID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeNotFound, "request not found")
	}
	if !visible(req, caller) {
		return nil, dErrors.New(dErrors.CodeNotFound, "request not found")
	}
	return req, nil
}

func visible(req *models.Request, caller requestcontext.Identity) bool {
	if caller.IsSystem() {
		return true
	}
	if req.CreatedBy == caller.UserID {
		return true
	}
	if !req.TenantID.IsNil() && req.TenantID == caller.TenantID {
		return true
	}
	if caller.Role.CanReview() && req.Status != models.StatusDraft {
		return true
	}
	return false
}

func (s *RequestService) view(req *models.Request, caller requestcontext.Identity) *View {
	return &View{Request: req, Permissions: models.EvaluatePermissions(req, caller)}
}

func dErrUnknownEntityType(typ id.EntityType) error {
	return dErrors.Newf(dErrors.CodeBadRequest, "unknown entity type %q", typ)
}
