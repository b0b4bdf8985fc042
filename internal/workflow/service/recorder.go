package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"civica/internal/audit"
	"civica/internal/entity"
	"civica/internal/workflow/metrics"
	"civica/internal/workflow/models"
	"civica/internal/workflow/store"
	"civica/pkg/requestcontext"
)

// AuditEmitter pushes one event onto the audit trail without blocking.
type AuditEmitter interface {
	Emit(ctx context.Context, event audit.Event)
}

// Recorder owns the request audit trail: one history row per lifecycle event,
// one audit event per action, and the approval side effect. On APPROVED it
// materializes the stored change set against a fresh snapshot and runs the
// entity orchestration in apply mode as the original requester, so the audit
// fields on every touched entity attribute to the person whose changes they
// are, not to the reviewer.
type Recorder struct {
	store    store.RequestStore
	registry *entity.Registry
	emitter  AuditEmitter
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

func NewRecorder(st store.RequestStore, registry *entity.Registry, emitter AuditEmitter, m *metrics.Metrics, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{store: st, registry: registry, emitter: emitter, metrics: m, logger: logger}
}

// RecordCreation writes the birth record. Requests born as DRAFT leave no
// history row; the trail starts when they enter the queue.
func (r *Recorder) RecordCreation(ctx context.Context, req *models.Request) error {
	if err := r.appendHistory(ctx, req, nil); err != nil {
		return err
	}
	r.emit(ctx, req, audit.ActionRequestCreated, "")
	return nil
}

// RecordTransition writes the history row and audit event for a status
// change. The comment is the reviewer's, threaded onto the history row.
// Approvals additionally go through ApplyApproved once the transition has
// committed.
func (r *Recorder) RecordTransition(ctx context.Context, req *models.Request, from models.Status, comment *string) error {
	if req.Status == from {
		return nil
	}
	if err := r.appendHistory(ctx, req, comment); err != nil {
		return err
	}
	r.emit(ctx, req, actionForStatus(req.Status), commentOf(comment))
	return nil
}

// RecordDeletion closes the trail. The history row outlives the request row.
func (r *Recorder) RecordDeletion(ctx context.Context, req *models.Request) error {
	caller := requestcontext.Caller(ctx)
	row := &models.RequestHistory{
		ID:        uuid.New(),
		RequestID: req.ID,
		Type:      models.HistoryDeleted,
		Changes:   req.Changes.Clone(),
		CreatedBy: caller.UserID,
		CreatedAt: requestcontext.Now(ctx),
	}
	if err := r.store.AppendHistory(ctx, row); err != nil {
		return err
	}
	r.emit(ctx, req, audit.ActionRequestDeleted, "")
	return nil
}

func (r *Recorder) appendHistory(ctx context.Context, req *models.Request, comment *string) error {
	histType, ok := models.HistoryTypeForStatus(req.Status)
	if !ok {
		return nil
	}
	caller := requestcontext.Caller(ctx)
	row := &models.RequestHistory{
		ID:        uuid.New(),
		RequestID: req.ID,
		Type:      histType,
		Changes:   req.Changes.Clone(),
		Comment:   commentOf(comment),
		CreatedBy: caller.UserID,
		CreatedAt: requestcontext.Now(ctx),
	}
	return r.store.AppendHistory(ctx, row)
}

// ApplyApproved performs the approval side effect: fresh snapshot,
// materialize, apply-mode orchestration as the requester, entity id
// write-back for creations. Callers invoke it after the status transition has
// committed; it runs outside any request transaction so a failed entity write
// can never roll the approval back. Failures are logged, counted, and audited
// so operators can replay the change set.
func (r *Recorder) ApplyApproved(ctx context.Context, req *models.Request, comment *string) {
	start := time.Now()
	if r.metrics != nil {
		defer r.metrics.ObserveApply(start)
	}

	entityID, err := r.applyChanges(ctx, req, comment)
	if err != nil {
		r.logger.Error("approved change application failed",
			"request_id", req.ID.String(),
			"entity_type", req.EntityType.String(),
			"error", err)
		if r.metrics != nil {
			r.metrics.IncrementApplyFailures()
		}
		r.emit(ctx, req, audit.ActionApplyFailed, err.Error())
		return
	}

	if req.TargetsCreation() && entityID != "" {
		req.EntityID = entityID
		if err := r.store.Update(ctx, req); err != nil {
			r.logger.Error("entity id write-back failed",
				"request_id", req.ID.String(),
				"entity_id", entityID,
				"error", err)
		}
	}
}

func (r *Recorder) applyChanges(ctx context.Context, req *models.Request, comment *string) (string, error) {
	svc, ok := r.registry.Lookup(req.EntityType)
	if !ok {
		return "", dErrUnknownEntityType(req.EntityType)
	}

	var old entity.Document
	if !req.TargetsCreation() {
		var err error
		old, err = svc.FetchSnapshot(ctx, req.EntityID)
		if err != nil {
			return "", err
		}
	}
	proposed, err := req.Changes.Materialize(old)
	if err != nil {
		return "", err
	}

	// The chain runs as the original requester, never the approving
	// reviewer, so entity audit fields name whose changes these are.
	actingAs := requestcontext.Identity{
		UserID:   req.CreatedBy,
		TenantID: req.TenantID,
	}
	outcome, err := svc.ApplyOrValidate(ctx, entity.Call{
		Entity:   proposed,
		Old:      old,
		Apply:    true,
		ActingAs: actingAs,
		Comment:  comment,
	})
	if err != nil {
		return "", err
	}
	if outcome.Entity != nil {
		return outcome.Entity.ID(), nil
	}
	return "", nil
}

func (r *Recorder) emit(ctx context.Context, req *models.Request, action audit.Action, reason string) {
	if r.emitter == nil {
		return
	}
	caller := requestcontext.Caller(ctx)
	event := audit.Event{
		Action:     action,
		RequestID:  req.ID,
		EntityType: req.EntityType,
		EntityID:   req.EntityID,
		TenantID:   req.TenantID,
		ActorID:    caller.UserID,
		Reason:     reason,
	}
	if caller.UserID != req.CreatedBy {
		event.OnBehalfOf = req.CreatedBy
	}
	r.emitter.Emit(ctx, event)
}

func actionForStatus(s models.Status) audit.Action {
	switch s {
	case models.StatusCreated, models.StatusSubmitted:
		return audit.ActionRequestSubmitted
	case models.StatusApproved:
		return audit.ActionRequestApproved
	case models.StatusRejected:
		return audit.ActionRequestRejected
	case models.StatusReturned:
		return audit.ActionRequestReturned
	}
	return audit.ActionRequestCreated
}

func commentOf(comment *string) string {
	if comment == nil {
		return ""
	}
	return *comment
}
