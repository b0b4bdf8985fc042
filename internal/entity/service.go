package entity

import (
	"context"
	"errors"
	"log/slog"

	id "civica/pkg/domain"
	dErrors "civica/pkg/domain-errors"
	"civica/pkg/platform/sentinel"
	"civica/pkg/requestcontext"
)

// Call is one apply-or-validate invocation. Entity is the candidate document
// (nil for a removal), Old the previous canonical snapshot (nil for a
// creation). ActingAs is the identity audit fields attribute to; when a
// reviewer approves a request the call chain runs as the original requester,
// never as ambient state. Comment is the top-level reviewer comment threaded
// explicitly through the chain.
type Call struct {
	Entity   Document
	Old      Document
	Apply    bool
	ActingAs requestcontext.Identity
	Comment  *string

	// Relation carries the parent linkage for by-relation children: the
	// child-side field to set and the parent reference (pending during the
	// validate pass, resolved to the persisted id during apply).
	Relation *RelationBinding
}

// RelationBinding links a by-relation child back to its parent.
type RelationBinding struct {
	Field  string
	Parent ParentRef
}

// Service is one entity type's service: it owns local persistence and
// validation, and recurses into other services for delegated fields. The
// three-stage algorithm is identical for every entity type; only the schema
// table differs.
type Service struct {
	schema   Schema
	store    Store
	registry *Registry
	logger   *slog.Logger
}

func NewService(schema Schema, store Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{schema: schema, store: store, logger: logger}
}

// Type returns the entity type this service owns.
func (s *Service) Type() id.EntityType { return s.schema.Type }

// Schema exposes the field descriptor table consumed by the generic
// orchestration, mirroring the static metadata contract.
func (s *Service) Schema() Schema { return s.schema }

// FetchSnapshot returns the canonical persisted representation with delegated
// fields hydrated recursively: by-value ids resolve to child documents,
// by-relation children are looked up through their foreign key, and virtual
// fields are computed. The snapshot is the "old" side of every diff.
func (s *Service) FetchSnapshot(ctx context.Context, entityID string) (Document, error) {
	doc, err := s.store.Get(ctx, s.schema.Type, entityID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Newf(dErrors.CodeNotFound, "%s %s not found", s.schema.Type, entityID)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "fetch snapshot")
	}
	return s.hydrate(ctx, doc)
}

func (s *Service) hydrate(ctx context.Context, doc Document) (Document, error) {
	for _, f := range s.schema.Fields {
		switch f.Kind {
		case FieldDelegatedByValue:
			children, err := s.hydrateByValue(ctx, f, doc[f.Name])
			if err != nil {
				return nil, err
			}
			setChildren(doc, f, children)
		case FieldDelegatedByRelation:
			children, err := s.hydrateByRelation(ctx, f, doc.ID())
			if err != nil {
				return nil, err
			}
			setChildren(doc, f, children)
		case FieldVirtual:
			doc[f.Name] = f.Compute(doc)
		}
	}
	return doc, nil
}

func (s *Service) hydrateByValue(ctx context.Context, f FieldDescriptor, stored any) ([]Document, error) {
	child, ok := s.registry.Lookup(f.Child)
	if !ok {
		return nil, dErrors.Newf(dErrors.CodeInternal, "no service registered for entity type %s", f.Child)
	}
	var children []Document
	for _, ref := range storedIDs(stored) {
		snapshot, err := child.FetchSnapshot(ctx, ref)
		if err != nil {
			if dErrors.HasCode(err, dErrors.CodeNotFound) {
				// Dangling reference: the child row is gone. Surface the rest
				// of the snapshot rather than failing the whole fetch.
				s.logger.WarnContext(ctx, "dangling child reference",
					"entity_type", s.schema.Type.String(),
					"field", f.Name,
					"child_id", ref,
				)
				continue
			}
			return nil, err
		}
		children = append(children, snapshot)
	}
	return children, nil
}

func (s *Service) hydrateByRelation(ctx context.Context, f FieldDescriptor, parentID string) ([]Document, error) {
	child, ok := s.registry.Lookup(f.Child)
	if !ok {
		return nil, dErrors.Newf(dErrors.CodeInternal, "no service registered for entity type %s", f.Child)
	}
	if parentID == "" {
		return nil, nil
	}
	rows, err := child.store.ListByField(ctx, child.schema.Type, f.RelationField, parentID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "resolve related children")
	}
	children := make([]Document, 0, len(rows))
	for _, row := range rows {
		hydrated, err := child.hydrate(ctx, row)
		if err != nil {
			return nil, err
		}
		children = append(children, hydrated)
	}
	return children, nil
}

// ApplyOrValidate runs the three-stage algorithm over the field table.
//
// Stage A persists (or validates) by-value children so their ids exist before
// the parent row is written. Stage B builds the parent's own update payload
// from changed local fields and persists or validates it. Stage C links
// by-relation children, which need the parent's id first. Removals of children
// present in the old snapshot but absent from the candidate are issued at the
// end of the stage that owns the field. This ordering is load-bearing:
// reordering writes a required foreign key as null or updates a row that does
// not exist yet.
//
// The validate pass performs no writes and accumulates the per-field,
// per-index error map. The apply pass is best effort: a failed child write is
// logged and the remaining siblings and the parent proceed; nothing persisted
// earlier is rolled back.
func (s *Service) ApplyOrValidate(ctx context.Context, call Call) (Outcome, error) {
	removing := call.Entity == nil
	if removing && call.Old == nil {
		return Outcome{}, dErrors.New(dErrors.CodeBadRequest, "apply-or-validate call needs an entity or a previous snapshot")
	}

	candidate := call.Entity.Clone()
	fieldErrs := FieldErrors{}

	// Stage A: children that must exist before the parent.
	for _, f := range s.schema.Fields {
		if f.Kind != FieldDelegatedByValue {
			continue
		}
		newArr := toArray(valueOf(candidate, f.Name))
		oldArr := toArray(valueOf(call.Old, f.Name))
		ids, err := s.fanOut(ctx, call, f, newArr, oldArr, nil, fieldErrs)
		if err != nil {
			return Outcome{}, err
		}
		if call.Apply && candidate != nil {
			setPersistedIDs(candidate, f, ids)
		}
	}

	// Stage B: the parent's own row.
	persisted, err := s.persistLocal(ctx, call, candidate, fieldErrs)
	if err != nil {
		return Outcome{}, err
	}

	// Stage C: children that need the parent's id first.
	ref, runStageC := s.stageCRef(call, persisted, removing)
	if runStageC {
		for _, f := range s.schema.Fields {
			if f.Kind != FieldDelegatedByRelation {
				continue
			}
			newArr := toArray(valueOf(candidate, f.Name))
			oldArr := toArray(valueOf(call.Old, f.Name))
			binding := &RelationBinding{Field: f.RelationField, Parent: ref}
			if _, err := s.fanOut(ctx, call, f, newArr, oldArr, binding, fieldErrs); err != nil {
				return Outcome{}, err
			}
		}
	}

	if !call.Apply {
		if fieldErrs.Empty() {
			return validOutcome(), nil
		}
		return invalidOutcome(fieldErrs), nil
	}
	if removing {
		return Outcome{Removed: true}, nil
	}
	return Outcome{Entity: persisted}, nil
}

// stageCRef decides whether Stage C runs and under which parent reference.
// Validate mode always simulates with a pending reference. Apply mode needs a
// real id: the persisted parent's, or the old id when cascading a removal.
// When the parent write degraded to best effort there is no id to link
// against, so Stage C is skipped entirely.
func (s *Service) stageCRef(call Call, persisted Document, removing bool) (ParentRef, bool) {
	if !call.Apply {
		if call.Old.ID() != "" {
			return ResolvedRef(call.Old.ID()), true
		}
		return PendingRef(), true
	}
	if removing {
		return ResolvedRef(call.Old.ID()), true
	}
	if persisted == nil {
		return ParentRef{}, false
	}
	return ResolvedRef(persisted.ID()), true
}

// fanOut processes one delegated field: it recurses into the child service
// for every candidate element (update when matched by id against the old
// array, creation otherwise), then issues a removal for every old child
// absent from the candidate. Returns the persisted child ids in apply mode.
func (s *Service) fanOut(ctx context.Context, call Call, f FieldDescriptor, newArr, oldArr []Document, binding *RelationBinding, fieldErrs FieldErrors) ([]string, error) {
	child, ok := s.registry.Lookup(f.Child)
	if !ok {
		return nil, dErrors.Newf(dErrors.CodeInternal, "no service registered for entity type %s", f.Child)
	}

	var ids []string
	for i, el := range newArr {
		childCall := Call{
			Entity:   el,
			Old:      findByID(oldArr, el.ID()),
			Apply:    call.Apply,
			ActingAs: call.ActingAs,
			Comment:  call.Comment,
			Relation: binding,
		}
		out, err := child.ApplyOrValidate(ctx, childCall)
		if err != nil {
			if call.Apply {
				s.applyFailed(ctx, f, err)
				continue
			}
			return nil, err
		}
		if call.Apply {
			if out.Entity != nil {
				ids = append(ids, out.Entity.ID())
			}
			continue
		}
		if !out.Valid {
			fieldErrs.AddIndex(f.Name, i, out.Errors)
		}
	}

	for _, old := range oldArr {
		if findByID(newArr, old.ID()) != nil {
			continue
		}
		removeCall := Call{
			Old:      old,
			Apply:    call.Apply,
			ActingAs: call.ActingAs,
			Comment:  call.Comment,
		}
		if _, err := child.ApplyOrValidate(ctx, removeCall); err != nil {
			if call.Apply {
				s.applyFailed(ctx, f, err)
				continue
			}
			return nil, err
		}
	}
	return ids, nil
}

// applyFailed records a swallowed apply-time child failure. Best-effort
// semantics: earlier siblings and the parent are not rolled back.
func (s *Service) applyFailed(ctx context.Context, f FieldDescriptor, err error) {
	s.logger.ErrorContext(ctx, "child apply failed, continuing best effort",
		"entity_type", s.schema.Type.String(),
		"field", f.Name,
		"child_type", f.Child.String(),
		"error", err.Error(),
	)
}

// persistLocal is Stage B. In validate mode it runs required-field checks (for
// creations) and field-level validators over the changed values, collecting
// errors. In apply mode it performs the actual create, update, or delete;
// failures are logged and degrade to a nil persisted entity rather than
// aborting the call.
func (s *Service) persistLocal(ctx context.Context, call Call, candidate Document, fieldErrs FieldErrors) (Document, error) {
	typ := s.schema.Type

	if candidate == nil {
		// Removal. The validate pass has nothing to check locally; the apply
		// pass deletes the row.
		if !call.Apply {
			return nil, nil
		}
		if err := s.store.Delete(ctx, typ, call.Old.ID()); err != nil {
			s.logger.ErrorContext(ctx, "entity delete failed, continuing best effort",
				"entity_type", typ.String(),
				"entity_id", call.Old.ID(),
				"error", err.Error(),
			)
		}
		return nil, nil
	}

	// Resolve the relation binding before diffing so the foreign key lands in
	// the update payload.
	var pendingRelation string
	if call.Relation != nil {
		if parentID, resolved := call.Relation.Parent.Resolved(); resolved {
			candidate[call.Relation.Field] = parentID
		} else {
			pendingRelation = call.Relation.Field
		}
	}

	creating := call.Old.ID() == ""
	payload := s.buildPayload(call, candidate)

	if !call.Apply {
		if creating {
			for _, f := range s.schema.Fields {
				if f.Kind != FieldLocal || !f.Required || f.Name == pendingRelation {
					continue
				}
				if isEmpty(candidate[f.Name]) {
					fieldErrs.Add(f.Name, "is required")
				}
			}
		}
		for name, value := range payload {
			f, ok := s.schema.Field(name)
			if !ok || f.Validate == nil || value == nil {
				continue
			}
			if err := f.Validate(value); err != nil {
				fieldErrs.Add(name, err.Error())
			}
		}
		return nil, nil
	}

	now := requestcontext.Now(ctx)
	actor := actorOf(call.ActingAs)

	if creating {
		doc := s.localDocument(candidate)
		if doc.ID() == "" {
			doc[FieldID] = id.NewEntityID().String()
		}
		doc[FieldCreatedBy] = actor
		doc[FieldCreatedAt] = now.UTC().Format(timeLayout)
		doc[FieldUpdatedBy] = actor
		doc[FieldUpdatedAt] = now.UTC().Format(timeLayout)
		persisted, err := s.store.Create(ctx, typ, doc)
		if err != nil {
			s.logger.ErrorContext(ctx, "entity create failed, continuing best effort",
				"entity_type", typ.String(),
				"error", err.Error(),
			)
			return nil, nil
		}
		return persisted, nil
	}

	stored, err := s.store.Get(ctx, typ, call.Old.ID())
	if err != nil {
		s.logger.ErrorContext(ctx, "entity update failed, continuing best effort",
			"entity_type", typ.String(),
			"entity_id", call.Old.ID(),
			"error", err.Error(),
		)
		return nil, nil
	}
	for name, value := range payload {
		if value == nil {
			delete(stored, name)
			continue
		}
		stored[name] = value
	}
	stored[FieldUpdatedBy] = actor
	stored[FieldUpdatedAt] = now.UTC().Format(timeLayout)
	persisted, err := s.store.Update(ctx, typ, call.Old.ID(), stored)
	if err != nil {
		s.logger.ErrorContext(ctx, "entity update failed, continuing best effort",
			"entity_type", typ.String(),
			"entity_id", call.Old.ID(),
			"error", err.Error(),
		)
		return nil, nil
	}
	return persisted, nil
}

// buildPayload collects the fields whose candidate value differs from the old
// snapshot. Virtual, ignored, and by-relation fields never enter the payload.
// By-value fields participate only in apply mode, where Stage A has already
// replaced child documents with persisted ids; during validation the children
// are checked through recursion instead.
func (s *Service) buildPayload(call Call, candidate Document) Document {
	payload := Document{}
	for _, f := range s.schema.Fields {
		switch f.Kind {
		case FieldVirtual, FieldIgnored, FieldDelegatedByRelation:
			continue
		case FieldDelegatedByValue:
			if !call.Apply {
				continue
			}
			newV := valueOf(candidate, f.Name)
			oldV := idsValue(f, valueOf(call.Old, f.Name))
			if !equalJSON(newV, oldV) {
				payload[f.Name] = newV
			}
		case FieldLocal:
			newV, present := candidate[f.Name]
			oldV := valueOf(call.Old, f.Name)
			switch {
			case present && !equalJSON(newV, oldV):
				payload[f.Name] = newV
			case !present && oldV != nil:
				// Key removed by the change set: explicit nil clears it.
				payload[f.Name] = nil
			}
		}
	}
	return payload
}

// localDocument extracts the persistable subset of a candidate: id, local
// fields, and by-value id references. Everything else (virtual, ignored,
// by-relation children, unknown keys) stays out of the row.
func (s *Service) localDocument(candidate Document) Document {
	doc := Document{}
	if candidate.ID() != "" {
		doc[FieldID] = candidate.ID()
	}
	for _, f := range s.schema.Fields {
		switch f.Kind {
		case FieldLocal, FieldDelegatedByValue:
			if v, ok := candidate[f.Name]; ok {
				doc[f.Name] = v
			}
		}
	}
	return doc
}

const timeLayout = "2006-01-02T15:04:05.999999999Z07:00" // RFC3339Nano

func actorOf(identity requestcontext.Identity) string {
	if identity.IsSystem() {
		return "system"
	}
	return identity.UserID.String()
}

func valueOf(doc Document, field string) any {
	if doc == nil {
		return nil
	}
	return doc[field]
}

func isEmpty(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return val == ""
	default:
		return false
	}
}

// storedIDs normalizes a stored by-value field (id scalar or array) to ids.
func storedIDs(v any) []string {
	switch val := v.(type) {
	case nil:
		return nil
	case string:
		if val == "" {
			return nil
		}
		return []string{val}
	case []any:
		out := make([]string, 0, len(val))
		for _, el := range val {
			if s, ok := el.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// idsValue renders an old hydrated by-value field back into its stored id
// shape so payload diffs compare like with like.
func idsValue(f FieldDescriptor, old any) any {
	docs := toArray(old)
	ids := make([]any, 0, len(docs))
	for _, doc := range docs {
		if doc.ID() != "" {
			ids = append(ids, doc.ID())
		}
	}
	if f.Array {
		if len(ids) == 0 {
			return nil
		}
		return ids
	}
	if len(ids) == 0 {
		return nil
	}
	return ids[0]
}

// setChildren writes hydrated children onto a snapshot respecting arity.
func setChildren(doc Document, f FieldDescriptor, children []Document) {
	if f.Array {
		arr := make([]any, len(children))
		for i, c := range children {
			arr[i] = map[string]any(c)
		}
		doc[f.Name] = arr
		return
	}
	if len(children) > 0 {
		doc[f.Name] = map[string]any(children[0])
	} else {
		delete(doc, f.Name)
	}
}

// setPersistedIDs replaces a by-value field's child documents with the ids
// Stage A persisted, respecting arity.
func setPersistedIDs(candidate Document, f FieldDescriptor, ids []string) {
	if f.Array {
		arr := make([]any, len(ids))
		for i, v := range ids {
			arr[i] = v
		}
		candidate[f.Name] = arr
		return
	}
	if len(ids) > 0 {
		candidate[f.Name] = ids[0]
	} else {
		delete(candidate, f.Name)
	}
}
