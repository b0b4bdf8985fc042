package entity

// FieldError describes one field's validation failure: either a message about
// the field itself, or per-index child errors for a delegated array field.
type FieldError struct {
	Message string             `json:"message,omitempty"`
	Index   map[int]FieldErrors `json:"index,omitempty"`
}

// FieldErrors maps field names to their validation failures. The shape is
// uniform across all entity services so clients can render inline errors at
// any nesting depth.
type FieldErrors map[string]*FieldError

// Add records a message-level error for a field.
func (fe FieldErrors) Add(field, message string) {
	fe[field] = &FieldError{Message: message}
}

// AddIndex records a child's error map under a field at an array index.
func (fe FieldErrors) AddIndex(field string, index int, child FieldErrors) {
	entry := fe[field]
	if entry == nil {
		entry = &FieldError{Index: map[int]FieldErrors{}}
		fe[field] = entry
	}
	if entry.Index == nil {
		entry.Index = map[int]FieldErrors{}
	}
	entry.Index[index] = child
}

// Empty reports whether no errors were collected.
func (fe FieldErrors) Empty() bool { return len(fe) == 0 }

// ParentRef stands in for the parent's identifier while linking by-relation
// children. During the validate pass no real id exists yet, so the reference
// is pending; during the apply pass it resolves to the persisted id. The
// tagged form avoids a magic placeholder value colliding with a real id.
type ParentRef struct {
	id       string
	resolved bool
}

// PendingRef is the validate-pass stand-in for a not-yet-generated id.
func PendingRef() ParentRef { return ParentRef{} }

// ResolvedRef wraps a persisted parent id.
func ResolvedRef(id string) ParentRef { return ParentRef{id: id, resolved: true} }

// Resolved returns the real id and true, or ("", false) while pending.
func (r ParentRef) Resolved() (string, bool) { return r.id, r.resolved }

// Outcome is the uniform result of an apply-or-validate call.
//
// Validate pass: Valid reports whether the candidate passed; Errors carries
// the per-field, per-index failures otherwise.
//
// Apply pass: Entity is the persisted parent (nil when local persistence
// failed and the call degraded to best effort), or Removed acknowledges a
// removal call.
type Outcome struct {
	Valid   bool
	Errors  FieldErrors
	Entity  Document
	Removed bool
}

func validOutcome() Outcome            { return Outcome{Valid: true} }
func invalidOutcome(fe FieldErrors) Outcome { return Outcome{Valid: false, Errors: fe} }
