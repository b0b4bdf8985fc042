package models

import (
	"encoding/json"
	"fmt"

	jsonpatch "github.com/evanphx/json-patch/v5"
	jsondiff "github.com/wI2L/jsondiff"

	"civica/internal/entity"
	dErrors "civica/pkg/domain-errors"
)

// Operation is one RFC 6902 patch operation against the target entity's
// canonical snapshot.
type Operation struct {
	Op    string          `json:"op"`
	Path  string          `json:"path"`
	Value json.RawMessage `json:"value,omitempty"`
}

// ChangeSet is the ordered patch sequence a request proposes: the diff from
// the entity's last-known snapshot to the proposed state.
type ChangeSet []Operation

// Validate rejects structurally malformed change sets before they are stored.
func (c ChangeSet) Validate() error {
	for i, op := range c {
		switch op.Op {
		case "add", "replace":
			if len(op.Value) == 0 {
				return dErrors.Newf(dErrors.CodeInvalidInput, "changes[%d]: %s without value", i, op.Op)
			}
		case "remove":
		default:
			return dErrors.Newf(dErrors.CodeInvalidInput, "changes[%d]: unsupported op %q", i, op.Op)
		}
		if op.Path == "" || op.Path[0] != '/' {
			return dErrors.Newf(dErrors.CodeInvalidInput, "changes[%d]: malformed path %q", i, op.Path)
		}
	}
	return nil
}

// Materialize applies the change set to a base snapshot and returns the
// hypothetical candidate without persisting anything. It is a pure function:
// the base is never mutated, and the same base with the same changes yields a
// byte-identical candidate every time. Both the validate pass and the later
// apply pass rely on this determinism.
func (c ChangeSet) Materialize(base entity.Document) (entity.Document, error) {
	baseRaw, err := json.Marshal(orEmpty(base))
	if err != nil {
		return nil, fmt.Errorf("marshal base snapshot: %w", err)
	}
	patchRaw, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshal change set: %w", err)
	}
	patch, err := jsonpatch.DecodePatch(patchRaw)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "decode change set")
	}
	candidateRaw, err := patch.Apply(baseRaw)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "apply change set to snapshot")
	}
	var candidate entity.Document
	if err := json.Unmarshal(candidateRaw, &candidate); err != nil {
		return nil, fmt.Errorf("unmarshal candidate: %w", err)
	}
	return candidate, nil
}

// DeriveChanges computes the patch sequence transforming base into proposed.
// Lets clients submit a full proposed document instead of hand-writing ops.
func DeriveChanges(base, proposed entity.Document) (ChangeSet, error) {
	patch, err := jsondiff.Compare(orEmpty(base), orEmpty(proposed))
	if err != nil {
		return nil, fmt.Errorf("diff documents: %w", err)
	}
	raw, err := json.Marshal(patch)
	if err != nil {
		return nil, fmt.Errorf("marshal diff: %w", err)
	}
	var changes ChangeSet
	if err := json.Unmarshal(raw, &changes); err != nil {
		return nil, fmt.Errorf("decode diff: %w", err)
	}
	return changes, nil
}

func orEmpty(doc entity.Document) entity.Document {
	if doc == nil {
		return entity.Document{}
	}
	return doc
}

// Clone deep-copies the change set so history snapshots never alias the
// request's live slice.
func (c ChangeSet) Clone() ChangeSet {
	if c == nil {
		return nil
	}
	out := make(ChangeSet, len(c))
	for i, op := range c {
		out[i] = Operation{Op: op.Op, Path: op.Path}
		if op.Value != nil {
			out[i].Value = append(json.RawMessage(nil), op.Value...)
		}
	}
	return out
}
