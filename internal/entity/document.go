// Package entity implements the entity service contract: each domain entity
// type owns its storage and exposes a canonical-snapshot fetch plus the
// recursive apply-or-validate operation. One generic interpreter, driven by a
// per-type field descriptor table, serves every entity type.
package entity

import (
	"bytes"
	"encoding/json"
)

// Document is the JSON-like representation of a domain entity. Values follow
// encoding/json conventions: strings, float64 numbers, bools, []any and
// nested map[string]any.
type Document map[string]any

// FieldID is the document key holding the entity identifier.
const FieldID = "id"

// Audit field keys stamped on every persisted document.
const (
	FieldCreatedBy = "createdBy"
	FieldCreatedAt = "createdAt"
	FieldUpdatedBy = "updatedBy"
	FieldUpdatedAt = "updatedAt"
)

// ID returns the document's identifier, or "" when it has none yet.
func (d Document) ID() string {
	if d == nil {
		return ""
	}
	s, _ := d[FieldID].(string)
	return s
}

// Clone returns a deep copy with values normalized to JSON types. A nil
// document clones to nil.
func (d Document) Clone() Document {
	if d == nil {
		return nil
	}
	raw, err := json.Marshal(d)
	if err != nil {
		// Documents originate from JSON; a marshal failure means a programming
		// error upstream. Fall back to a shallow copy.
		out := make(Document, len(d))
		for k, v := range d {
			out[k] = v
		}
		return out
	}
	var out Document
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}

// equalJSON compares two values by their canonical JSON encoding. Map keys are
// sorted by encoding/json, so the comparison is order-insensitive and
// deterministic.
func equalJSON(a, b any) bool {
	ab, errA := json.Marshal(a)
	bb, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return false
	}
	return bytes.Equal(ab, bb)
}

// toArray normalizes a delegated field's value: absent values become an empty
// slice, single objects become one-element slices. A bare string is treated as
// a reference to an existing child by id.
func toArray(v any) []Document {
	switch val := v.(type) {
	case nil:
		return nil
	case []any:
		out := make([]Document, 0, len(val))
		for _, el := range val {
			if doc := asDocument(el); doc != nil {
				out = append(out, doc)
			}
		}
		return out
	default:
		if doc := asDocument(val); doc != nil {
			return []Document{doc}
		}
		return nil
	}
}

func asDocument(v any) Document {
	switch val := v.(type) {
	case Document:
		return val
	case map[string]any:
		return Document(val)
	case string:
		return Document{FieldID: val}
	default:
		return nil
	}
}

// findByID matches a document by id within a slice; used to pair candidate
// children with their previous snapshots.
func findByID(docs []Document, id string) Document {
	if id == "" {
		return nil
	}
	for _, doc := range docs {
		if doc.ID() == id {
			return doc
		}
	}
	return nil
}
