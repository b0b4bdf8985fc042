package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"civica/internal/entity"
)

func TestChangeSetValidate(t *testing.T) {
	tests := []struct {
		name    string
		changes ChangeSet
		wantErr bool
	}{
		{
			name: "well formed",
			changes: ChangeSet{
				{Op: "add", Path: "/name", Value: json.RawMessage(`"Hall"`)},
				{Op: "replace", Path: "/address", Value: json.RawMessage(`"1 Square"`)},
				{Op: "remove", Path: "/category"},
			},
		},
		{
			name:    "unsupported op",
			changes: ChangeSet{{Op: "move", Path: "/name", Value: json.RawMessage(`"x"`)}},
			wantErr: true,
		},
		{
			name:    "add without value",
			changes: ChangeSet{{Op: "add", Path: "/name"}},
			wantErr: true,
		},
		{
			name:    "malformed path",
			changes: ChangeSet{{Op: "remove", Path: "name"}},
			wantErr: true,
		},
		{
			name: "empty set",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.changes.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestMaterializeIsDeterministicAndPure(t *testing.T) {
	base := entity.Document{
		"id":      "f-1",
		"name":    "Old Hall",
		"address": "1 Square",
	}
	changes := ChangeSet{
		{Op: "replace", Path: "/name", Value: json.RawMessage(`"New Hall"`)},
		{Op: "add", Path: "/category", Value: json.RawMessage(`"culture"`)},
		{Op: "remove", Path: "/address"},
	}

	first, err := changes.Materialize(base)
	require.NoError(t, err)
	second, err := changes.Materialize(base)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, "New Hall", first["name"])
	assert.Equal(t, "culture", first["category"])
	assert.NotContains(t, first, "address")

	// The base snapshot is never mutated.
	assert.Equal(t, "Old Hall", base["name"])
	assert.Equal(t, "1 Square", base["address"])
}

func TestMaterializeEmptyBaseBuildsCreation(t *testing.T) {
	changes := ChangeSet{
		{Op: "add", Path: "/name", Value: json.RawMessage(`"Brand New"`)},
	}
	candidate, err := changes.Materialize(nil)
	require.NoError(t, err)
	assert.Equal(t, "Brand New", candidate["name"])
}

func TestMaterializeRejectsInapplicablePatch(t *testing.T) {
	changes := ChangeSet{
		{Op: "replace", Path: "/missing", Value: json.RawMessage(`1`)},
	}
	_, err := changes.Materialize(entity.Document{"name": "x"})
	assert.Error(t, err)
}

func TestDeriveChangesRoundTripsThroughMaterialize(t *testing.T) {
	base := entity.Document{
		"id":      "f-2",
		"name":    "Hall",
		"address": "2 Lane",
	}
	proposed := entity.Document{
		"id":       "f-2",
		"name":     "Hall",
		"address":  "3 Lane",
		"category": "sport",
	}

	changes, err := DeriveChanges(base, proposed)
	require.NoError(t, err)
	require.NotEmpty(t, changes)
	require.NoError(t, changes.Validate())

	got, err := changes.Materialize(base)
	require.NoError(t, err)
	assert.Equal(t, proposed, got)
}

func TestCloneDoesNotAliasValues(t *testing.T) {
	changes := ChangeSet{
		{Op: "add", Path: "/name", Value: json.RawMessage(`"a"`)},
	}
	clone := changes.Clone()
	clone[0].Value[1] = 'b'
	assert.Equal(t, json.RawMessage(`"a"`), changes[0].Value)
}
