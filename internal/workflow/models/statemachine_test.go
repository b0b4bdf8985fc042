package models

import (
	"testing"

	"github.com/stretchr/testify/assert"

	dErrors "civica/pkg/domain-errors"
)

func TestValidateStatusForNewRequests(t *testing.T) {
	assert.NoError(t, ValidateStatus(nil, StatusDraft, Permissions{}))
	assert.NoError(t, ValidateStatus(nil, StatusCreated, Permissions{}))

	for _, status := range []Status{StatusSubmitted, StatusApproved, StatusRejected, StatusReturned} {
		err := ValidateStatus(nil, status, Permissions{Edit: true, Validate: true})
		assert.Error(t, err, status)
		assert.True(t, dErrors.HasCode(err, dErrors.CodePolicyViolation))
	}
}

func TestValidateStatusSplitsEditorAndValidatorSets(t *testing.T) {
	existing := &Request{Status: StatusSubmitted}

	editor := Permissions{Edit: true}
	validator := Permissions{Validate: true}

	tests := []struct {
		name  string
		next  Status
		perms Permissions
		ok    bool
	}{
		{"editor resubmits", StatusSubmitted, editor, true},
		{"editor pulls back to draft", StatusDraft, editor, true},
		{"editor moves to created", StatusCreated, editor, true},
		{"editor cannot approve", StatusApproved, editor, false},
		{"editor cannot reject", StatusRejected, editor, false},
		{"validator approves", StatusApproved, validator, true},
		{"validator rejects", StatusRejected, validator, true},
		{"validator returns", StatusReturned, validator, true},
		{"validator cannot write editor statuses", StatusDraft, validator, false},
		{"no permissions at all", StatusApproved, Permissions{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateStatus(existing, tt.next, tt.perms)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
				assert.True(t, dErrors.HasCode(err, dErrors.CodePolicyViolation))
			}
		})
	}
}

func TestValidateStatusRejectsUnknownStatus(t *testing.T) {
	err := ValidateStatus(&Request{Status: StatusDraft}, Status("SHIPPED"), Permissions{Edit: true, Validate: true})
	assert.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodePolicyViolation))
}

func TestHistoryTypeForStatus(t *testing.T) {
	_, ok := HistoryTypeForStatus(StatusDraft)
	assert.False(t, ok, "drafts record no history")

	for status, want := range map[Status]HistoryType{
		StatusCreated:   HistoryCreated,
		StatusSubmitted: HistorySubmitted,
		StatusApproved:  HistoryApproved,
		StatusRejected:  HistoryRejected,
		StatusReturned:  HistoryReturned,
	} {
		got, ok := HistoryTypeForStatus(status)
		assert.True(t, ok)
		assert.Equal(t, want, got)
	}
}
