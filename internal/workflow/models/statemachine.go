package models

import (
	dErrors "civica/pkg/domain-errors"
)

// Statuses each side of the workflow is allowed to write. An editor moves a
// request between draft and submission; a validator decides it. The sets are
// disjoint on purpose: no caller can both edit and decide the same write.
var (
	editorStatuses    = map[Status]bool{StatusDraft: true, StatusCreated: true, StatusSubmitted: true}
	validatorStatuses = map[Status]bool{StatusRejected: true, StatusReturned: true, StatusApproved: true}
)

// ValidateStatus guards every status write. It runs synchronously before any
// persistence: for new records only DRAFT and CREATED are reachable; for
// existing records the permission verdict for the record decides which status
// set the caller may write into. Violations are surfaced as policy errors
// naming the rejected status.
func ValidateStatus(existing *Request, next Status, perms Permissions) error {
	if !next.Valid() {
		return dErrors.Newf(dErrors.CodePolicyViolation, "unknown status %q", next)
	}
	if existing == nil {
		if next != StatusDraft && next != StatusCreated {
			return dErrors.Newf(dErrors.CodePolicyViolation, "a new request cannot start as %s", next)
		}
		return nil
	}
	if perms.Edit && editorStatuses[next] {
		return nil
	}
	if perms.Validate && validatorStatuses[next] {
		return nil
	}
	return dErrors.Newf(dErrors.CodePolicyViolation, "status %s cannot be written by this caller", next)
}
