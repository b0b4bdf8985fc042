package models

import (
	"civica/pkg/requestcontext"
)

// Permissions is the per-viewer verdict over one request: whether the caller
// may edit its change set and whether the caller may validate/decide it.
type Permissions struct {
	Edit     bool `json:"canEdit"`
	Validate bool `json:"canValidate"`
}

// EvaluatePermissions computes the verdict for a caller against a request
// snapshot. Pure function; rules apply in order:
//
//  1. No id yet, or a terminal status: nobody may touch it.
//  2. No authenticated caller means a trusted internal context: full access.
//  3. The submitter side (active profile matches the owning tenant, or the
//     caller created a tenantless request) may edit while the request is
//     editable, and never validates.
//  4. Reviewers may validate while the request sits in their queue.
//  5. Everyone else: nothing.
func EvaluatePermissions(req *Request, caller requestcontext.Identity) Permissions {
	if req == nil || req.ID.IsNil() || req.Status.Terminal() {
		return Permissions{}
	}
	if caller.IsSystem() {
		return Permissions{Edit: true, Validate: true}
	}

	submitterSide := false
	if !req.TenantID.IsNil() {
		submitterSide = caller.TenantID == req.TenantID
	} else {
		submitterSide = caller.UserID == req.CreatedBy
	}
	if submitterSide {
		return Permissions{Edit: req.Status.Editable()}
	}

	if caller.Role.CanReview() {
		return Permissions{Validate: req.Status.Decidable()}
	}
	return Permissions{}
}
