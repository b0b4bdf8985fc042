package domain

// Role is the coarse-grained role carried in the caller's token. Reviewer and
// admin are the privileged review roles; everything else is a plain user.
type Role string

const (
	RoleUser     Role = "user"
	RoleReviewer Role = "reviewer"
	RoleAdmin    Role = "admin"
)

func (r Role) String() string { return string(r) }

// CanReview reports whether the role may validate and decide change requests.
func (r Role) CanReview() bool {
	return r == RoleReviewer || r == RoleAdmin
}

// ParseRole maps a token claim onto a known role, defaulting to user.
func ParseRole(s string) Role {
	switch Role(s) {
	case RoleReviewer:
		return RoleReviewer
	case RoleAdmin:
		return RoleAdmin
	default:
		return RoleUser
	}
}
