package auth

import "strings"

type Role string

const (
	RoleAdmin      Role = "ADMIN"
	RoleStaff      Role = "STAFF"
	RoleEventOwner Role = "EVENT_OWNER"
)

// NormalizeRole maps free-form input to a known role. Unknown values fall
// back to the least privileged role.
func NormalizeRole(role string) Role {
	switch strings.ToUpper(strings.TrimSpace(role)) {
	case string(RoleAdmin):
		return RoleAdmin
	case string(RoleStaff):
		return RoleStaff
	case string(RoleEventOwner):
		return RoleEventOwner
	default:
		return RoleEventOwner
	}
}

// ParseRole is the strict variant of NormalizeRole used for operator input.
func ParseRole(role string) (Role, bool) {
	switch candidate := Role(strings.ToUpper(strings.TrimSpace(role))); candidate {
	case RoleAdmin, RoleStaff, RoleEventOwner:
		return candidate, true
	default:
		return "", false
	}
}

// IsAdmin reports whether the role bypasses ownership checks.
func (r Role) IsAdmin() bool {
	return r == RoleAdmin
}
