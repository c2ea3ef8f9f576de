// Package models contains the platform's business domain types.
package models

// Role is a user's role within a tenant. The hierarchy is linear:
// viewer < operator < admin.
type Role string

// Supported user roles.
const (
	RoleViewer   Role = "viewer"
	RoleOperator Role = "operator"
	RoleAdmin    Role = "admin"
)

// Level returns the numeric rank of the role for comparisons.
// Unknown roles rank below viewer.
func (r Role) Level() int {
	switch r {
	case RoleViewer:
		return 1
	case RoleOperator:
		return 2
	case RoleAdmin:
		return 3
	default:
		return 0
	}
}

// AtLeast reports whether r grants at least the privileges of min.
func (r Role) AtLeast(min Role) bool {
	return r.Level() >= min.Level()
}

// ValidRole returns true when role is one of the supported user roles.
func ValidRole(role string) bool {
	switch Role(role) {
	case RoleViewer, RoleOperator, RoleAdmin:
		return true
	default:
		return false
	}
}
