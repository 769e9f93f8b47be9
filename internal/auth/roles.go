package auth

// Role represents a marketplace participant role.
type Role string

const (
	RoleBuyer     Role = "buyer"
	RoleVendor    Role = "vendor"
	RoleInstaller Role = "installer"
	RoleAdmin     Role = "admin"
)

// NormalizeRole validates and normalizes a role string.
func NormalizeRole(value string) (Role, bool) {
	switch Role(value) {
	case RoleBuyer, RoleVendor, RoleInstaller, RoleAdmin:
		return Role(value), true
	default:
		return "", false
	}
}

// RoleIn returns true when role is one of allowed. An empty allowed set
// admits any valid role.
func RoleIn(role Role, allowed ...Role) bool {
	if _, ok := NormalizeRole(string(role)); !ok {
		return false
	}
	if len(allowed) == 0 {
		return true
	}
	for _, candidate := range allowed {
		if role == candidate {
			return true
		}
	}
	return false
}
