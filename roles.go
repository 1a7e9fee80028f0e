package auth

import "strings"

// IsValid checks if the role is one of the predefined roles
func (r Role) IsValid() bool {
	switch r {
	case RoleTalent, RoleAdmin, RoleSuperAdmin:
		return true
	default:
		return false
	}
}

// IsPrivileged reports whether the role is served from admin_profiles
func (r Role) IsPrivileged() bool {
	return r == RoleAdmin || r == RoleSuperAdmin
}

// Satisfies checks if this role can enter a route that requires the given role.
// An empty requirement is satisfied by any valid role, superadmin satisfies admin.
func (r Role) Satisfies(required Role) bool {
	if !r.IsValid() {
		return false
	}

	if required == "" || r == required {
		return true
	}

	return required == RoleAdmin && r == RoleSuperAdmin
}

func (r Role) String() string {
	return string(r)
}

// GetAllRoles returns all predefined roles
func GetAllRoles() []Role {
	return []Role{
		RoleTalent,
		RoleAdmin,
		RoleSuperAdmin,
	}
}

// ParseRole safely parses a string into a Role
func ParseRole(raw string) (Role, bool) {
	role := Role(strings.ToLower(strings.TrimSpace(raw)))
	return role, role.IsValid()
}
