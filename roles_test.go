package auth_test

import (
	"testing"

	auth "github.com/goliatone/go-talent-auth"
	"github.com/stretchr/testify/assert"
)

func TestRoleSatisfies(t *testing.T) {
	tests := []struct {
		role     auth.Role
		required auth.Role
		want     bool
	}{
		{auth.RoleTalent, "", true},
		{auth.RoleTalent, auth.RoleTalent, true},
		{auth.RoleTalent, auth.RoleAdmin, false},
		{auth.RoleAdmin, auth.RoleTalent, false},
		{auth.RoleAdmin, auth.RoleAdmin, true},
		{auth.RoleAdmin, auth.RoleSuperAdmin, false},
		{auth.RoleSuperAdmin, auth.RoleAdmin, true},
		{auth.RoleSuperAdmin, auth.RoleTalent, false},
		{auth.Role(""), "", false},
		{auth.Role("guest"), "", false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.role.Satisfies(tt.required), "%q satisfies %q", tt.role, tt.required)
	}
}

func TestParseRole(t *testing.T) {
	role, ok := auth.ParseRole(" SuperAdmin ")
	assert.True(t, ok)
	assert.Equal(t, auth.RoleSuperAdmin, role)

	_, ok = auth.ParseRole("owner")
	assert.False(t, ok)

	assert.Len(t, auth.GetAllRoles(), 3)
	for _, r := range auth.GetAllRoles() {
		assert.True(t, r.IsValid())
	}
	assert.False(t, auth.RoleTalent.IsPrivileged())
	assert.True(t, auth.RoleAdmin.IsPrivileged())
	assert.True(t, auth.RoleSuperAdmin.IsPrivileged())
}
