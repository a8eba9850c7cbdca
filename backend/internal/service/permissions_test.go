package service

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cliniq-dev/cliniq/shared/domain"
)

func TestPermissionsForRole(t *testing.T) {
	t.Run("every declared role has permissions", func(t *testing.T) {
		for _, role := range []domain.Role{domain.RolePatient, domain.RoleDoctor, domain.RoleNurse, domain.RoleAdmin} {
			assert.NotEmpty(t, PermissionsForRole(role), "role %s", role)
		}
	})

	t.Run("unknown role gets empty set not nil panic", func(t *testing.T) {
		perms := PermissionsForRole(domain.Role("janitor"))
		assert.NotNil(t, perms)
		assert.Empty(t, perms)
	})

	t.Run("patients cannot write medical records", func(t *testing.T) {
		assert.NotContains(t, PermissionsForRole(domain.RolePatient), "medical-records:write")
		assert.Contains(t, PermissionsForRole(domain.RoleDoctor), "medical-records:write")
	})

	t.Run("only admin manages users", func(t *testing.T) {
		assert.Contains(t, PermissionsForRole(domain.RoleAdmin), "users:create")
		for _, role := range []domain.Role{domain.RolePatient, domain.RoleDoctor, domain.RoleNurse} {
			assert.NotContains(t, PermissionsForRole(role), "users:create")
		}
	})
}
