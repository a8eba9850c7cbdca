package service

import "github.com/cliniq-dev/cliniq/shared/domain"

// PermissionsForRole resolves a role to its capability strings. Pure and
// total: an unknown role gets an empty set, never an error.
func PermissionsForRole(role domain.Role) []string {
	switch role {
	case domain.RolePatient:
		return []string{
			"appointments:create",
			"appointments:read-own",
			"medical-records:read-own",
			"prescriptions:read-own",
			"billing:read-own",
			"profile:update-own",
		}
	case domain.RoleDoctor:
		return []string{
			"appointments:read",
			"appointments:update",
			"medical-records:read",
			"medical-records:write",
			"prescriptions:create",
			"prescriptions:read",
			"patients:read",
		}
	case domain.RoleNurse:
		return []string{
			"appointments:read",
			"appointments:update",
			"medical-records:read",
			"vitals:write",
			"patients:read",
		}
	case domain.RoleAdmin:
		return []string{
			"users:create",
			"users:read",
			"users:update",
			"users:deactivate",
			"appointments:read",
			"billing:read",
			"billing:write",
			"reports:read",
		}
	default:
		return []string{}
	}
}
