package auth

// Operator role constants.
const (
	RoleViewer   = "viewer"
	RoleOperator = "operator"
)

// AllOpsRoles returns all valid operator roles.
func AllOpsRoles() []string {
	return []string{RoleViewer, RoleOperator}
}

// WriteRoles returns roles that can change runtime state.
func WriteRoles() []string {
	return []string{RoleOperator}
}
