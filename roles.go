package identity

// UserRole is the user's role
type UserRole = string

const (
	// RoleUser is a regular account (i.e. owns and manages its own record)
	RoleUser UserRole = "user"
	// RoleAdmin is an administrator (i.e. manages any record)
	RoleAdmin UserRole = "admin"
)

// IsValid checks if the role is one of the predefined valid roles
func roleIsValid(r UserRole) bool {
	switch r {
	case RoleUser, RoleAdmin:
		return true
	default:
		return false
	}
}

// ParseRole safely parses a string into a UserRole type
func ParseRole(roleStr string) (UserRole, bool) {
	role := UserRole(roleStr)
	return role, roleIsValid(role)
}

// RoleIsAtLeast checks if role meets the minimum required level
func RoleIsAtLeast(role, minRole UserRole) bool {
	roleHierarchy := map[UserRole]int{
		RoleUser:  0,
		RoleAdmin: 1,
	}

	currentLevel, exists := roleHierarchy[role]
	if !exists {
		return false
	}

	minLevel, exists := roleHierarchy[minRole]
	if !exists {
		return false
	}

	return currentLevel >= minLevel
}

// GetAllRoles returns all predefined roles in hierarchical order
func GetAllRoles() []UserRole {
	return []UserRole{
		RoleUser,
		RoleAdmin,
	}
}
