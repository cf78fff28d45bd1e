package domain

// Role constants define the allowed account roles.
const (
	RolePatient   = "patient"
	RoleCaregiver = "caregiver"
	RoleDoctor    = "doctor"
	RoleAdmin     = "admin"
)

// ValidRoles returns the set of valid account roles.
func ValidRoles() []string {
	return []string{RolePatient, RoleCaregiver, RoleDoctor, RoleAdmin}
}

// IsValidRole checks whether the given role string is a valid account role.
func IsValidRole(role string) bool {
	for _, r := range ValidRoles() {
		if r == role {
			return true
		}
	}
	return false
}

// SelfRegisterableRole reports whether an account may be created with the
// given role through public registration. Admin is assigned only by
// administrative action.
func SelfRegisterableRole(role string) bool {
	switch role {
	case RolePatient, RoleCaregiver, RoleDoctor:
		return true
	default:
		return false
	}
}
