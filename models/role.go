package models

// Role is the actor role stored on a profile.
type Role string

const (
	RoleEmployee Role = "employee"
	RoleManager  Role = "manager"
	RoleAdmin    Role = "admin"
)

// Valid reports whether r is one of the three known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleEmployee, RoleManager, RoleAdmin:
		return true
	}
	return false
}

// CanApprove reports whether the role may be assigned as someone's manager.
func (r Role) CanApprove() bool {
	return r == RoleManager || r == RoleAdmin
}
