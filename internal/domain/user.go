package domain

import "time"

// Role enumerates caller roles.
type Role string

const (
	RoleEmployee      Role = "EMPLOYEE"
	RoleAgent         Role = "AGENT"
	RoleAdministrator Role = "ADMINISTRATOR"
)

// IsValid reports whether r is a known role.
func (r Role) IsValid() bool {
	switch r {
	case RoleEmployee, RoleAgent, RoleAdministrator:
		return true
	}
	return false
}

// IsStaff reports whether r manages tickets (agents and administrators).
func (r Role) IsStaff() bool {
	return r == RoleAgent || r == RoleAdministrator
}

// User is an account known to the directory. The ticket core only reads it.
type User struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	Role         Role
	Active       bool
	CreatedAt    time.Time
}

// Caller is the authenticated actor performing an operation.
type Caller struct {
	ID   string
	Role Role
}
