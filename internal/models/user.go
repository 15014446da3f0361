package models

import "time"

type UserRole string

const (
	RoleClinician UserRole = "clinician"
	RoleAdmin     UserRole = "admin"
)

// Elevated reports whether a role may act on clinic sessions it does not own.
func Elevated(role string) bool {
	return role == string(RoleAdmin)
}

// Identity is resolved upstream; the API only ever sees id + role from JWT claims.
type User struct {
	ID        string    `json:"id"` // uuid
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
	Role      UserRole  `json:"role"`
}
