// Package users implements account management: listing, creation,
// administrative edits and deletion, plus role assignment.
package users

import (
	"time"

	"github.com/aegis-auth/aegis/internal/rbac"
)

// User is a managed account. Phone is optional; PasswordHash is a bcrypt
// digest and never leaves the service layer.
type User struct {
	ID           int64
	Name         string
	Email        string
	Phone        *string
	PasswordHash string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Profile couples a user with the grants loaded for it.
type Profile struct {
	User
	Grants rbac.Grants
}
