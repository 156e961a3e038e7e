// Package auth implements registration, login, logout and the bearer token
// middleware guarding the API.
package auth

import (
	"time"

	"github.com/aegis-auth/aegis/internal/users"
)

// Session is the audit record kept for every issued token.
type Session struct {
	TokenID   string
	UserID    int64
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Result is returned by register and login: the authenticated profile plus
// the freshly issued bearer token.
type Result struct {
	Profile users.Profile
	Token   string
}
