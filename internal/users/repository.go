package users

import (
	"context"

	"github.com/aegis-auth/aegis/internal/shared"
)

// Repository defines persistence operations for user accounts.
type Repository interface {
	ListUsers(ctx context.Context, page shared.Pagination) ([]User, int, error)
	GetUser(ctx context.Context, id int64) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)
	CreateUser(ctx context.Context, user User) (User, error)
	UpdateUser(ctx context.Context, user User) (User, error)
	DeleteUser(ctx context.Context, id int64) error
}
