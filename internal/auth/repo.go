package auth

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aegis-auth/aegis/internal/shared"
	"github.com/aegis-auth/aegis/internal/users"
)

// Repository defines the persistence auth needs: credential lookup plus the
// session audit trail.
type Repository interface {
	FindByEmail(ctx context.Context, email string) (users.User, error)
	FindByID(ctx context.Context, id int64) (users.User, error)
	CreateSession(ctx context.Context, session Session) error
	DeleteSession(ctx context.Context, tokenID string) error
	DeleteExpiredSessions(ctx context.Context) (int64, error)
}

// PGRepository provides PostgreSQL backed persistence for auth.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

var _ Repository = (*PGRepository)(nil)

const userColumns = `id, name, email, phone, password_hash, is_active, created_at, updated_at`

// FindByEmail fetches a user by email. Emails are stored lowercased.
func (r *PGRepository) FindByEmail(ctx context.Context, email string) (users.User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	return scanUser(row)
}

// FindByID fetches a user by id.
func (r *PGRepository) FindByID(ctx context.Context, id int64) (users.User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

// CreateSession records an issued token.
func (r *PGRepository) CreateSession(ctx context.Context, session Session) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO sessions (token_id, user_id, expires_at) VALUES ($1, $2, $3)`,
		session.TokenID, session.UserID, session.ExpiresAt)
	return err
}

// DeleteSession removes the record for a revoked token.
func (r *PGRepository) DeleteSession(ctx context.Context, tokenID string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE token_id = $1`, tokenID)
	return err
}

// DeleteExpiredSessions removes session records whose tokens have lapsed. The
// corresponding Redis keys expire on their own.
func (r *PGRepository) DeleteExpiredSessions(ctx context.Context) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE expires_at < NOW()`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func scanUser(row pgx.Row) (users.User, error) {
	var user users.User
	err := row.Scan(&user.ID, &user.Name, &user.Email, &user.Phone, &user.PasswordHash, &user.IsActive, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return users.User{}, shared.ErrNotFound
		}
		return users.User{}, err
	}
	return user, nil
}
