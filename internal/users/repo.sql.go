package users

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aegis-auth/aegis/internal/shared"
)

// PGRepository provides PostgreSQL backed persistence for user accounts.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

var _ Repository = (*PGRepository)(nil)

const userColumns = `id, name, email, phone, password_hash, is_active, created_at, updated_at`

// ListUsers returns one page of users ordered by id, plus the total count.
func (r *PGRepository) ListUsers(ctx context.Context, page shared.Pagination) ([]User, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx,
		`SELECT `+userColumns+` FROM users ORDER BY id LIMIT $1 OFFSET $2`,
		page.PerPage, page.Offset())
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	users, err := scanUsers(rows)
	if err != nil {
		return nil, 0, err
	}
	return users, total, nil
}

// GetUser fetches a user by id.
func (r *PGRepository) GetUser(ctx context.Context, id int64) (User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

// GetUserByEmail fetches a user by email. Emails are stored lowercased.
func (r *PGRepository) GetUserByEmail(ctx context.Context, email string) (User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	return scanUser(row)
}

// CreateUser inserts a new user.
func (r *PGRepository) CreateUser(ctx context.Context, user User) (User, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO users (name, email, phone, password_hash, is_active) VALUES ($1, $2, $3, $4, $5) RETURNING `+userColumns,
		user.Name, user.Email, user.Phone, user.PasswordHash, user.IsActive)
	created, err := scanUser(row)
	if err != nil {
		return User{}, mapUniqueError(err)
	}
	return created, nil
}

// UpdateUser updates all mutable fields of a user.
func (r *PGRepository) UpdateUser(ctx context.Context, user User) (User, error) {
	row := r.pool.QueryRow(ctx,
		`UPDATE users SET name = $2, email = $3, phone = $4, password_hash = $5, is_active = $6, updated_at = NOW() WHERE id = $1 RETURNING `+userColumns,
		user.ID, user.Name, user.Email, user.Phone, user.PasswordHash, user.IsActive)
	updated, err := scanUser(row)
	if err != nil {
		return User{}, mapUniqueError(err)
	}
	return updated, nil
}

// DeleteUser removes a user. The user_roles and sessions rows referencing it
// are removed by the ON DELETE CASCADE constraints.
func (r *PGRepository) DeleteUser(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func scanUser(row pgx.Row) (User, error) {
	var user User
	err := row.Scan(&user.ID, &user.Name, &user.Email, &user.Phone, &user.PasswordHash, &user.IsActive, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, shared.ErrNotFound
		}
		return User{}, err
	}
	return user, nil
}

func scanUsers(rows pgx.Rows) ([]User, error) {
	var users []User
	for rows.Next() {
		var user User
		if err := rows.Scan(&user.ID, &user.Name, &user.Email, &user.Phone, &user.PasswordHash, &user.IsActive, &user.CreatedAt, &user.UpdatedAt); err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

// mapUniqueError converts unique violations on users.email into the shared
// conflict sentinel.
func mapUniqueError(err error) error {
	if errors.Is(err, pgx.ErrNoRows) || errors.Is(err, shared.ErrNotFound) {
		return shared.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return shared.ErrConflict
	}
	return err
}
