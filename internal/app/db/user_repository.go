package db

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"dmchat/internal/app/user"
)

const userColumns = `id::text, email, full_name, profile_pic, password_hash, created_at, updated_at`

// UserRepository implements user.Store on PostgreSQL.
type UserRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository returns a repository backed by pool.
func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

var _ user.Store = (*UserRepository)(nil)

func scanUser(row pgx.Row) (user.User, error) {
	var u user.User
	err := row.Scan(&u.ID, &u.Email, &u.FullName, &u.ProfilePic, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

// lookupErr turns "no row" and malformed ids into user.ErrNotFound.
func lookupErr(op string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) || IsInvalidInput(err) {
		return user.ErrNotFound
	}
	return fmt.Errorf("%s: %w", op, err)
}

// Create inserts a new account. A duplicate email yields user.ErrEmailTaken.
func (r *UserRepository) Create(ctx context.Context, in user.NewUser) (user.User, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO users (email, full_name, password_hash)
		 VALUES ($1, $2, $3)
		 RETURNING `+userColumns,
		strings.ToLower(strings.TrimSpace(in.Email)), in.FullName, in.PasswordHash,
	)

	u, err := scanUser(row)
	if err != nil {
		if IsUniqueViolation(err) {
			return user.User{}, user.ErrEmailTaken
		}
		return user.User{}, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

// FindByID loads the account with the given id.
func (r *UserRepository) FindByID(ctx context.Context, id string) (user.User, error) {
	u, err := scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		return user.User{}, lookupErr("find user by id", err)
	}
	return u, nil
}

// FindByEmail loads the account registered with email, case-insensitively.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (user.User, error) {
	u, err := scanUser(r.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`,
		strings.TrimSpace(email),
	))
	if err != nil {
		return user.User{}, lookupErr("find user by email", err)
	}
	return u, nil
}

// ListExcept returns every account other than id, ordered by name.
func (r *UserRepository) ListExcept(ctx context.Context, id string) ([]user.User, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+userColumns+` FROM users WHERE id <> $1 ORDER BY full_name, id`,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}

	users, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (user.User, error) {
		return scanUser(row)
	})
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

// UpdateProfilePic stores a new profile picture URL and returns the updated account.
func (r *UserRepository) UpdateProfilePic(ctx context.Context, id string, url string) (user.User, error) {
	u, err := scanUser(r.pool.QueryRow(ctx,
		`UPDATE users SET profile_pic = $2, updated_at = now()
		 WHERE id = $1
		 RETURNING `+userColumns,
		id, url,
	))
	if err != nil {
		return user.User{}, lookupErr("update profile pic", err)
	}
	return u, nil
}
