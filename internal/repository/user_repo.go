package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"identity-api/internal/model"
)

const (
	uniqueViolation = "23505"

	emailIndex    = "users_email_lower_idx"
	usernameIndex = "users_username_lower_idx"

	userColumns = `id, username, email, password_hash, first_name, last_name,
		created_at, last_login_at, failed_access_count, lockout_end`
)

type UserRepository struct {
	pool *pgxpool.Pool
}

func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

func scanUser(row pgx.Row) (model.User, error) {
	var u model.User
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.FirstName, &u.LastName,
		&u.CreatedAt, &u.LastLoginAt, &u.FailedAccessCount, &u.LockoutEnd)
	return u, err
}

func (r *UserRepository) FindByID(ctx context.Context, id string) (model.User, error) {
	u, err := scanUser(r.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.User{}, model.ErrUserNotFound
	}
	if err != nil {
		return model.User{}, fmt.Errorf("find user by id: %w", err)
	}
	return u, nil
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (model.User, error) {
	u, err := scanUser(r.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE lower(email) = $1`, model.NormalizeEmail(email)))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.User{}, model.ErrUserNotFound
	}
	if err != nil {
		return model.User{}, fmt.Errorf("find user by email: %w", err)
	}
	return u, nil
}

func (r *UserRepository) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM users WHERE lower(username) = lower($1))`,
		strings.TrimSpace(username)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check username exists: %w", err)
	}
	return exists, nil
}

// Create inserts the user and grants roles in one transaction, so a failed
// grant leaves no account behind.
func (r *UserRepository) Create(ctx context.Context, u model.User, roles ...string) error {
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`INSERT INTO users (id, username, email, password_hash, first_name, last_name,
			                    created_at, failed_access_count)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, 0)`,
			u.ID, u.Username, u.Email, u.PasswordHash, u.FirstName, u.LastName, u.CreatedAt); err != nil {
			return err
		}

		for _, role := range roles {
			if err := grantRole(ctx, tx, u.ID, role); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			switch pgErr.ConstraintName {
			case emailIndex:
				return model.ErrDuplicateEmail
			case usernameIndex:
				return model.ErrDuplicateUsername
			}
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// Update locks the user row for the duration of mutate, so concurrent
// read-modify-write sequences on the same user are serialized.
// created_at is never written.
func (r *UserRepository) Update(ctx context.Context, id string, mutate func(*model.User) error) (model.User, error) {
	var updated model.User
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		u, err := scanUser(tx.QueryRow(ctx,
			`SELECT `+userColumns+` FROM users WHERE id = $1 FOR UPDATE`, id))
		if errors.Is(err, pgx.ErrNoRows) {
			return model.ErrUserNotFound
		}
		if err != nil {
			return fmt.Errorf("lock user: %w", err)
		}

		if err := mutate(&u); err != nil {
			return err
		}

		_, err = tx.Exec(ctx,
			`UPDATE users
			 SET username = $2, first_name = $3, last_name = $4, last_login_at = $5,
			     failed_access_count = $6, lockout_end = $7
			 WHERE id = $1`,
			u.ID, u.Username, u.FirstName, u.LastName, u.LastLoginAt, u.FailedAccessCount, u.LockoutEnd)
		if err != nil {
			return fmt.Errorf("update user: %w", err)
		}

		updated = u
		return nil
	})
	if err != nil {
		return model.User{}, err
	}
	return updated, nil
}
