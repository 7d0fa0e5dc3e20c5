package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type RoleRepository struct {
	pool *pgxpool.Pool
}

func NewRoleRepository(pool *pgxpool.Pool) *RoleRepository {
	return &RoleRepository{pool: pool}
}

func (r *RoleRepository) RolesForUser(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT role_name FROM user_roles WHERE user_id = $1 ORDER BY granted_at, role_name`, userID)
	if err != nil {
		return nil, fmt.Errorf("list user roles: %w", err)
	}

	roles, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan user roles: %w", err)
	}
	return roles, nil
}

func grantRole(ctx context.Context, tx pgx.Tx, userID string, role string) error {
	role = strings.TrimSpace(role)
	if role == "" {
		return nil
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO roles (name) VALUES ($1) ON CONFLICT (name) DO NOTHING`, role); err != nil {
		return fmt.Errorf("ensure role: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO user_roles (user_id, role_name) VALUES ($1, $2)
		 ON CONFLICT (user_id, role_name) DO NOTHING`, userID, role); err != nil {
		return fmt.Errorf("grant role: %w", err)
	}
	return nil
}
