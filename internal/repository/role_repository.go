package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/crm-access/internal/domain"
)

// RoleRepository reads role assignments and their permission strings.
// Deactivated users have no roles.
type RoleRepository interface {
	ListForUser(ctx context.Context, userID int64) ([]domain.Role, error)
	AssignByName(ctx context.Context, userID int64, roleName string) error
}

type roleRepository struct {
	pool *pgxpool.Pool
}

// NewRoleRepository instantiates the repository.
func NewRoleRepository(pool *pgxpool.Pool) RoleRepository {
	return &roleRepository{pool: pool}
}

func (r *roleRepository) ListForUser(ctx context.Context, userID int64) ([]domain.Role, error) {
	const query = `
        SELECT r.id, r.name, COALESCE(array_agg(rp.permission ORDER BY rp.permission)
            FILTER (WHERE rp.permission IS NOT NULL), '{}')
        FROM user_roles ur
        JOIN users u ON u.id = ur.user_id AND u.is_active
        JOIN roles r ON r.id = ur.role_id
        LEFT JOIN role_permissions rp ON rp.role_id = r.id
        WHERE ur.user_id=$1
        GROUP BY r.id, r.name
        ORDER BY r.name`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Role
	for rows.Next() {
		var role domain.Role
		if err := rows.Scan(&role.ID, &role.Name, &role.Permissions); err != nil {
			return nil, err
		}
		result = append(result, role)
	}
	return result, rows.Err()
}

// AssignByName links the user to the named role. Re-assigning is a no-op.
func (r *roleRepository) AssignByName(ctx context.Context, userID int64, roleName string) error {
	const query = `
        INSERT INTO user_roles (user_id, role_id)
        SELECT $1, id FROM roles WHERE name=$2
        ON CONFLICT (user_id, role_id) DO NOTHING
        RETURNING role_id`

	var roleID int64
	err := r.pool.QueryRow(ctx, query, userID, roleName).Scan(&roleID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return err
	}

	// No row back: either already assigned or the role does not exist.
	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM roles WHERE name=$1)`, roleName).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return pgx.ErrNoRows
	}
	return nil
}
