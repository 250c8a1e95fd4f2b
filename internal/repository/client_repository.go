package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/crm-access/internal/domain"
)

// ClientRepository handles persistence for clients and their stakeholders.
type ClientRepository interface {
	GetOwner(ctx context.Context, clientID int64) (*int64, error)
	GetStakeholderClient(ctx context.Context, stakeholderID int64) (int64, error)
	List(ctx context.Context, filter ClientFilter) ([]domain.Client, error)
	UpdateName(ctx context.Context, id int64, name string) error
	UpdateStakeholderName(ctx context.Context, id int64, name string) error
}

// ClientFilter defines query params for client listing.
type ClientFilter struct {
	SalesRepID *int64
	Search     string
	Limit      int
	Offset     int
}

type clientRepository struct {
	pool *pgxpool.Pool
}

// NewClientRepository instantiates the repository.
func NewClientRepository(pool *pgxpool.Pool) ClientRepository {
	return &clientRepository{pool: pool}
}

// GetOwner returns the owning sales rep id, nil for unassigned clients, or
// pgx.ErrNoRows when the client does not exist.
func (r *clientRepository) GetOwner(ctx context.Context, clientID int64) (*int64, error) {
	var owner *int64
	if err := r.pool.QueryRow(ctx, `SELECT sales_rep_id FROM clients WHERE id=$1`, clientID).Scan(&owner); err != nil {
		return nil, err
	}
	return owner, nil
}

func (r *clientRepository) GetStakeholderClient(ctx context.Context, stakeholderID int64) (int64, error) {
	var clientID int64
	if err := r.pool.QueryRow(ctx, `SELECT client_id FROM stakeholders WHERE id=$1`, stakeholderID).Scan(&clientID); err != nil {
		return 0, err
	}
	return clientID, nil
}

func (r *clientRepository) List(ctx context.Context, filter ClientFilter) ([]domain.Client, error) {
	query := `
        SELECT id, name, sales_rep_id, created_at, updated_at
        FROM clients`
	args := []any{}
	clauses := []string{}

	if filter.SalesRepID != nil {
		args = append(args, *filter.SalesRepID)
		clauses = append(clauses, fmt.Sprintf("sales_rep_id=$%d", len(args)))
	}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		clauses = append(clauses, fmt.Sprintf("name ILIKE $%d", len(args)))
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}

	limit, offset := page(filter.Limit, filter.Offset)
	query += fmt.Sprintf(" ORDER BY name LIMIT %d OFFSET %d", limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Client
	for rows.Next() {
		var client domain.Client
		if err := rows.Scan(
			&client.ID,
			&client.Name,
			&client.SalesRepID,
			&client.CreatedAt,
			&client.UpdatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, client)
	}
	return result, rows.Err()
}

func (r *clientRepository) UpdateName(ctx context.Context, id int64, name string) error {
	return execOne(ctx, r.pool, `UPDATE clients SET name=$1, updated_at=NOW() WHERE id=$2`, name, id)
}

func (r *clientRepository) UpdateStakeholderName(ctx context.Context, id int64, name string) error {
	return execOne(ctx, r.pool, `UPDATE stakeholders SET name=$1, updated_at=NOW() WHERE id=$2`, name, id)
}

func execOne(ctx context.Context, pool *pgxpool.Pool, query string, args ...any) error {
	cmd, err := pool.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
