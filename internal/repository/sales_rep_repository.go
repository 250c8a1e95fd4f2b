package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/crm-access/internal/domain"
)

// SalesRepRepository handles persistence for sales rep profiles.
type SalesRepRepository interface {
	GetByEmail(ctx context.Context, email string) (*domain.SalesRep, error)
	List(ctx context.Context, limit, offset int) ([]domain.SalesRep, error)
	UpdateName(ctx context.Context, id int64, name string) error
}

type salesRepRepository struct {
	pool *pgxpool.Pool
}

// NewSalesRepRepository instantiates the repository.
func NewSalesRepRepository(pool *pgxpool.Pool) SalesRepRepository {
	return &salesRepRepository{pool: pool}
}

func (r *salesRepRepository) GetByEmail(ctx context.Context, email string) (*domain.SalesRep, error) {
	const query = `
        SELECT id, name, email, created_at, updated_at
        FROM sales_reps WHERE lower(email)=lower($1)`

	var rep domain.SalesRep
	if err := r.pool.QueryRow(ctx, query, email).Scan(
		&rep.ID,
		&rep.Name,
		&rep.Email,
		&rep.CreatedAt,
		&rep.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &rep, nil
}

func (r *salesRepRepository) List(ctx context.Context, limit, offset int) ([]domain.SalesRep, error) {
	limit, offset = page(limit, offset)
	query := fmt.Sprintf(`
        SELECT id, name, email, created_at, updated_at
        FROM sales_reps ORDER BY name LIMIT %d OFFSET %d`, limit, offset)

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.SalesRep
	for rows.Next() {
		var rep domain.SalesRep
		if err := rows.Scan(&rep.ID, &rep.Name, &rep.Email, &rep.CreatedAt, &rep.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, rep)
	}
	return result, rows.Err()
}

func (r *salesRepRepository) UpdateName(ctx context.Context, id int64, name string) error {
	return execOne(ctx, r.pool, `UPDATE sales_reps SET name=$1, updated_at=NOW() WHERE id=$2`, name, id)
}

func page(limit, offset int) (int, int) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
