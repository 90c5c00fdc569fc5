package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/techserve/support-api/internal/model"
)

type ServiceRepository interface {
	Create(ctx context.Context, svc *model.Service) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Service, error)
	List(ctx context.Context, limit, offset int, search, sort, order string, categoryID *uuid.UUID) ([]model.Service, int, error)
	Update(ctx context.Context, svc *model.Service) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type pgServiceRepo struct{ pool *pgxpool.Pool }

func NewServiceRepository(pool *pgxpool.Pool) ServiceRepository {
	return &pgServiceRepo{pool: pool}
}

func (r *pgServiceRepo) Create(ctx context.Context, svc *model.Service) error {
	svc.ID = uuid.New()
	query := `INSERT INTO services (id, category_id, title, description, price, duration_minutes, active, created_at, updated_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW()) RETURNING created_at, updated_at`
	err := r.pool.QueryRow(ctx, query,
		svc.ID, svc.CategoryID, svc.Title, svc.Description, svc.Price, svc.DurationMinutes, svc.Active,
	).Scan(&svc.CreatedAt, &svc.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create service: %w", err)
	}
	return nil
}

func (r *pgServiceRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.Service, error) {
	query := `SELECT id, category_id, title, description, price, duration_minutes, active, created_at, updated_at
			  FROM services WHERE id = $1`
	s := &model.Service{}
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&s.ID, &s.CategoryID, &s.Title, &s.Description, &s.Price, &s.DurationMinutes, &s.Active, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get service: %w", err)
	}
	return s, nil
}

func (r *pgServiceRepo) List(ctx context.Context, limit, offset int, search, sort, order string, categoryID *uuid.UUID) ([]model.Service, int, error) {
	allowedSorts := map[string]bool{"title": true, "price": true, "created_at": true}
	if !allowedSorts[sort] {
		sort = "created_at"
	}
	if order != "asc" && order != "desc" {
		order = "desc"
	}

	var total int
	countQ := `SELECT COUNT(*) FROM services
			   WHERE active
			   AND ($1 = '' OR title ILIKE '%' || $1 || '%' OR description ILIKE '%' || $1 || '%')
			   AND ($2::uuid IS NULL OR category_id = $2)`
	if err := r.pool.QueryRow(ctx, countQ, search, categoryID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count services: %w", err)
	}

	query := fmt.Sprintf(`SELECT id, category_id, title, description, price, duration_minutes, active, created_at, updated_at
		FROM services
		WHERE active
		AND ($1 = '' OR title ILIKE '%%' || $1 || '%%' OR description ILIKE '%%' || $1 || '%%')
		AND ($2::uuid IS NULL OR category_id = $2)
		ORDER BY %s %s LIMIT $3 OFFSET $4`, sort, order)

	rows, err := r.pool.Query(ctx, query, search, categoryID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list services: %w", err)
	}
	defer rows.Close()

	var services []model.Service
	for rows.Next() {
		var s model.Service
		if err := rows.Scan(&s.ID, &s.CategoryID, &s.Title, &s.Description, &s.Price, &s.DurationMinutes, &s.Active, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan service: %w", err)
		}
		services = append(services, s)
	}
	return services, total, rows.Err()
}

func (r *pgServiceRepo) Update(ctx context.Context, svc *model.Service) error {
	query := `UPDATE services SET category_id=$2, title=$3, description=$4, price=$5, duration_minutes=$6, active=$7, updated_at=NOW()
			  WHERE id=$1 RETURNING updated_at`
	err := r.pool.QueryRow(ctx, query,
		svc.ID, svc.CategoryID, svc.Title, svc.Description, svc.Price, svc.DurationMinutes, svc.Active,
	).Scan(&svc.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		return fmt.Errorf("update service: %w", err)
	}
	return nil
}

func (r *pgServiceRepo) Delete(ctx context.Context, id uuid.UUID) error {
	ct, err := r.pool.Exec(ctx, `DELETE FROM services WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete service: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
