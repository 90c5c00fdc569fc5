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

// CartRepository stores cart rows keyed directly by their owner: cart_items
// has mutually exclusive user_id / guest_id columns and no cart container row.
type CartRepository interface {
	ListByOwner(ctx context.Context, owner model.CartOwner) ([]model.CartItem, error)
	GetByID(ctx context.Context, itemID uuid.UUID) (*model.CartItem, error)
	GetByOwnerAndService(ctx context.Context, owner model.CartOwner, serviceID uuid.UUID) (*model.CartItem, error)
	Insert(ctx context.Context, item *model.CartItem) error
	UpdateQuantity(ctx context.Context, itemID uuid.UUID, quantity int) error
	Delete(ctx context.Context, itemID uuid.UUID) error
	ClearByOwner(ctx context.Context, owner model.CartOwner) error
}

type pgCartRepo struct{ pool *pgxpool.Pool }

func NewCartRepository(pool *pgxpool.Pool) CartRepository {
	return &pgCartRepo{pool: pool}
}

func ownerPredicate(owner model.CartOwner) (string, any) {
	if owner.IsUser() {
		return "user_id = $1", owner.UserID
	}
	return "guest_id = $1", owner.GuestID
}

func scanCartItem(row pgx.Row) (*model.CartItem, error) {
	var (
		item    model.CartItem
		userID  *uuid.UUID
		guestID *string
	)
	err := row.Scan(&item.ID, &userID, &guestID, &item.ServiceID, &item.Quantity, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if userID != nil {
		item.Owner = model.UserOwner(*userID)
	} else if guestID != nil {
		item.Owner = model.GuestOwner(*guestID)
	}
	return &item, nil
}

func (r *pgCartRepo) ListByOwner(ctx context.Context, owner model.CartOwner) ([]model.CartItem, error) {
	pred, arg := ownerPredicate(owner)
	rows, err := r.pool.Query(ctx,
		`SELECT id, user_id, guest_id, service_id, quantity, created_at, updated_at
		 FROM cart_items WHERE `+pred+` ORDER BY created_at`, arg,
	)
	if err != nil {
		return nil, fmt.Errorf("list cart items: %w", err)
	}
	defer rows.Close()

	var items []model.CartItem
	for rows.Next() {
		item, err := scanCartItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan cart item: %w", err)
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

func (r *pgCartRepo) GetByID(ctx context.Context, itemID uuid.UUID) (*model.CartItem, error) {
	item, err := scanCartItem(r.pool.QueryRow(ctx,
		`SELECT id, user_id, guest_id, service_id, quantity, created_at, updated_at
		 FROM cart_items WHERE id = $1`, itemID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get cart item: %w", err)
	}
	return item, nil
}

func (r *pgCartRepo) GetByOwnerAndService(ctx context.Context, owner model.CartOwner, serviceID uuid.UUID) (*model.CartItem, error) {
	pred, arg := ownerPredicate(owner)
	item, err := scanCartItem(r.pool.QueryRow(ctx,
		`SELECT id, user_id, guest_id, service_id, quantity, created_at, updated_at
		 FROM cart_items WHERE `+pred+` AND service_id = $2`, arg, serviceID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get cart item by service: %w", err)
	}
	return item, nil
}

func (r *pgCartRepo) Insert(ctx context.Context, item *model.CartItem) error {
	item.ID = uuid.New()
	var userID *uuid.UUID
	var guestID *string
	if item.Owner.IsUser() {
		userID = &item.Owner.UserID
	} else {
		guestID = &item.Owner.GuestID
	}
	err := r.pool.QueryRow(ctx,
		`INSERT INTO cart_items (id, user_id, guest_id, service_id, quantity, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, NOW(), NOW()) RETURNING created_at, updated_at`,
		item.ID, userID, guestID, item.ServiceID, item.Quantity,
	).Scan(&item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert cart item: %w", err)
	}
	return nil
}

func (r *pgCartRepo) UpdateQuantity(ctx context.Context, itemID uuid.UUID, quantity int) error {
	ct, err := r.pool.Exec(ctx,
		`UPDATE cart_items SET quantity = $2, updated_at = NOW() WHERE id = $1`,
		itemID, quantity,
	)
	if err != nil {
		return fmt.Errorf("update cart item quantity: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *pgCartRepo) Delete(ctx context.Context, itemID uuid.UUID) error {
	ct, err := r.pool.Exec(ctx, `DELETE FROM cart_items WHERE id = $1`, itemID)
	if err != nil {
		return fmt.Errorf("delete cart item: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *pgCartRepo) ClearByOwner(ctx context.Context, owner model.CartOwner) error {
	pred, arg := ownerPredicate(owner)
	_, err := r.pool.Exec(ctx, `DELETE FROM cart_items WHERE `+pred, arg)
	if err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return nil
}
