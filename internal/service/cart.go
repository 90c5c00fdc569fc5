package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/techserve/support-api/internal/model"
	"github.com/techserve/support-api/internal/repository"
)

var ErrCartItemNotFound = errors.New("cart item not found")

type CartService struct {
	cartRepo repository.CartRepository
	catalog  *CatalogService
	log      *slog.Logger
}

func NewCartService(cartRepo repository.CartRepository, catalog *CatalogService, log *slog.Logger) *CartService {
	return &CartService{cartRepo: cartRepo, catalog: catalog, log: log}
}

// GetCart loads the owner's rows and resolves each one's catalog service.
// Rows whose service no longer exists are dropped from the view and logged;
// they are not surfaced as errors. Totals are derived on every load from the
// live catalog prices and never persisted.
func (s *CartService) GetCart(ctx context.Context, owner model.CartOwner) (*model.Cart, error) {
	items, err := s.cartRepo.ListByOwner(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("list cart items: %w", err)
	}

	cart := &model.Cart{Owner: owner, TotalPrice: decimal.Zero}
	for _, item := range items {
		svc, err := s.catalog.Resolve(ctx, item.ServiceID)
		if err != nil {
			s.log.Warn("dropping cart row with unresolvable service",
				"item_id", item.ID, "service_id", item.ServiceID, "error", err)
			continue
		}
		line := model.CartLine{Item: item, Service: *svc}
		cart.Lines = append(cart.Lines, line)
		cart.TotalItems += item.Quantity
		cart.TotalPrice = cart.TotalPrice.Add(line.Subtotal())
	}
	return cart, nil
}

// AddItem inserts a quantity-1 row, or bumps the existing row's quantity when
// the owner already has this service. Uniqueness per (owner, service) is kept
// by this lookup-before-insert, not by a database constraint.
func (s *CartService) AddItem(ctx context.Context, owner model.CartOwner, serviceID uuid.UUID) error {
	if _, err := s.catalog.Resolve(ctx, serviceID); err != nil {
		return err
	}

	existing, err := s.cartRepo.GetByOwnerAndService(ctx, owner, serviceID)
	if err != nil {
		return fmt.Errorf("lookup cart item: %w", err)
	}
	if existing != nil {
		if err := s.cartRepo.UpdateQuantity(ctx, existing.ID, existing.Quantity+1); err != nil {
			return fmt.Errorf("bump cart item quantity: %w", err)
		}
		return nil
	}

	item := &model.CartItem{Owner: owner, ServiceID: serviceID, Quantity: 1}
	if err := s.cartRepo.Insert(ctx, item); err != nil {
		return fmt.Errorf("insert cart item: %w", err)
	}
	return nil
}

// UpdateItem sets the row's quantity. Anything below one removes the row;
// a quantity <= 0 is never persisted.
func (s *CartService) UpdateItem(ctx context.Context, owner model.CartOwner, itemID uuid.UUID, quantity int) error {
	if quantity < 1 {
		return s.RemoveItem(ctx, owner, itemID)
	}

	item, err := s.ownedItem(ctx, owner, itemID)
	if err != nil {
		return err
	}
	if err := s.cartRepo.UpdateQuantity(ctx, item.ID, quantity); err != nil {
		return fmt.Errorf("update cart item: %w", err)
	}
	return nil
}

func (s *CartService) RemoveItem(ctx context.Context, owner model.CartOwner, itemID uuid.UUID) error {
	item, err := s.ownedItem(ctx, owner, itemID)
	if err != nil {
		return err
	}
	if err := s.cartRepo.Delete(ctx, item.ID); err != nil {
		return fmt.Errorf("delete cart item: %w", err)
	}
	return nil
}

func (s *CartService) Clear(ctx context.Context, owner model.CartOwner) error {
	if err := s.cartRepo.ClearByOwner(ctx, owner); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return nil
}

// MergeGuestCart folds the guest's rows into the user's cart after login.
// Quantities for a service present on both sides add up. Each guest row is
// deleted immediately after its own merge step succeeds, so re-running the
// merge after a partial failure picks up only the unprocessed remainder and
// never double-counts.
func (s *CartService) MergeGuestCart(ctx context.Context, userID uuid.UUID, guestID string) error {
	guestItems, err := s.cartRepo.ListByOwner(ctx, model.GuestOwner(guestID))
	if err != nil {
		return fmt.Errorf("list guest cart: %w", err)
	}
	if len(guestItems) == 0 {
		return nil
	}

	userOwner := model.UserOwner(userID)
	for _, guestItem := range guestItems {
		existing, err := s.cartRepo.GetByOwnerAndService(ctx, userOwner, guestItem.ServiceID)
		if err != nil {
			return fmt.Errorf("lookup user cart item: %w", err)
		}

		if existing != nil {
			err = s.cartRepo.UpdateQuantity(ctx, existing.ID, existing.Quantity+guestItem.Quantity)
		} else {
			err = s.cartRepo.Insert(ctx, &model.CartItem{
				Owner:     userOwner,
				ServiceID: guestItem.ServiceID,
				Quantity:  guestItem.Quantity,
			})
		}
		if err != nil {
			return fmt.Errorf("merge guest cart item %s: %w", guestItem.ID, err)
		}

		if err := s.cartRepo.Delete(ctx, guestItem.ID); err != nil {
			return fmt.Errorf("delete merged guest item %s: %w", guestItem.ID, err)
		}
	}

	s.log.Info("merged guest cart", "guest_id", guestID, "user_id", userID, "items", len(guestItems))
	return nil
}

func (s *CartService) ownedItem(ctx context.Context, owner model.CartOwner, itemID uuid.UUID) (*model.CartItem, error) {
	item, err := s.cartRepo.GetByID(ctx, itemID)
	if err != nil {
		return nil, fmt.Errorf("get cart item: %w", err)
	}
	if item == nil || item.Owner != owner {
		return nil, ErrCartItemNotFound
	}
	return item, nil
}
