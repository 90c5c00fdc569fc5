package repository

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/techserve/support-api/internal/model"
)

func seedCategory(t *testing.T) *model.Category {
	t.Helper()
	cat := &model.Category{Name: "Repairs", Slug: "repairs", Description: "Hardware repairs"}
	require.NoError(t, NewCategoryRepository(testPool).Create(context.Background(), cat))
	return cat
}

func seedService(t *testing.T, categoryID uuid.UUID, title string, price float64) *model.Service {
	t.Helper()
	svc := &model.Service{
		CategoryID:      categoryID,
		Title:           title,
		Description:     "desc",
		Price:           decimal.NewFromFloat(price),
		DurationMinutes: 60,
		Active:          true,
	}
	require.NoError(t, NewServiceRepository(testPool).Create(context.Background(), svc))
	return svc
}

func TestUserRepo_CreateAndGetByEmail(t *testing.T) {
	cleanupTable(t, "order_items", "orders", "cart_items", "users")

	repo := NewUserRepository(testPool)
	ctx := context.Background()

	user := &model.User{
		Email: "test@example.com", Password: "hashed",
		FirstName: "John", LastName: "Doe", Role: "customer",
	}
	require.NoError(t, repo.Create(ctx, user))
	assert.NotEqual(t, uuid.Nil, user.ID)

	found, err := repo.GetByEmail(ctx, "test@example.com")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, user.ID, found.ID)
}

func TestUserRepo_UpdateBillingProfile(t *testing.T) {
	cleanupTable(t, "order_items", "orders", "cart_items", "users")

	repo := NewUserRepository(testPool)
	ctx := context.Background()

	user := &model.User{Email: "billing@example.com", Password: "hashed", Role: "customer"}
	require.NoError(t, repo.Create(ctx, user))

	require.NoError(t, repo.UpdateBillingProfile(ctx, user.ID, model.BillingProfile{
		Phone: "+15551234567", Address: "1 Main St", City: "Springfield", Country: "US", PostalCode: "12345",
	}))

	found, err := repo.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "+15551234567", found.Phone)
	assert.Equal(t, "Springfield", found.City)
}

func TestServiceRepo_CRUD(t *testing.T) {
	cleanupTable(t, "order_items", "orders", "cart_items", "services", "categories")

	repo := NewServiceRepository(testPool)
	ctx := context.Background()
	cat := seedCategory(t)

	svc := seedService(t, cat.ID, "Laptop diagnostics", 49.99)
	assert.NotEqual(t, uuid.Nil, svc.ID)

	found, err := repo.GetByID(ctx, svc.ID)
	require.NoError(t, err)
	assert.Equal(t, "Laptop diagnostics", found.Title)

	svc.Title = "Desktop diagnostics"
	require.NoError(t, repo.Update(ctx, svc))

	found, _ = repo.GetByID(ctx, svc.ID)
	assert.Equal(t, "Desktop diagnostics", found.Title)

	list, total, err := repo.List(ctx, 20, 0, "", "created_at", "desc", &cat.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Len(t, list, 1)

	require.NoError(t, repo.Delete(ctx, svc.ID))
	found, _ = repo.GetByID(ctx, svc.ID)
	assert.Nil(t, found)
}

func TestCartRepo_OwnerScoping(t *testing.T) {
	cleanupTable(t, "cart_items", "services", "categories", "users")

	repo := NewCartRepository(testPool)
	ctx := context.Background()
	cat := seedCategory(t)
	svc := seedService(t, cat.ID, "Screen repair", 79.99)

	userRepo := NewUserRepository(testPool)
	user := &model.User{Email: "cart@example.com", Password: "hashed", Role: "customer"}
	require.NoError(t, userRepo.Create(ctx, user))

	userOwner := model.UserOwner(user.ID)
	guestOwner := model.GuestOwner(uuid.NewString())

	require.NoError(t, repo.Insert(ctx, &model.CartItem{Owner: userOwner, ServiceID: svc.ID, Quantity: 2}))
	require.NoError(t, repo.Insert(ctx, &model.CartItem{Owner: guestOwner, ServiceID: svc.ID, Quantity: 1}))

	userItems, err := repo.ListByOwner(ctx, userOwner)
	require.NoError(t, err)
	require.Len(t, userItems, 1)
	assert.Equal(t, 2, userItems[0].Quantity)
	assert.Equal(t, userOwner, userItems[0].Owner)

	guestItems, err := repo.ListByOwner(ctx, guestOwner)
	require.NoError(t, err)
	require.Len(t, guestItems, 1)

	found, err := repo.GetByOwnerAndService(ctx, guestOwner, svc.ID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, 1, found.Quantity)

	require.NoError(t, repo.UpdateQuantity(ctx, found.ID, 4))
	found, _ = repo.GetByID(ctx, found.ID)
	assert.Equal(t, 4, found.Quantity)

	// Clearing one owner must not touch the other.
	require.NoError(t, repo.ClearByOwner(ctx, guestOwner))
	guestItems, _ = repo.ListByOwner(ctx, guestOwner)
	assert.Empty(t, guestItems)
	userItems, _ = repo.ListByOwner(ctx, userOwner)
	assert.Len(t, userItems, 1)
}

func TestOrderRepo_CreateWithItems(t *testing.T) {
	cleanupTable(t, "order_items", "orders", "users")

	repo := NewOrderRepository(testPool)
	ctx := context.Background()

	userRepo := NewUserRepository(testPool)
	user := &model.User{Email: "order@example.com", Password: "hashed", Role: "customer"}
	require.NoError(t, userRepo.Create(ctx, user))

	order := &model.Order{
		UserID:        user.ID,
		CustomerName:  "Jamie Doe",
		CustomerEmail: "jamie@example.com",
		CustomerPhone: "+15551234567",
		Address:       "1 Main St", City: "Springfield", Country: "US", PostalCode: "12345",
		Status:        model.OrderStatusPending,
		PaymentStatus: model.PaymentStatusPending,
		TotalAmount:   decimal.NewFromFloat(289.48),
		Items: []model.OrderItem{
			{ServiceID: uuid.New(), ServiceTitle: "Screen repair", ServicePrice: decimal.NewFromFloat(79.99), Quantity: 2},
			{ServiceID: uuid.New(), ServiceTitle: "Data recovery", ServicePrice: decimal.NewFromFloat(129.50), Quantity: 1},
		},
	}
	require.NoError(t, repo.CreateWithItems(ctx, order))

	found, err := repo.GetByID(ctx, order.ID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Len(t, found.Items, 2)
	assert.True(t, decimal.NewFromFloat(289.48).Equal(found.TotalAmount))
	assert.Equal(t, model.PaymentStatusPending, found.PaymentStatus)

	require.NoError(t, repo.SetPaymentSession(ctx, order.ID, "sess_abc123"))
	require.NoError(t, repo.UpdatePaymentStatus(ctx, order.ID, model.PaymentStatusFailed))

	found, _ = repo.GetByID(ctx, order.ID)
	assert.Equal(t, "sess_abc123", found.PaymentSessionID)
	assert.Equal(t, model.PaymentStatusFailed, found.PaymentStatus)

	orders, err := repo.ListByUserID(ctx, user.ID)
	require.NoError(t, err)
	assert.Len(t, orders, 1)
}
