package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/techserve/support-api/internal/config"
	"github.com/techserve/support-api/internal/dto"
	"github.com/techserve/support-api/internal/model"
	"github.com/techserve/support-api/internal/payment"
)

type mockOrderRepo struct {
	orders map[uuid.UUID]*model.Order
}

func newMockOrderRepo() *mockOrderRepo {
	return &mockOrderRepo{orders: make(map[uuid.UUID]*model.Order)}
}

func (m *mockOrderRepo) CreateWithItems(_ context.Context, order *model.Order) error {
	order.ID = uuid.New()
	order.CreatedAt = time.Now()
	for i := range order.Items {
		order.Items[i].ID = uuid.New()
		order.Items[i].OrderID = order.ID
	}
	copied := *order
	m.orders[order.ID] = &copied
	return nil
}

func (m *mockOrderRepo) GetByID(_ context.Context, id uuid.UUID) (*model.Order, error) {
	return m.orders[id], nil
}

func (m *mockOrderRepo) ListByUserID(_ context.Context, userID uuid.UUID) ([]model.Order, error) {
	var orders []model.Order
	for _, o := range m.orders {
		if o.UserID == userID {
			orders = append(orders, *o)
		}
	}
	return orders, nil
}

func (m *mockOrderRepo) SetPaymentSession(_ context.Context, id uuid.UUID, sessionID string) error {
	if o, ok := m.orders[id]; ok {
		o.PaymentSessionID = sessionID
	}
	return nil
}

func (m *mockOrderRepo) UpdatePaymentStatus(_ context.Context, id uuid.UUID, status model.PaymentStatus) error {
	if o, ok := m.orders[id]; ok {
		o.PaymentStatus = status
	}
	return nil
}

func (m *mockOrderRepo) only(t *testing.T) *model.Order {
	t.Helper()
	require.Len(t, m.orders, 1)
	for _, o := range m.orders {
		return o
	}
	return nil
}

// fakeResultStore is a map-backed ResultStore.
type fakeResultStore struct {
	values map[string]string
}

func newFakeResultStore() *fakeResultStore {
	return &fakeResultStore{values: make(map[string]string)}
}

func (f *fakeResultStore) Get(_ context.Context, key string) *redis.StringCmd {
	if val, ok := f.values[key]; ok {
		return redis.NewStringResult(val, nil)
	}
	return redis.NewStringResult("", redis.Nil)
}

func (f *fakeResultStore) Set(_ context.Context, key string, value interface{}, _ time.Duration) *redis.StatusCmd {
	f.values[key] = string(value.([]byte))
	return redis.NewStatusResult("OK", nil)
}

type failingGateway struct{}

func (failingGateway) CreateSession(context.Context, *model.Order) (*payment.Session, error) {
	return nil, errors.New("gateway unreachable")
}

func testGateway() *payment.Client {
	return payment.NewClient(config.PaymentConfig{
		APIKey:     "sk_test_local",
		SuccessURL: "http://localhost:3000/checkout/success",
		Timeout:    time.Second,
	})
}

func validCheckoutRequest() dto.CheckoutRequest {
	return dto.CheckoutRequest{
		CustomerName:  "Jamie Doe",
		CustomerEmail: "jamie@example.com",
		CustomerPhone: "+15551234567",
		Address:       "1 Main St",
		City:          "Springfield",
		Country:       "US",
		PostalCode:    "12345",
	}
}

type checkoutFixture struct {
	svc       *CheckoutService
	orderRepo *mockOrderRepo
	userRepo  *mockUserRepo
	cartRepo  *mockCartRepo
	catalog   *mockServiceRepo
	results   *fakeResultStore
	userID    uuid.UUID
}

func newCheckoutFixture(gateway PaymentProvider) *checkoutFixture {
	orderRepo := newMockOrderRepo()
	userRepo := newMockUserRepo()
	cartRepo := newMockCartRepo()
	serviceRepo := newMockServiceRepo()
	catalog := NewCatalogService(serviceRepo, nil)
	carts := NewCartService(cartRepo, catalog, testLogger())
	results := newFakeResultStore()

	user := &model.User{Email: "jamie@example.com", Role: "customer"}
	_ = userRepo.Create(context.Background(), user)

	return &checkoutFixture{
		svc:       NewCheckoutService(orderRepo, userRepo, carts, gateway, results, nil, testLogger()),
		orderRepo: orderRepo,
		userRepo:  userRepo,
		cartRepo:  cartRepo,
		catalog:   serviceRepo,
		results:   results,
		userID:    user.ID,
	}
}

func TestCheckout_EmptyCart(t *testing.T) {
	f := newCheckoutFixture(testGateway())

	_, err := f.svc.Checkout(context.Background(), f.userID, "", validCheckoutRequest())
	assert.ErrorIs(t, err, ErrEmptyCart)
	assert.Empty(t, f.orderRepo.orders)
}

func TestCheckout_UnknownUser(t *testing.T) {
	f := newCheckoutFixture(testGateway())

	_, err := f.svc.Checkout(context.Background(), uuid.New(), "", validCheckoutRequest())
	assert.ErrorIs(t, err, ErrUserNotFound)
	assert.Empty(t, f.orderRepo.orders)
}

func TestCheckout_InvalidPhone(t *testing.T) {
	f := newCheckoutFixture(testGateway())
	req := validCheckoutRequest()
	req.CustomerPhone = "call me"

	_, err := f.svc.Checkout(context.Background(), f.userID, "", req)
	assert.ErrorIs(t, err, ErrInvalidPhone)
	assert.Empty(t, f.orderRepo.orders)
}

func TestCheckout_TestMode(t *testing.T) {
	f := newCheckoutFixture(testGateway())
	owner := model.UserOwner(f.userID)
	x := f.catalog.add("Screen repair", 79.99)
	y := f.catalog.add("Data recovery", 129.50)
	f.cartRepo.seed(owner, x.ID, 2)
	f.cartRepo.seed(owner, y.ID, 1)

	resp, err := f.svc.Checkout(context.Background(), f.userID, "", validCheckoutRequest())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(resp.URL, "http://localhost:3000/checkout/success?"))
	assert.NotEmpty(t, resp.SessionID)

	order := f.orderRepo.only(t)
	assert.Equal(t, model.OrderStatusPending, order.Status)
	assert.Equal(t, model.PaymentStatusPending, order.PaymentStatus)
	assert.Equal(t, resp.SessionID, order.PaymentSessionID)
	assert.True(t, decimal.NewFromFloat(289.48).Equal(order.TotalAmount), "got %s", order.TotalAmount)
	require.Len(t, order.Items, 2)

	byService := map[uuid.UUID]model.OrderItem{}
	for _, item := range order.Items {
		byService[item.ServiceID] = item
	}
	assert.Equal(t, "Screen repair", byService[x.ID].ServiceTitle)
	assert.True(t, x.Price.Equal(byService[x.ID].ServicePrice))
	assert.Equal(t, 2, byService[x.ID].Quantity)
	assert.Equal(t, 1, byService[y.ID].Quantity)

	// Cart is cleared after the session hand-off.
	items, _ := f.cartRepo.ListByOwner(context.Background(), owner)
	assert.Empty(t, items)
}

func TestCheckout_SnapshotSurvivesCatalogEdit(t *testing.T) {
	f := newCheckoutFixture(testGateway())
	owner := model.UserOwner(f.userID)
	x := f.catalog.add("Screen repair", 79.99)
	f.cartRepo.seed(owner, x.ID, 1)

	_, err := f.svc.Checkout(context.Background(), f.userID, "", validCheckoutRequest())
	require.NoError(t, err)

	// Reprice the catalog entry; the frozen order line must not move.
	x.Price = decimal.NewFromFloat(999.99)
	x.Title = "Screen repair (premium)"

	order := f.orderRepo.only(t)
	assert.Equal(t, "Screen repair", order.Items[0].ServiceTitle)
	assert.True(t, decimal.NewFromFloat(79.99).Equal(order.Items[0].ServicePrice))
}

func TestCheckout_GatewayFailure(t *testing.T) {
	f := newCheckoutFixture(failingGateway{})
	owner := model.UserOwner(f.userID)
	x := f.catalog.add("Screen repair", 79.99)
	f.cartRepo.seed(owner, x.ID, 1)

	_, err := f.svc.Checkout(context.Background(), f.userID, "", validCheckoutRequest())
	require.ErrorIs(t, err, ErrPaymentSession)

	// The order exists with a failed payment and the cart is untouched.
	order := f.orderRepo.only(t)
	assert.Equal(t, model.PaymentStatusFailed, order.PaymentStatus)

	items, _ := f.cartRepo.ListByOwner(context.Background(), owner)
	assert.Len(t, items, 1)
}

func TestCheckout_BillingProfileUpdated(t *testing.T) {
	f := newCheckoutFixture(testGateway())
	owner := model.UserOwner(f.userID)
	x := f.catalog.add("Screen repair", 79.99)
	f.cartRepo.seed(owner, x.ID, 1)

	_, err := f.svc.Checkout(context.Background(), f.userID, "", validCheckoutRequest())
	require.NoError(t, err)

	user, _ := f.userRepo.GetByID(context.Background(), f.userID)
	assert.Equal(t, "+15551234567", user.Phone)
	assert.Equal(t, "Springfield", user.City)
}

func TestCheckout_RepeatedIdempotencyKey(t *testing.T) {
	f := newCheckoutFixture(testGateway())
	owner := model.UserOwner(f.userID)
	x := f.catalog.add("Screen repair", 79.99)
	f.cartRepo.seed(owner, x.ID, 1)

	first, err := f.svc.Checkout(context.Background(), f.userID, "key-1", validCheckoutRequest())
	require.NoError(t, err)

	// A retried submission must replay the stored result, even though the
	// cart has been refilled in the meantime.
	f.cartRepo.seed(owner, x.ID, 3)

	second, err := f.svc.Checkout(context.Background(), f.userID, "key-1", validCheckoutRequest())
	require.NoError(t, err)
	assert.Equal(t, first.OrderID, second.OrderID)
	assert.Equal(t, first.SessionID, second.SessionID)
	assert.Equal(t, first.URL, second.URL)
	assert.Len(t, f.orderRepo.orders, 1)
}

func TestCheckout_DistinctIdempotencyKeys(t *testing.T) {
	f := newCheckoutFixture(testGateway())
	owner := model.UserOwner(f.userID)
	x := f.catalog.add("Screen repair", 79.99)

	f.cartRepo.seed(owner, x.ID, 1)
	first, err := f.svc.Checkout(context.Background(), f.userID, "key-1", validCheckoutRequest())
	require.NoError(t, err)

	f.cartRepo.seed(owner, x.ID, 1)
	second, err := f.svc.Checkout(context.Background(), f.userID, "key-2", validCheckoutRequest())
	require.NoError(t, err)

	assert.NotEqual(t, first.OrderID, second.OrderID)
	assert.Len(t, f.orderRepo.orders, 2)
}

func TestCheckout_GatewayFailureNotReplayed(t *testing.T) {
	f := newCheckoutFixture(failingGateway{})
	owner := model.UserOwner(f.userID)
	x := f.catalog.add("Screen repair", 79.99)
	f.cartRepo.seed(owner, x.ID, 1)

	_, err := f.svc.Checkout(context.Background(), f.userID, "key-1", validCheckoutRequest())
	require.ErrorIs(t, err, ErrPaymentSession)

	// Only successful responses are stored; the retry goes to the gateway.
	assert.Empty(t, f.results.values)
}

func TestCheckout_ProfileUpdateFailureDoesNotAbort(t *testing.T) {
	f := newCheckoutFixture(testGateway())
	f.userRepo.profileErr = errors.New("profiles table unavailable")
	owner := model.UserOwner(f.userID)
	x := f.catalog.add("Screen repair", 79.99)
	f.cartRepo.seed(owner, x.ID, 1)

	resp, err := f.svc.Checkout(context.Background(), f.userID, "", validCheckoutRequest())
	require.NoError(t, err)
	assert.NotEmpty(t, resp.URL)
	assert.Len(t, f.orderRepo.orders, 1)
}
