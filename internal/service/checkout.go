package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"

	"github.com/techserve/support-api/internal/dto"
	"github.com/techserve/support-api/internal/model"
	"github.com/techserve/support-api/internal/payment"
	"github.com/techserve/support-api/internal/repository"
)

var (
	ErrEmptyCart      = errors.New("cart is empty")
	ErrUserNotFound   = errors.New("user not found")
	ErrInvalidPhone   = errors.New("invalid phone number")
	ErrPaymentSession = errors.New("payment session creation failed")

	// Permissive international format: optional leading +, 5 to 15 digits.
	phonePattern = regexp.MustCompile(`^\+?[0-9]{5,15}$`)
)

const (
	emailQueueName    = "order.emails"
	checkoutKeyTTL    = 24 * time.Hour
	checkoutKeyPrefix = "checkout:"
)

// PaymentProvider creates a hosted payment session for an order.
type PaymentProvider interface {
	CreateSession(ctx context.Context, order *model.Order) (*payment.Session, error)
}

// ResultStore is the slice of redis used to keep checkout responses around
// for idempotency-key replay. *redis.Client satisfies it.
type ResultStore interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

type CheckoutService struct {
	orderRepo repository.OrderRepository
	userRepo  repository.UserRepository
	carts     *CartService
	gateway   PaymentProvider
	results   ResultStore
	amqpCh    *amqp.Channel
	log       *slog.Logger
}

func NewCheckoutService(
	orderRepo repository.OrderRepository,
	userRepo repository.UserRepository,
	carts *CartService,
	gateway PaymentProvider,
	results ResultStore,
	amqpCh *amqp.Channel,
	log *slog.Logger,
) *CheckoutService {
	return &CheckoutService{
		orderRepo: orderRepo,
		userRepo:  userRepo,
		carts:     carts,
		gateway:   gateway,
		results:   results,
		amqpCh:    amqpCh,
		log:       log,
	}
}

// Checkout snapshots the user's cart into an order, requests a payment
// session and hands back the redirect URL. The order and its line snapshots
// are written in one transaction before the gateway is contacted; a gateway
// failure marks the order's payment as failed and leaves the cart intact.
//
// idempotencyKey, when non-empty, guards against duplicate submissions: a
// repeated key returns the stored result of the first successful attempt.
func (s *CheckoutService) Checkout(ctx context.Context, userID uuid.UUID, idempotencyKey string, req dto.CheckoutRequest) (*dto.CheckoutResponse, error) {
	if !phonePattern.MatchString(req.CustomerPhone) {
		return nil, ErrInvalidPhone
	}

	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}

	if resp := s.replayedCheckout(ctx, idempotencyKey); resp != nil {
		return resp, nil
	}

	owner := model.UserOwner(userID)
	cart, err := s.carts.GetCart(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("load cart: %w", err)
	}
	if len(cart.Lines) == 0 {
		return nil, ErrEmptyCart
	}

	order := &model.Order{
		UserID:        userID,
		CustomerName:  req.CustomerName,
		CustomerEmail: req.CustomerEmail,
		CustomerPhone: req.CustomerPhone,
		Address:       req.Address,
		City:          req.City,
		Country:       req.Country,
		PostalCode:    req.PostalCode,
		Status:        model.OrderStatusPending,
		PaymentStatus: model.PaymentStatusPending,
		TotalAmount:   cart.TotalPrice,
	}
	for _, line := range cart.Lines {
		order.Items = append(order.Items, model.OrderItem{
			ServiceID:    line.Service.ID,
			ServiceTitle: line.Service.Title,
			ServicePrice: line.Service.Price,
			Quantity:     line.Item.Quantity,
		})
	}

	if err := s.orderRepo.CreateWithItems(ctx, order); err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	session, err := s.gateway.CreateSession(ctx, order)
	if err != nil {
		if updErr := s.orderRepo.UpdatePaymentStatus(ctx, order.ID, model.PaymentStatusFailed); updErr != nil {
			s.log.Error("mark order payment failed", "order_id", order.ID, "error", updErr)
		}
		return nil, fmt.Errorf("%w: %v", ErrPaymentSession, err)
	}

	if err := s.orderRepo.SetPaymentSession(ctx, order.ID, session.SessionID); err != nil {
		s.log.Error("store payment session id", "order_id", order.ID, "error", err)
	}

	// Everything past the session hand-off is best effort: a failure here
	// must not abort a checkout the gateway has already accepted.
	s.updateBillingProfile(ctx, userID, req)
	s.publishOrderCreated(ctx, order)
	if err := s.carts.Clear(ctx, owner); err != nil {
		s.log.Error("clear cart after checkout", "user_id", userID, "error", err)
	}

	resp := &dto.CheckoutResponse{OrderID: order.ID, SessionID: session.SessionID, URL: session.URL}
	s.storeCheckoutResult(ctx, idempotencyKey, resp)
	return resp, nil
}

func (s *CheckoutService) replayedCheckout(ctx context.Context, key string) *dto.CheckoutResponse {
	if key == "" || s.results == nil {
		return nil
	}
	cached, err := s.results.Get(ctx, checkoutKeyPrefix+key).Result()
	if err != nil {
		return nil
	}
	var resp dto.CheckoutResponse
	if json.Unmarshal([]byte(cached), &resp) != nil {
		return nil
	}
	s.log.Info("replaying checkout result for repeated idempotency key", "order_id", resp.OrderID)
	return &resp
}

func (s *CheckoutService) storeCheckoutResult(ctx context.Context, key string, resp *dto.CheckoutResponse) {
	if key == "" || s.results == nil {
		return
	}
	if data, err := json.Marshal(resp); err == nil {
		s.results.Set(ctx, checkoutKeyPrefix+key, data, checkoutKeyTTL)
	}
}

func (s *CheckoutService) updateBillingProfile(ctx context.Context, userID uuid.UUID, req dto.CheckoutRequest) {
	profile := model.BillingProfile{
		Phone:      req.CustomerPhone,
		Address:    req.Address,
		City:       req.City,
		Country:    req.Country,
		PostalCode: req.PostalCode,
	}
	if err := s.userRepo.UpdateBillingProfile(ctx, userID, profile); err != nil {
		s.log.Error("update billing profile after checkout", "user_id", userID, "error", err)
	}
}

func (s *CheckoutService) publishOrderCreated(ctx context.Context, order *model.Order) {
	if s.amqpCh == nil {
		return
	}
	msg, _ := json.Marshal(model.OrderEmailMessage{OrderID: order.ID, UserID: order.UserID})
	err := s.amqpCh.PublishWithContext(ctx, "", emailQueueName, false, false, amqp.Publishing{
		ContentType:  "application/json",
		Body:         msg,
		DeliveryMode: amqp.Persistent,
	})
	if err != nil {
		s.log.Error("publish order.created", "order_id", order.ID, "error", err)
	}
}
