package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type User struct {
	ID         uuid.UUID
	Email      string
	Password   string
	FirstName  string
	LastName   string
	Role       string
	Phone      string
	Address    string
	City       string
	Country    string
	PostalCode string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// BillingProfile is the subset of user fields refreshed after a checkout.
type BillingProfile struct {
	Phone      string
	Address    string
	City       string
	Country    string
	PostalCode string
}

type Category struct {
	ID          uuid.UUID
	Name        string
	Slug        string
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Service struct {
	ID              uuid.UUID
	CategoryID      uuid.UUID
	Title           string
	Description     string
	Price           decimal.Decimal
	DurationMinutes int
	Active          bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// CartOwner identifies who a cart row belongs to: an authenticated user or an
// anonymous guest carrying a client-generated UUID. Exactly one side is set.
type CartOwner struct {
	UserID  uuid.UUID
	GuestID string
}

func UserOwner(userID uuid.UUID) CartOwner { return CartOwner{UserID: userID} }

func GuestOwner(guestID string) CartOwner { return CartOwner{GuestID: guestID} }

func (o CartOwner) IsUser() bool { return o.UserID != uuid.Nil }

type CartItem struct {
	ID        uuid.UUID
	Owner     CartOwner
	ServiceID uuid.UUID
	Quantity  int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CartLine pairs a cart row with its catalog service. The price shown is the
// live catalog price; it is only frozen into an OrderItem at checkout.
type CartLine struct {
	Item    CartItem
	Service Service
}

func (l CartLine) Subtotal() decimal.Decimal {
	return l.Service.Price.Mul(decimal.NewFromInt(int64(l.Item.Quantity)))
}

type Cart struct {
	Owner      CartOwner
	Lines      []CartLine
	TotalItems int
	TotalPrice decimal.Decimal
}

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusCompleted OrderStatus = "completed"
	OrderStatusCancelled OrderStatus = "cancelled"
)

type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusPaid    PaymentStatus = "paid"
	PaymentStatusFailed  PaymentStatus = "failed"
)

type Order struct {
	ID               uuid.UUID
	UserID           uuid.UUID
	CustomerName     string
	CustomerEmail    string
	CustomerPhone    string
	Address          string
	City             string
	Country          string
	PostalCode       string
	Status           OrderStatus
	PaymentStatus    PaymentStatus
	PaymentSessionID string
	TotalAmount      decimal.Decimal
	Items            []OrderItem
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// OrderItem snapshots a cart line at checkout time. Title and price are
// denormalized on purpose so historical orders survive catalog edits.
type OrderItem struct {
	ID           uuid.UUID
	OrderID      uuid.UUID
	ServiceID    uuid.UUID
	ServiceTitle string
	ServicePrice decimal.Decimal
	Quantity     int
}

type OrderEmailMessage struct {
	OrderID uuid.UUID `json:"order_id"`
	UserID  uuid.UUID `json:"user_id"`
}
