package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus describes settlement lifecycle.
type OrderStatus string

const (
	OrderStatusPending                 OrderStatus = "PENDING"
	OrderStatusConfirmed               OrderStatus = "CONFIRMED"
	OrderStatusFailedInsufficientStock OrderStatus = "FAILED_INSUFFICIENT_STOCK"
)

// Terminal reports whether no further transition may leave the status.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusConfirmed || s == OrderStatusFailedInsufficientStock
}

// CanTransition reports whether s -> to is an edge of the order state machine.
func (s OrderStatus) CanTransition(to OrderStatus) bool {
	return s == OrderStatusPending && to.Terminal()
}

// OrderIntent is the unvalidated purchase request as received at intake.
type OrderIntent struct {
	CustomerID  string
	ProductID   string
	Quantity    int
	TotalAmount decimal.Decimal
}

// Order describes one customer purchase attempt.
type Order struct {
	ID          string
	CustomerID  string
	ProductID   string
	Quantity    int
	TotalAmount decimal.Decimal
	Status      OrderStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// recordPrecision is the timestamp resolution stores keep (TIMESTAMPTZ holds microseconds).
const recordPrecision = time.Microsecond

// NewOrder builds a pending order for an accepted intent.
func NewOrder(id string, intent OrderIntent, now time.Time) *Order {
	now = now.UTC().Truncate(recordPrecision)
	return &Order{
		ID:          id,
		CustomerID:  intent.CustomerID,
		ProductID:   intent.ProductID,
		Quantity:    intent.Quantity,
		TotalAmount: intent.TotalAmount,
		Status:      OrderStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// SameRecord reports whether other carries the immutable fields written for o.
// Creation times are compared at store precision.
func (o *Order) SameRecord(other *Order) bool {
	if o == nil || other == nil {
		return false
	}
	return o.ID == other.ID &&
		o.CustomerID == other.CustomerID &&
		o.ProductID == other.ProductID &&
		o.Quantity == other.Quantity &&
		o.TotalAmount.Equal(other.TotalAmount) &&
		o.CreatedAt.Round(recordPrecision).Equal(other.CreatedAt.Round(recordPrecision))
}
