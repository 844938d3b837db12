package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

// CreateOrderRequest is the intake payload. Pointers distinguish absent fields.
type CreateOrderRequest struct {
	CustomerID  *string          `json:"customerId" binding:"required"`
	ProductID   *string          `json:"productId" binding:"required"`
	Quantity    *int             `json:"quantity" binding:"required"`
	TotalAmount *decimal.Decimal `json:"totalAmount" binding:"required"`
}

// CreateOrderResponse acknowledges an accepted order.
type CreateOrderResponse struct {
	OrderID string `json:"orderId"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// OrderResponse describes the current state of an order.
type OrderResponse struct {
	OrderID     string          `json:"orderId"`
	CustomerID  string          `json:"customerId"`
	ProductID   string          `json:"productId"`
	Quantity    int             `json:"quantity"`
	TotalAmount decimal.Decimal `json:"totalAmount"`
	Status      string          `json:"status"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// ErrorResponse carries a client-visible failure.
type ErrorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}
