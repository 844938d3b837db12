package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// EventTypeOrderCreated tags events published once an order is durably recorded.
const EventTypeOrderCreated = "ORDER_CREATED"

// OrderEvent is the fan-out payload delivered to every consumer queue.
type OrderEvent struct {
	OrderID     string          `json:"orderId"`
	CustomerID  string          `json:"customerId"`
	ProductID   string          `json:"productId"`
	Quantity    int             `json:"quantity"`
	TotalAmount decimal.Decimal `json:"totalAmount"`
	Timestamp   time.Time       `json:"timestamp"`
}

// NewOrderCreatedEvent copies the fields of a freshly recorded order.
func NewOrderCreatedEvent(order *Order) OrderEvent {
	return OrderEvent{
		OrderID:     order.ID,
		CustomerID:  order.CustomerID,
		ProductID:   order.ProductID,
		Quantity:    order.Quantity,
		TotalAmount: order.TotalAmount,
		Timestamp:   order.CreatedAt,
	}
}
