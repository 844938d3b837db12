package repository

import (
	"context"
	"time"

	"github.com/polkiloo/orderpipeline/internal/domain/model"
)

// OrderRepository describes persistence operations with orders.
type OrderRepository interface {
	// Insert stores a new order and fails with ErrConditionFailed when the id is taken.
	Insert(ctx context.Context, order *model.Order) error
	Get(ctx context.Context, id string) (*model.Order, error)
	// TransitionStatus moves the order from one status to another and fails with
	// ErrConditionFailed when the stored status differs from from.
	TransitionStatus(ctx context.Context, id string, from, to model.OrderStatus, at time.Time) error
}
