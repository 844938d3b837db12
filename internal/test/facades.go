package test

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/polkiloo/orderpipeline/internal/domain/model"
)

// PipelineFacadeStub provides controllable behaviour for HTTP handlers.
type PipelineFacadeStub struct {
	CreateFn func(context.Context, model.OrderIntent, string) (*model.Order, error)
	OrderFn  func(context.Context, string) (*model.Order, error)
	HealthFn func(context.Context) error

	mu      sync.Mutex
	Intents []model.OrderIntent
	Keys    []string
}

// CreateOrder records the call and delegates to CreateFn or returns a pending order.
func (s *PipelineFacadeStub) CreateOrder(ctx context.Context, intent model.OrderIntent, requestKey string) (*model.Order, error) {
	s.mu.Lock()
	s.Intents = append(s.Intents, intent)
	s.Keys = append(s.Keys, requestKey)
	s.mu.Unlock()
	if s.CreateFn != nil {
		return s.CreateFn(ctx, intent, requestKey)
	}
	return &model.Order{ID: "order-1", Status: model.OrderStatusPending}, nil
}

// Order delegates to OrderFn or returns a fixed confirmed order.
func (s *PipelineFacadeStub) Order(ctx context.Context, id string) (*model.Order, error) {
	if s.OrderFn != nil {
		return s.OrderFn(ctx, id)
	}
	return &model.Order{
		ID:          id,
		CustomerID:  "CUST-1",
		ProductID:   "P-1",
		Quantity:    2,
		TotalAmount: decimal.NewFromInt(100),
		Status:      model.OrderStatusConfirmed,
	}, nil
}

// Health delegates to HealthFn.
func (s *PipelineFacadeStub) Health(ctx context.Context) error {
	if s.HealthFn != nil {
		return s.HealthFn(ctx)
	}
	return nil
}
