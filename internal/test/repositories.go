package test

import (
	"context"
	"time"

	"github.com/polkiloo/orderpipeline/internal/domain/model"
	"github.com/polkiloo/orderpipeline/internal/domain/repository"
)

// OrderRepositoryStub delegates to Fn fields, falling back to Base when set.
type OrderRepositoryStub struct {
	Base               repository.OrderRepository
	InsertFn           func(context.Context, *model.Order) error
	GetFn              func(context.Context, string) (*model.Order, error)
	TransitionStatusFn func(context.Context, string, model.OrderStatus, model.OrderStatus, time.Time) error
}

// Insert runs InsertFn or the base repository.
func (s *OrderRepositoryStub) Insert(ctx context.Context, order *model.Order) error {
	if s.InsertFn != nil {
		return s.InsertFn(ctx, order)
	}
	return s.Base.Insert(ctx, order)
}

// Get runs GetFn or the base repository.
func (s *OrderRepositoryStub) Get(ctx context.Context, id string) (*model.Order, error) {
	if s.GetFn != nil {
		return s.GetFn(ctx, id)
	}
	return s.Base.Get(ctx, id)
}

// TransitionStatus runs TransitionStatusFn or the base repository.
func (s *OrderRepositoryStub) TransitionStatus(ctx context.Context, id string, from, to model.OrderStatus, at time.Time) error {
	if s.TransitionStatusFn != nil {
		return s.TransitionStatusFn(ctx, id, from, to, at)
	}
	return s.Base.TransitionStatus(ctx, id, from, to, at)
}

// InventoryRepositoryStub delegates to Fn fields, falling back to Base when set.
type InventoryRepositoryStub struct {
	Base        repository.InventoryRepository
	StockFn     func(context.Context, string) (int, error)
	DecrementFn func(context.Context, string, int) error
}

// Stock runs StockFn or the base repository.
func (s *InventoryRepositoryStub) Stock(ctx context.Context, productID string) (int, error) {
	if s.StockFn != nil {
		return s.StockFn(ctx, productID)
	}
	return s.Base.Stock(ctx, productID)
}

// Decrement runs DecrementFn or the base repository.
func (s *InventoryRepositoryStub) Decrement(ctx context.Context, productID string, quantity int) error {
	if s.DecrementFn != nil {
		return s.DecrementFn(ctx, productID, quantity)
	}
	return s.Base.Decrement(ctx, productID, quantity)
}
