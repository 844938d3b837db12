package app

import (
	"context"

	"github.com/polkiloo/orderpipeline/internal/domain/model"
	"github.com/polkiloo/orderpipeline/internal/usecase"
)

// HealthChecker reports whether the backing store answers.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// PipelineFacade exposes intake, settlement and notification to transports.
type PipelineFacade struct {
	orders       *usecase.OrderUseCase
	settlement   *usecase.SettlementUseCase
	notification *usecase.NotificationUseCase
	health       HealthChecker
}

func NewPipelineFacade(orders *usecase.OrderUseCase, settlement *usecase.SettlementUseCase, notification *usecase.NotificationUseCase, health HealthChecker) *PipelineFacade {
	return &PipelineFacade{orders: orders, settlement: settlement, notification: notification, health: health}
}

func (f *PipelineFacade) CreateOrder(ctx context.Context, intent model.OrderIntent, requestKey string) (*model.Order, error) {
	return f.orders.Create(ctx, intent, requestKey)
}

func (f *PipelineFacade) Order(ctx context.Context, id string) (*model.Order, error) {
	return f.orders.Get(ctx, id)
}

func (f *PipelineFacade) Health(ctx context.Context) error {
	return f.health.HealthCheck(ctx)
}

func (f *PipelineFacade) SettleOrder(ctx context.Context, event model.OrderEvent) error {
	_, err := f.settlement.Settle(ctx, event)
	return err
}

func (f *PipelineFacade) NotifyOrder(ctx context.Context, event model.OrderEvent) error {
	return f.notification.Notify(ctx, event)
}
