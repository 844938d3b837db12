package usecase

import (
	"log/slog"

	"go.uber.org/fx"

	"github.com/polkiloo/orderpipeline/internal/adapter/content"
	"github.com/polkiloo/orderpipeline/internal/adapter/idempotency"
	"github.com/polkiloo/orderpipeline/internal/adapter/mail"
	"github.com/polkiloo/orderpipeline/internal/adapter/risk"
	"github.com/polkiloo/orderpipeline/internal/bus"
	"github.com/polkiloo/orderpipeline/internal/config"
	"github.com/polkiloo/orderpipeline/internal/domain/repository"
	"github.com/polkiloo/orderpipeline/internal/metrics"
)

// Module provides pipeline use cases to the fx container.
var Module = fx.Provide(
	newOrderUseCase,
	NewSettlementUseCase,
	newNotificationUseCase,
)

type orderParams struct {
	fx.In

	Orders      repository.OrderRepository
	Gate        *risk.Gate
	Publisher   bus.Publisher
	Idempotency idempotency.Store
	Metrics     *metrics.Metrics `optional:"true"`
	Config      *config.Config
	Logger      *slog.Logger
}

func newOrderUseCase(p orderParams) *OrderUseCase {
	return NewOrderUseCase(p.Orders, p.Gate, p.Publisher, p.Idempotency, p.Metrics, p.Logger, OrderOptions{
		Topic:          p.Config.EventsTopic,
		PublishTimeout: p.Config.PublishTimeout,
	})
}

type notificationParams struct {
	fx.In

	Generator *content.Generator
	Sender    mail.Sender
	Metrics   *metrics.Metrics `optional:"true"`
	Logger    *slog.Logger
}

func newNotificationUseCase(p notificationParams) *NotificationUseCase {
	return NewNotificationUseCase(p.Generator, p.Sender, p.Metrics, p.Logger)
}
