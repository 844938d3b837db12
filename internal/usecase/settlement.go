package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	domainErrors "github.com/polkiloo/orderpipeline/internal/domain/errors"
	"github.com/polkiloo/orderpipeline/internal/domain/model"
	"github.com/polkiloo/orderpipeline/internal/domain/repository"
	"github.com/polkiloo/orderpipeline/internal/metrics"
)

// SettlementUseCase reserves stock for pending orders.
type SettlementUseCase struct {
	orders    repository.OrderRepository
	inventory repository.InventoryRepository
	metrics   *metrics.Metrics
	logger    *slog.Logger
	now       func() time.Time
}

// NewSettlementUseCase constructs SettlementUseCase.
func NewSettlementUseCase(orders repository.OrderRepository, inventory repository.InventoryRepository, m *metrics.Metrics, logger *slog.Logger) *SettlementUseCase {
	return &SettlementUseCase{orders: orders, inventory: inventory, metrics: m, logger: logger, now: time.Now}
}

// Settle moves the order named by event to its terminal status.
// Lack of stock is a business outcome and returns nil; any other failure is
// returned so the event is redelivered.
func (u *SettlementUseCase) Settle(ctx context.Context, event model.OrderEvent) (model.OrderStatus, error) {
	order, err := u.orders.Get(ctx, event.OrderID)
	if err != nil {
		return "", fmt.Errorf("load order %s: %w", event.OrderID, err)
	}

	if order.Status.Terminal() {
		u.metrics.SettlementOutcome(metrics.SettlementSkipped)
		u.logger.Info("order already settled",
			slog.String("order_id", order.ID),
			slog.String("status", string(order.Status)))
		return order.Status, nil
	}

	status, err := u.reserve(ctx, order)
	if err != nil {
		return "", err
	}

	err = u.orders.TransitionStatus(ctx, order.ID, model.OrderStatusPending, status, u.now())
	if errors.Is(err, domainErrors.ErrConditionFailed) {
		current, gErr := u.orders.Get(ctx, order.ID)
		if gErr != nil {
			return "", fmt.Errorf("reload order %s: %w", order.ID, gErr)
		}
		u.metrics.SettlementOutcome(metrics.SettlementSkipped)
		u.logger.Warn("order settled concurrently",
			slog.String("order_id", order.ID),
			slog.String("status", string(current.Status)))
		return current.Status, nil
	}
	if err != nil {
		return "", fmt.Errorf("update order %s status: %w", order.ID, err)
	}

	if status == model.OrderStatusConfirmed {
		u.metrics.SettlementOutcome(metrics.SettlementConfirmed)
	} else {
		u.metrics.SettlementOutcome(metrics.SettlementInsufficientStock)
	}
	u.logger.Info("order settled",
		slog.String("order_id", order.ID),
		slog.String("product_id", order.ProductID),
		slog.Int("quantity", order.Quantity),
		slog.String("status", string(status)))
	return status, nil
}

// reserve decides the terminal status, decrementing stock when it suffices.
func (u *SettlementUseCase) reserve(ctx context.Context, order *model.Order) (model.OrderStatus, error) {
	stock, err := u.inventory.Stock(ctx, order.ProductID)
	if errors.Is(err, domainErrors.ErrNotFound) {
		stock = 0
	} else if err != nil {
		return "", fmt.Errorf("read stock %s: %w", order.ProductID, err)
	}

	if stock < order.Quantity {
		return model.OrderStatusFailedInsufficientStock, nil
	}

	err = u.inventory.Decrement(ctx, order.ProductID, order.Quantity)
	if errors.Is(err, domainErrors.ErrConditionFailed) {
		u.logger.Info("stock taken by concurrent settlement",
			slog.String("order_id", order.ID),
			slog.String("product_id", order.ProductID))
		return model.OrderStatusFailedInsufficientStock, nil
	}
	if err != nil {
		return "", fmt.Errorf("decrement stock %s: %w", order.ProductID, err)
	}
	return model.OrderStatusConfirmed, nil
}
