package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/polkiloo/orderpipeline/internal/adapter/idempotency"
	"github.com/polkiloo/orderpipeline/internal/adapter/risk"
	"github.com/polkiloo/orderpipeline/internal/bus"
	domainErrors "github.com/polkiloo/orderpipeline/internal/domain/errors"
	"github.com/polkiloo/orderpipeline/internal/domain/model"
	"github.com/polkiloo/orderpipeline/internal/domain/repository"
	"github.com/polkiloo/orderpipeline/internal/metrics"
)

// insertAttempts bounds retries of a conditional insert whose outcome is unknown.
const insertAttempts = 2

// RiskAssessor classifies an order intent. It never fails.
type RiskAssessor interface {
	Assess(ctx context.Context, intent model.OrderIntent) risk.Verdict
}

// OrderOptions configures OrderUseCase.
type OrderOptions struct {
	Topic          string
	PublishTimeout time.Duration
}

// OrderUseCase accepts orders and queues them for settlement and notification.
type OrderUseCase struct {
	orders      repository.OrderRepository
	risk        RiskAssessor
	publisher   bus.Publisher
	idempotency idempotency.Store
	metrics     *metrics.Metrics
	logger      *slog.Logger
	opts        OrderOptions

	newID func() string
	now   func() time.Time
}

// NewOrderUseCase constructs OrderUseCase.
func NewOrderUseCase(
	orders repository.OrderRepository,
	gate RiskAssessor,
	publisher bus.Publisher,
	store idempotency.Store,
	m *metrics.Metrics,
	logger *slog.Logger,
	opts OrderOptions,
) *OrderUseCase {
	if store == nil {
		store = idempotency.Noop{}
	}
	return &OrderUseCase{
		orders:      orders,
		risk:        gate,
		publisher:   publisher,
		idempotency: store,
		metrics:     m,
		logger:      logger,
		opts:        opts,
		newID:       uuid.NewString,
		now:         time.Now,
	}
}

// Create validates, screens, records and publishes a new order.
// requestKey is the optional client idempotency key; empty disables replay detection.
func (u *OrderUseCase) Create(ctx context.Context, intent model.OrderIntent, requestKey string) (*model.Order, error) {
	intent, err := ValidateIntent(intent)
	if err != nil {
		u.metrics.OrderOutcome(metrics.OrderInvalid)
		return nil, err
	}

	if requestKey != "" {
		order, err := u.replay(ctx, requestKey)
		if err != nil || order != nil {
			return order, err
		}
		locked, err := u.idempotency.TryLock(ctx, requestKey)
		if err != nil {
			u.metrics.OrderOutcome(metrics.OrderError)
			return nil, fmt.Errorf("lock request key: %w", err)
		}
		if !locked {
			u.metrics.OrderOutcome(metrics.OrderDuplicate)
			return nil, domainErrors.ErrDuplicateRequest
		}
	}

	order, err := u.create(ctx, intent)
	if requestKey != "" {
		u.settleRequestKey(ctx, requestKey, order, err)
	}
	return order, err
}

func (u *OrderUseCase) create(ctx context.Context, intent model.OrderIntent) (*model.Order, error) {
	verdict := u.risk.Assess(ctx, intent)
	if verdict.Fraudulent {
		u.metrics.OrderOutcome(metrics.OrderRejected)
		u.logger.Info("order rejected by risk check",
			slog.String("customer_id", intent.CustomerID),
			slog.String("product_id", intent.ProductID),
			slog.String("reason", verdict.Reason))
		return nil, &domainErrors.RiskRejectionError{Reason: verdict.Reason}
	}

	order := model.NewOrder(u.newID(), intent, u.now())
	if err := u.insert(ctx, order); err != nil {
		u.metrics.OrderOutcome(metrics.OrderError)
		return nil, err
	}

	if err := u.publish(ctx, order); err != nil {
		u.metrics.OrderOutcome(metrics.OrderError)
		u.logger.Error("order recorded but not published",
			slog.String("order_id", order.ID),
			slog.String("error", err.Error()))
		return nil, err
	}

	u.metrics.OrderOutcome(metrics.OrderAccepted)
	u.logger.Info("order accepted",
		slog.String("order_id", order.ID),
		slog.String("product_id", order.ProductID),
		slog.Int("quantity", order.Quantity),
		slog.Bool("risk_checked", verdict.Available))
	return order, nil
}

// insert writes order once. A condition failure after an unknown outcome is
// resolved by reading the record back.
func (u *OrderUseCase) insert(ctx context.Context, order *model.Order) error {
	var err error
	for attempt := 1; attempt <= insertAttempts; attempt++ {
		err = u.orders.Insert(ctx, order)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, domainErrors.ErrConditionFailed):
			return u.confirmExisting(ctx, order)
		case ctx.Err() != nil:
			return fmt.Errorf("insert order: %w", err)
		}
		u.logger.Warn("order insert failed",
			slog.String("order_id", order.ID),
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()))
	}
	return fmt.Errorf("insert order: %w", err)
}

func (u *OrderUseCase) confirmExisting(ctx context.Context, order *model.Order) error {
	stored, err := u.orders.Get(ctx, order.ID)
	if err != nil {
		return fmt.Errorf("read back order %s: %w", order.ID, err)
	}
	if !order.SameRecord(stored) {
		return fmt.Errorf("order %s: %w", order.ID, domainErrors.ErrAlreadyExists)
	}
	return nil
}

func (u *OrderUseCase) publish(ctx context.Context, order *model.Order) error {
	body, err := json.Marshal(model.NewOrderCreatedEvent(order))
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	if u.opts.PublishTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, u.opts.PublishTimeout)
		defer cancel()
	}

	attrs := bus.Attributes{bus.AttributeEventType: model.EventTypeOrderCreated}
	if err := u.publisher.Publish(ctx, u.opts.Topic, body, attrs); err != nil {
		return fmt.Errorf("publish order event: %w", err)
	}
	return nil
}

func (u *OrderUseCase) replay(ctx context.Context, requestKey string) (*model.Order, error) {
	orderID, found, err := u.idempotency.Recall(ctx, requestKey)
	if err != nil {
		u.metrics.OrderOutcome(metrics.OrderError)
		return nil, fmt.Errorf("recall request key: %w", err)
	}
	if !found {
		return nil, nil
	}

	order, err := u.orders.Get(ctx, orderID)
	if err != nil {
		u.metrics.OrderOutcome(metrics.OrderError)
		return nil, fmt.Errorf("load replayed order %s: %w", orderID, err)
	}
	u.metrics.OrderOutcome(metrics.OrderReplayed)
	return order, nil
}

// settleRequestKey stores the outcome of a successful keyed request and frees the claim.
func (u *OrderUseCase) settleRequestKey(ctx context.Context, requestKey string, order *model.Order, err error) {
	if err == nil {
		if rErr := u.idempotency.Remember(ctx, requestKey, order.ID); rErr != nil {
			u.logger.Warn("remember request key failed",
				slog.String("order_id", order.ID),
				slog.String("error", rErr.Error()))
		}
	}
	// Replays are answered from the remembered result; the claim is no longer needed.
	if rErr := u.idempotency.Release(ctx, requestKey); rErr != nil {
		u.logger.Warn("release request key failed", slog.String("error", rErr.Error()))
	}
}

// Get returns the current state of an order.
func (u *OrderUseCase) Get(ctx context.Context, id string) (*model.Order, error) {
	return u.orders.Get(ctx, id)
}
