package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/polkiloo/orderpipeline/internal/adapter/content"
	"github.com/polkiloo/orderpipeline/internal/adapter/mail"
	"github.com/polkiloo/orderpipeline/internal/domain/model"
	"github.com/polkiloo/orderpipeline/internal/metrics"
)

// ContentGenerator writes the confirmation email for an order.
type ContentGenerator interface {
	Generate(ctx context.Context, event model.OrderEvent) (content.Email, error)
}

// NotificationUseCase tells the customer an order was received.
type NotificationUseCase struct {
	generator ContentGenerator
	sender    mail.Sender
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// NewNotificationUseCase constructs NotificationUseCase.
func NewNotificationUseCase(generator ContentGenerator, sender mail.Sender, m *metrics.Metrics, logger *slog.Logger) *NotificationUseCase {
	return &NotificationUseCase{generator: generator, sender: sender, metrics: m, logger: logger}
}

// Notify sends one email for event. Generated content falls back to a
// template; only a failed send is returned.
func (u *NotificationUseCase) Notify(ctx context.Context, event model.OrderEvent) error {
	source := metrics.ContentGenerated
	email, err := u.generator.Generate(ctx, event)
	if err != nil {
		u.logger.Warn("content generation failed, using template",
			slog.String("order_id", event.OrderID),
			slog.String("error", err.Error()))
		email = content.Fallback(event)
		source = metrics.ContentFallback
	}

	if err := u.sender.Send(ctx, email.Subject, email.Body); err != nil {
		return fmt.Errorf("send notification for %s: %w", event.OrderID, err)
	}

	u.metrics.NotificationSent(source)
	u.logger.Info("notification sent",
		slog.String("order_id", event.OrderID),
		slog.String("content", source))
	return nil
}
