package transport

import (
	"context"
	"log/slog"

	"go.uber.org/fx"

	"github.com/polkiloo/orderpipeline/internal/bus"
	"github.com/polkiloo/orderpipeline/internal/bus/rabbitmq"
	"github.com/polkiloo/orderpipeline/internal/config"
	"github.com/polkiloo/orderpipeline/internal/metrics"
)

// Transport is an event bus with declared topology.
type Transport interface {
	bus.Publisher
	bus.Subscriber
	Close() error
}

// Module wires the configured event bus.
var Module = fx.Options(
	fx.Provide(newTransport),
	fx.Provide(
		func(t Transport) bus.Publisher { return t },
		func(t Transport) bus.Subscriber { return t },
	),
	fx.Invoke(registerLifecycle),
)

var dialRabbit = func(url string, policy bus.RetryPolicy, logger *slog.Logger, onDeadLetter bus.DeadLetterFunc) (rabbitBroker, error) {
	b, err := rabbitmq.Dial(url, policy, logger, onDeadLetter)
	if err != nil {
		return nil, err
	}
	return b, nil
}

type rabbitBroker interface {
	Transport
	Declare(topic string, queues ...string) error
}

type transportParams struct {
	fx.In

	Config  *config.Config
	Logger  *slog.Logger
	Metrics *metrics.Metrics `optional:"true"`
}

func newTransport(p transportParams) (Transport, error) {
	policy := bus.RetryPolicy{
		MaxReceives:       p.Config.MaxReceives,
		VisibilityTimeout: p.Config.VisibilityTimeout,
	}
	queues := []string{p.Config.InventoryQueue, p.Config.NotificationQueue}

	if p.Config.AMQPURL == "" {
		p.Logger.Warn("AMQP_URL not set, using in-memory bus")
		m := bus.NewMemory(policy, p.Logger, p.Metrics.DeadLetter)
		m.Bind(p.Config.EventsTopic, queues...)
		return m, nil
	}

	b, err := dialRabbit(p.Config.AMQPURL, policy, p.Logger, p.Metrics.DeadLetter)
	if err != nil {
		return nil, err
	}
	if err := b.Declare(p.Config.EventsTopic, queues...); err != nil {
		_ = b.Close()
		return nil, err
	}
	return b, nil
}

func registerLifecycle(lc fx.Lifecycle, t Transport) {
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return t.Close()
		},
	})
}
