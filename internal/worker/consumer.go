package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/polkiloo/orderpipeline/internal/bus"
)

const settleTimeout = 5 * time.Second

// Handler processes one message. A returned error triggers redelivery.
type Handler func(ctx context.Context, msg bus.Message) error

// JSON adapts a typed function into a Handler. Bodies that do not decode
// into T are undeliverable.
func JSON[T any](fn func(ctx context.Context, v T) error) Handler {
	return func(ctx context.Context, msg bus.Message) error {
		var v T
		if err := json.Unmarshal(msg.Body, &v); err != nil {
			return fmt.Errorf("decode message %s: %w: %v", msg.ID, bus.ErrUndeliverable, err)
		}
		return fn(ctx, v)
	}
}

// Options configures a Consumer.
type Options struct {
	Queue string
	// EventType, when set, acknowledges and skips messages of other types.
	EventType      string
	BatchSize      int
	HandlerTimeout time.Duration
}

// Consumer runs Handler over a queue with BatchSize concurrent workers.
type Consumer struct {
	subscriber bus.Subscriber
	handler    Handler
	opts       Options
	logger     *slog.Logger

	wg     sync.WaitGroup
	cancel context.CancelFunc
	mu     sync.Mutex
}

// NewConsumer constructs a queue consumer.
func NewConsumer(subscriber bus.Subscriber, handler Handler, opts Options, logger *slog.Logger) *Consumer {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 1
	}
	return &Consumer{
		subscriber: subscriber,
		handler:    handler,
		opts:       opts,
		logger:     logger.With(slog.String("queue", opts.Queue)),
	}
}

// Start subscribes and launches workers. In-flight messages survive
// cancellation of ctx until their handler timeout.
func (c *Consumer) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	subCtx, cancel := context.WithCancel(ctx)
	deliveries, err := c.subscriber.Subscribe(subCtx, c.opts.Queue, c.opts.BatchSize)
	if err != nil {
		cancel()
		return fmt.Errorf("subscribe %s: %w", c.opts.Queue, err)
	}
	c.cancel = cancel

	runCtx := context.WithoutCancel(ctx)
	for i := 0; i < c.opts.BatchSize; i++ {
		c.wg.Add(1)
		go c.worker(runCtx, deliveries)
	}
	c.logger.Info("consumer started", slog.Int("workers", c.opts.BatchSize))
	return nil
}

// Stop ends the subscription and waits for in-flight messages.
func (c *Consumer) Stop() {
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.mu.Unlock()

	c.wg.Wait()
}

func (c *Consumer) worker(ctx context.Context, deliveries <-chan bus.Delivery) {
	defer c.wg.Done()
	for d := range deliveries {
		c.process(ctx, d)
	}
}

func (c *Consumer) process(ctx context.Context, d bus.Delivery) {
	msg := d.Message()
	log := c.logger.With(slog.String("message_id", msg.ID), slog.Int("attempt", d.Attempt()))

	if c.opts.EventType != "" && msg.Attributes[bus.AttributeEventType] != c.opts.EventType {
		log.Info("skipping message of other type", slog.String("event_type", msg.Attributes[bus.AttributeEventType]))
		c.ack(d, log)
		return
	}

	err := c.run(ctx, msg)
	if err == nil {
		c.ack(d, log)
		return
	}

	if errors.Is(err, bus.ErrUndeliverable) {
		log.Error("message undeliverable", slog.String("error", err.Error()))
	} else {
		log.Warn("message processing failed", slog.String("error", err.Error()))
	}
	settleCtx, cancel := context.WithTimeout(ctx, settleTimeout)
	defer cancel()
	if nErr := d.Nack(settleCtx, err); nErr != nil {
		log.Error("nack failed", slog.String("error", nErr.Error()))
	}
}

func (c *Consumer) run(ctx context.Context, msg bus.Message) (err error) {
	if c.opts.HandlerTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.HandlerTimeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return c.handler(ctx, msg)
}

func (c *Consumer) ack(d bus.Delivery, log *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), settleTimeout)
	defer cancel()
	if err := d.Ack(ctx); err != nil {
		log.Error("ack failed", slog.String("error", err.Error()))
	}
}
