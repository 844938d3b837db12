package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/polkiloo/orderpipeline/internal/bus"
)

const (
	headerLastError     = "x-last-error"
	headerOriginalQueue = "x-original-queue"
)

// Broker implements bus.Publisher and bus.Subscriber on RabbitMQ.
//
// Each topic is a fanout exchange. Each queue q gets a retry queue q.retry whose
// message TTL equals the visibility timeout: a rejected delivery dead-letters into
// q.retry and expires back into q. Once the retry budget is spent the consumer
// moves the message to q.dlq.
type Broker struct {
	conn         *amqp.Connection
	policy       bus.RetryPolicy
	logger       *slog.Logger
	onDeadLetter bus.DeadLetterFunc

	pubMu sync.Mutex
	pub   *amqp.Channel
}

// Dial connects to RabbitMQ and opens a confirm-mode publishing channel.
func Dial(url string, policy bus.RetryPolicy, logger *slog.Logger, onDeadLetter bus.DeadLetterFunc) (*Broker, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.Confirm(false); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("enable confirm mode: %w", err)
	}

	return &Broker{
		conn:         conn,
		policy:       policy,
		logger:       logger,
		onDeadLetter: onDeadLetter,
		pub:          ch,
	}, nil
}

// Declare creates the topic exchange and binds queues with their retry and dead-letter queues.
func (b *Broker) Declare(topic string, queues ...string) error {
	b.pubMu.Lock()
	defer b.pubMu.Unlock()
	return declareTopology(b.pub, topic, queues, b.policy.VisibilityTimeout)
}

// Publish sends body to every queue bound to topic and waits for the broker confirm.
func (b *Broker) Publish(ctx context.Context, topic string, body []byte, attrs bus.Attributes) error {
	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		Timestamp:    time.Now().UTC(),
		Headers:      toTable(attrs),
		Body:         body,
	}
	return b.publish(ctx, topic, "", msg)
}

func (b *Broker) publish(ctx context.Context, exchange, key string, msg amqp.Publishing) error {
	b.pubMu.Lock()
	confirm, err := b.pub.PublishWithDeferredConfirmWithContext(ctx, exchange, key, false, false, msg)
	b.pubMu.Unlock()
	if err != nil {
		return fmt.Errorf("publish: %w", err)
	}

	acked, err := confirm.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("publish confirm: %w", err)
	}
	if !acked {
		return errors.New("publish not acknowledged by broker")
	}
	return nil
}

// Subscribe consumes queue on a dedicated channel with manual acknowledgements.
// Cancelling ctx stops new deliveries and closes the returned channel.
func (b *Broker) Subscribe(ctx context.Context, queue string, prefetch int) (<-chan bus.Delivery, error) {
	if prefetch <= 0 {
		prefetch = 1
	}

	ch, err := b.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.Qos(prefetch, 0, false); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("set qos: %w", err)
	}

	tag := "orderpipeline-" + uuid.NewString()
	msgs, err := ch.Consume(
		queue,
		tag,
		false, // manual ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("consume %s: %w", queue, err)
	}

	out := make(chan bus.Delivery)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				// In-flight deliveries still settle on ch; it closes with the connection.
				_ = ch.Cancel(tag, false)
				return
			case d, ok := <-msgs:
				if !ok {
					b.logger.Warn("consumer channel closed", slog.String("queue", queue))
					return
				}
				select {
				case out <- b.wrap(queue, d):
				case <-ctx.Done():
					_ = d.Nack(false, true)
					_ = ch.Cancel(tag, false)
					return
				}
			}
		}
	}()
	return out, nil
}

// Close releases the publishing channel and the connection.
func (b *Broker) Close() error {
	b.pubMu.Lock()
	defer b.pubMu.Unlock()
	if b.pub != nil {
		_ = b.pub.Close()
	}
	if b.conn != nil {
		return b.conn.Close()
	}
	return nil
}

func (b *Broker) wrap(queue string, d amqp.Delivery) *delivery {
	return &delivery{
		raw:     d,
		queue:   queue,
		attempt: attemptOf(d.Headers, queue),
		policy:  b.policy,
		logger:  b.logger,
		deadLetter: func(ctx context.Context, msg amqp.Publishing) error {
			return b.publish(ctx, "", bus.DeadLetterQueue(queue), msg)
		},
		onDeadLetter: b.onDeadLetter,
	}
}

type delivery struct {
	raw          amqp.Delivery
	queue        string
	attempt      int
	policy       bus.RetryPolicy
	logger       *slog.Logger
	deadLetter   func(ctx context.Context, msg amqp.Publishing) error
	onDeadLetter bus.DeadLetterFunc
	settled      atomic.Bool
}

func (d *delivery) Message() bus.Message {
	return bus.Message{ID: d.raw.MessageId, Body: d.raw.Body, Attributes: fromTable(d.raw.Headers)}
}

func (d *delivery) Attempt() int { return d.attempt }

func (d *delivery) Ack(context.Context) error {
	if !d.settled.CompareAndSwap(false, true) {
		return errAlreadySettled
	}
	return d.raw.Ack(false)
}

func (d *delivery) Nack(ctx context.Context, cause error) error {
	if !d.settled.CompareAndSwap(false, true) {
		return errAlreadySettled
	}

	if !d.policy.Exhausted(d.attempt, cause) {
		d.logger.Warn("message scheduled for redelivery",
			slog.String("queue", d.queue),
			slog.String("message_id", d.raw.MessageId),
			slog.Int("attempt", d.attempt),
			slog.String("error", errorString(cause)))
		// Rejected messages dead-letter into the retry queue.
		return d.raw.Nack(false, false)
	}

	headers := amqp.Table{}
	for k, v := range d.raw.Headers {
		headers[k] = v
	}
	headers[headerLastError] = errorString(cause)
	headers[headerOriginalQueue] = d.queue

	err := d.deadLetter(ctx, amqp.Publishing{
		ContentType:  d.raw.ContentType,
		DeliveryMode: amqp.Persistent,
		MessageId:    d.raw.MessageId,
		Timestamp:    d.raw.Timestamp,
		Headers:      headers,
		Body:         d.raw.Body,
	})
	if err != nil {
		_ = d.raw.Nack(false, true)
		return fmt.Errorf("dead-letter %s: %w", d.queue, err)
	}

	d.logger.Error("message dead-lettered",
		slog.String("queue", d.queue),
		slog.String("message_id", d.raw.MessageId),
		slog.Int("attempt", d.attempt),
		slog.String("error", errorString(cause)))
	if d.onDeadLetter != nil {
		d.onDeadLetter(d.queue, d.Message(), cause)
	}
	return d.raw.Ack(false)
}

var errAlreadySettled = errors.New("delivery already settled")

func errorString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
