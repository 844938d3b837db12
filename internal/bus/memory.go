package bus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

const memoryQueueCapacity = 1024

// Memory is an in-process transport with fan-out, competing consumers,
// delayed redelivery and dead-letter queues.
type Memory struct {
	policy       RetryPolicy
	logger       *slog.Logger
	onDeadLetter DeadLetterFunc

	mu       sync.Mutex
	bindings map[string][]string
	queues   map[string]chan *memoryDelivery
	dead     map[string][]Message
	timers   map[*time.Timer]struct{}
	done     chan struct{}
	closed   bool
}

// NewMemory creates an in-process transport.
func NewMemory(policy RetryPolicy, logger *slog.Logger, onDeadLetter DeadLetterFunc) *Memory {
	return &Memory{
		policy:       policy,
		logger:       logger,
		onDeadLetter: onDeadLetter,
		bindings:     make(map[string][]string),
		queues:       make(map[string]chan *memoryDelivery),
		dead:         make(map[string][]Message),
		timers:       make(map[*time.Timer]struct{}),
		done:         make(chan struct{}),
	}
}

// Bind declares queues and subscribes them to topic.
func (m *Memory) Bind(topic string, queues ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, q := range queues {
		m.queueLocked(q)
		m.bindings[topic] = append(m.bindings[topic], q)
	}
}

func (m *Memory) queueLocked(name string) chan *memoryDelivery {
	q, ok := m.queues[name]
	if !ok {
		q = make(chan *memoryDelivery, memoryQueueCapacity)
		m.queues[name] = q
	}
	return q
}

// Publish copies the message into every bound queue.
func (m *Memory) Publish(ctx context.Context, topic string, body []byte, attrs Attributes) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	targets := make([]chan *memoryDelivery, 0, len(m.bindings[topic]))
	names := make([]string, 0, len(m.bindings[topic]))
	for _, q := range m.bindings[topic] {
		targets = append(targets, m.queues[q])
		names = append(names, q)
	}
	m.mu.Unlock()

	msg := Message{ID: uuid.NewString(), Body: append([]byte(nil), body...), Attributes: cloneAttributes(attrs)}
	for i, q := range targets {
		d := &memoryDelivery{bus: m, queue: names[i], msg: msg, attempt: 1}
		select {
		case q <- d:
		case <-ctx.Done():
			return fmt.Errorf("publish to %s: %w", names[i], ctx.Err())
		case <-m.done:
			return ErrClosed
		}
	}
	return nil
}

// Subscribe streams deliveries of queue. Subscribers of one queue compete for messages.
func (m *Memory) Subscribe(ctx context.Context, queue string, prefetch int) (<-chan Delivery, error) {
	if prefetch <= 0 {
		prefetch = 1
	}
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrClosed
	}
	q := m.queueLocked(queue)
	m.mu.Unlock()

	out := make(chan Delivery)
	credits := make(chan struct{}, prefetch)
	go func() {
		defer close(out)
		for {
			select {
			case credits <- struct{}{}:
			case <-ctx.Done():
				return
			case <-m.done:
				return
			}

			var d *memoryDelivery
			select {
			case d = <-q:
			case <-ctx.Done():
				return
			case <-m.done:
				return
			}

			d.release = func() { <-credits }
			select {
			case out <- d:
			case <-ctx.Done():
				m.requeue(d)
				return
			case <-m.done:
				return
			}
		}
	}()
	return out, nil
}

// DeadLetters returns messages dead-lettered from queue.
func (m *Memory) DeadLetters(queue string) []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Message(nil), m.dead[queue]...)
}

// Close stops delivery and cancels pending redeliveries.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	close(m.done)
	for t := range m.timers {
		t.Stop()
	}
	m.timers = nil
	return nil
}

func (m *Memory) requeue(d *memoryDelivery) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	select {
	case m.queues[d.queue] <- &memoryDelivery{bus: m, queue: d.queue, msg: d.msg, attempt: d.attempt}:
	default:
		m.logger.Error("queue full, message dropped", slog.String("queue", d.queue), slog.String("message_id", d.msg.ID))
	}
}

func (m *Memory) redeliverLater(d *memoryDelivery) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	var t *time.Timer
	t = time.AfterFunc(m.policy.VisibilityTimeout, func() {
		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			return
		}
		delete(m.timers, t)
		q := m.queues[d.queue]
		m.mu.Unlock()

		select {
		case q <- &memoryDelivery{bus: m, queue: d.queue, msg: d.msg, attempt: d.attempt + 1}:
		case <-m.done:
		}
	})
	m.timers[t] = struct{}{}
}

func (m *Memory) deadLetter(d *memoryDelivery, cause error) {
	m.mu.Lock()
	m.dead[d.queue] = append(m.dead[d.queue], d.msg)
	m.mu.Unlock()

	m.logger.Error("message dead-lettered",
		slog.String("queue", d.queue),
		slog.String("message_id", d.msg.ID),
		slog.Int("attempt", d.attempt),
		slog.String("error", errorString(cause)))
	if m.onDeadLetter != nil {
		m.onDeadLetter(d.queue, d.msg, cause)
	}
}

type memoryDelivery struct {
	bus     *Memory
	queue   string
	msg     Message
	attempt int
	release func()
	settled atomic.Bool
}

func (d *memoryDelivery) Message() Message { return d.msg }

func (d *memoryDelivery) Attempt() int { return d.attempt }

func (d *memoryDelivery) Ack(context.Context) error {
	if !d.settled.CompareAndSwap(false, true) {
		return errAlreadySettled
	}
	d.release()
	return nil
}

func (d *memoryDelivery) Nack(_ context.Context, cause error) error {
	if !d.settled.CompareAndSwap(false, true) {
		return errAlreadySettled
	}
	defer d.release()

	if d.bus.policy.Exhausted(d.attempt, cause) {
		d.bus.deadLetter(d, cause)
		return nil
	}
	d.bus.logger.Warn("message scheduled for redelivery",
		slog.String("queue", d.queue),
		slog.String("message_id", d.msg.ID),
		slog.Int("attempt", d.attempt),
		slog.Duration("delay", d.bus.policy.VisibilityTimeout),
		slog.String("error", errorString(cause)))
	d.bus.redeliverLater(d)
	return nil
}

var errAlreadySettled = errors.New("delivery already settled")

func cloneAttributes(attrs Attributes) Attributes {
	if attrs == nil {
		return nil
	}
	out := make(Attributes, len(attrs))
	for k, v := range attrs {
		out[k] = v
	}
	return out
}

func errorString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
