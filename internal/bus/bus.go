package bus

import (
	"context"
	"errors"
	"time"
)

// AttributeEventType carries the event type of a published message.
const AttributeEventType = "eventType"

// ErrUndeliverable marks a message that no number of retries can process.
// Transports dead-letter it without spending the retry budget.
var ErrUndeliverable = errors.New("undeliverable message")

// ErrClosed is returned by operations on a closed transport.
var ErrClosed = errors.New("bus closed")

// Attributes are string message headers.
type Attributes map[string]string

// Message is one published event as seen by a consumer.
type Message struct {
	ID         string
	Body       []byte
	Attributes Attributes
}

// Delivery is a received message awaiting settlement.
type Delivery interface {
	Message() Message
	// Attempt is 1 on first delivery.
	Attempt() int
	Ack(ctx context.Context) error
	// Nack schedules redelivery after the visibility timeout, or dead-letters the
	// message once the retry budget is spent or cause wraps ErrUndeliverable.
	Nack(ctx context.Context, cause error) error
}

// Publisher fans a message out to every queue bound to topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, body []byte, attrs Attributes) error
}

// Subscriber streams deliveries from a queue. At most prefetch deliveries are
// outstanding at a time. The channel closes when ctx is done or the transport stops.
type Subscriber interface {
	Subscribe(ctx context.Context, queue string, prefetch int) (<-chan Delivery, error)
}

// RetryPolicy bounds redelivery of failed messages.
type RetryPolicy struct {
	MaxReceives       int
	VisibilityTimeout time.Duration
}

// Exhausted reports whether a failure on attempt should go to the dead-letter queue.
func (p RetryPolicy) Exhausted(attempt int, cause error) bool {
	return errors.Is(cause, ErrUndeliverable) || attempt >= p.MaxReceives
}

// DeadLetterFunc observes messages moved to a dead-letter queue.
type DeadLetterFunc func(queue string, msg Message, cause error)

// DeadLetterQueue names the dead-letter queue of queue.
func DeadLetterQueue(queue string) string {
	return queue + ".dlq"
}
