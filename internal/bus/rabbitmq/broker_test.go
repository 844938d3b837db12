package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/polkiloo/orderpipeline/internal/bus"
)

type declaredQueue struct {
	name string
	args amqp.Table
}

type topologyRecorder struct {
	exchanges []string
	kinds     []string
	queues    []declaredQueue
	bindings  [][2]string
	failOn    string
}

func (r *topologyRecorder) ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error {
	if r.failOn == name {
		return errors.New("boom")
	}
	r.exchanges = append(r.exchanges, name)
	r.kinds = append(r.kinds, kind)
	return nil
}

func (r *topologyRecorder) QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error) {
	if r.failOn == name {
		return amqp.Queue{}, errors.New("boom")
	}
	r.queues = append(r.queues, declaredQueue{name: name, args: args})
	return amqp.Queue{Name: name}, nil
}

func (r *topologyRecorder) QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error {
	r.bindings = append(r.bindings, [2]string{exchange, name})
	return nil
}

type ackRecorder struct {
	acks     int
	nacks    int
	requeued bool
}

func (a *ackRecorder) Ack(uint64, bool) error { a.acks++; return nil }

func (a *ackRecorder) Nack(_ uint64, _ bool, requeue bool) error {
	a.nacks++
	a.requeued = requeue
	return nil
}

func (a *ackRecorder) Reject(uint64, bool) error { return nil }

func TestDeclareTopology(t *testing.T) {
	rec := &topologyRecorder{}
	if err := declareTopology(rec, "order-events", []string{"inventory", "notification"}, 30*time.Second); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(rec.exchanges) != 1 || rec.exchanges[0] != "order-events" || rec.kinds[0] != "fanout" {
		t.Fatalf("unexpected exchanges %v %v", rec.exchanges, rec.kinds)
	}
	if len(rec.queues) != 6 {
		t.Fatalf("expected work, retry and dead-letter queue per consumer, got %d", len(rec.queues))
	}

	work := rec.queues[0]
	if work.name != "inventory" || work.args["x-dead-letter-routing-key"] != "inventory.retry" {
		t.Fatalf("unexpected work queue %+v", work)
	}
	retry := rec.queues[1]
	if retry.name != "inventory.retry" || retry.args["x-message-ttl"] != int64(30000) || retry.args["x-dead-letter-routing-key"] != "inventory" {
		t.Fatalf("unexpected retry queue %+v", retry)
	}
	if rec.queues[2].name != "inventory.dlq" {
		t.Fatalf("unexpected dead-letter queue %+v", rec.queues[2])
	}
	if len(rec.bindings) != 2 || rec.bindings[1] != [2]string{"order-events", "notification"} {
		t.Fatalf("unexpected bindings %v", rec.bindings)
	}
}

func TestDeclareTopologyErrors(t *testing.T) {
	for _, failOn := range []string{"order-events", "inventory", "inventory.retry", "inventory.dlq"} {
		rec := &topologyRecorder{failOn: failOn}
		if err := declareTopology(rec, "order-events", []string{"inventory"}, time.Second); err == nil {
			t.Fatalf("expected error when %s fails", failOn)
		}
	}
}

func TestAttemptOf(t *testing.T) {
	cases := []struct {
		name    string
		headers amqp.Table
		want    int
	}{
		{"no headers", nil, 1},
		{"foreign queue", amqp.Table{"x-death": []interface{}{amqp.Table{"queue": "other", "reason": "rejected", "count": int64(4)}}}, 1},
		{"expired entries ignored", amqp.Table{"x-death": []interface{}{
			amqp.Table{"queue": "inventory.retry", "reason": "expired", "count": int64(2)},
			amqp.Table{"queue": "inventory", "reason": "rejected", "count": int64(2)},
		}}, 3},
		{"malformed", amqp.Table{"x-death": "nope"}, 1},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := attemptOf(tc.headers, "inventory"); got != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, got)
			}
		})
	}
}

func TestTableConversion(t *testing.T) {
	if toTable(nil) != nil {
		t.Fatal("expected nil table for empty attributes")
	}
	table := toTable(bus.Attributes{bus.AttributeEventType: "ORDER_CREATED"})
	attrs := fromTable(amqp.Table{bus.AttributeEventType: table[bus.AttributeEventType], "x-count": int64(1)})
	if attrs[bus.AttributeEventType] != "ORDER_CREATED" {
		t.Fatalf("unexpected attributes %v", attrs)
	}
	if _, ok := attrs["x-count"]; ok {
		t.Fatal("non-string headers must be skipped")
	}
}

func newTestDelivery(attempt int, ack *ackRecorder, deadLetter func(context.Context, amqp.Publishing) error, observed *int) *delivery {
	return &delivery{
		raw: amqp.Delivery{
			Acknowledger: ack,
			MessageId:    "m-1",
			Body:         []byte(`{"orderId":"1"}`),
			Headers:      amqp.Table{bus.AttributeEventType: "ORDER_CREATED"},
		},
		queue:      "inventory",
		attempt:    attempt,
		policy:     bus.RetryPolicy{MaxReceives: 3, VisibilityTimeout: time.Second},
		logger:     slog.New(slog.NewJSONHandler(io.Discard, nil)),
		deadLetter: deadLetter,
		onDeadLetter: func(string, bus.Message, error) {
			*observed++
		},
	}
}

func TestDeliveryNackWithinBudgetRejects(t *testing.T) {
	ack := &ackRecorder{}
	observed := 0
	d := newTestDelivery(1, ack, func(context.Context, amqp.Publishing) error {
		t.Fatal("unexpected dead-letter publish")
		return nil
	}, &observed)

	if err := d.Nack(context.Background(), errors.New("store down")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ack.nacks != 1 || ack.requeued {
		t.Fatalf("expected reject without requeue, got %+v", ack)
	}
	if err := d.Ack(context.Background()); err == nil {
		t.Fatal("expected settled delivery to refuse ack")
	}
}

func TestDeliveryNackExhaustedDeadLetters(t *testing.T) {
	cases := []struct {
		name    string
		attempt int
		cause   error
	}{
		{"budget spent", 3, errors.New("store down")},
		{"poison", 1, fmt.Errorf("decode: %w", bus.ErrUndeliverable)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ack := &ackRecorder{}
			observed := 0
			var published amqp.Publishing
			d := newTestDelivery(tc.attempt, ack, func(_ context.Context, msg amqp.Publishing) error {
				published = msg
				return nil
			}, &observed)

			if err := d.Nack(context.Background(), tc.cause); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if ack.acks != 1 || ack.nacks != 0 {
				t.Fatalf("expected original to be acked after dead-lettering, got %+v", ack)
			}
			if published.Headers[headerOriginalQueue] != "inventory" || published.Headers[headerLastError] != tc.cause.Error() {
				t.Fatalf("unexpected dead-letter headers %v", published.Headers)
			}
			if string(published.Body) != `{"orderId":"1"}` || observed != 1 {
				t.Fatalf("unexpected dead-letter publish body=%s observed=%d", published.Body, observed)
			}
		})
	}
}

func TestDeliveryDeadLetterFailureRequeues(t *testing.T) {
	ack := &ackRecorder{}
	observed := 0
	d := newTestDelivery(3, ack, func(context.Context, amqp.Publishing) error {
		return errors.New("channel closed")
	}, &observed)

	if err := d.Nack(context.Background(), errors.New("x")); err == nil {
		t.Fatal("expected error")
	}
	if ack.nacks != 1 || !ack.requeued || observed != 0 {
		t.Fatalf("expected requeue, got %+v observed=%d", ack, observed)
	}
}

func TestDeliveryMessage(t *testing.T) {
	d := newTestDelivery(2, &ackRecorder{}, nil, new(int))
	msg := d.Message()
	if msg.ID != "m-1" || msg.Attributes[bus.AttributeEventType] != "ORDER_CREATED" || d.Attempt() != 2 {
		t.Fatalf("unexpected message %+v", msg)
	}
	if err := d.Ack(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
