package rabbitmq

import (
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/polkiloo/orderpipeline/internal/bus"
)

type topologyChannel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
}

// RetryQueue names the delay queue of queue.
func RetryQueue(queue string) string {
	return queue + ".retry"
}

func declareTopology(ch topologyChannel, topic string, queues []string, visibility time.Duration) error {
	if err := ch.ExchangeDeclare(
		topic,
		amqp.ExchangeFanout,
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		return fmt.Errorf("declare exchange %s: %w", topic, err)
	}

	for _, q := range queues {
		if _, err := ch.QueueDeclare(q, true, false, false, false, workQueueArgs(q)); err != nil {
			return fmt.Errorf("declare queue %s: %w", q, err)
		}
		if _, err := ch.QueueDeclare(RetryQueue(q), true, false, false, false, retryQueueArgs(q, visibility)); err != nil {
			return fmt.Errorf("declare queue %s: %w", RetryQueue(q), err)
		}
		if _, err := ch.QueueDeclare(bus.DeadLetterQueue(q), true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare queue %s: %w", bus.DeadLetterQueue(q), err)
		}
		if err := ch.QueueBind(q, "", topic, false, nil); err != nil {
			return fmt.Errorf("bind queue %s: %w", q, err)
		}
	}
	return nil
}

func workQueueArgs(queue string) amqp.Table {
	return amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": RetryQueue(queue),
	}
}

func retryQueueArgs(queue string, visibility time.Duration) amqp.Table {
	return amqp.Table{
		"x-message-ttl":             visibility.Milliseconds(),
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": queue,
	}
}

// attemptOf counts prior rejections of the message from queue.
func attemptOf(headers amqp.Table, queue string) int {
	deaths, ok := headers["x-death"].([]interface{})
	if !ok {
		return 1
	}
	attempt := 1
	for _, entry := range deaths {
		death, ok := entry.(amqp.Table)
		if !ok {
			continue
		}
		if q, _ := death["queue"].(string); q != queue {
			continue
		}
		if reason, _ := death["reason"].(string); reason != "rejected" {
			continue
		}
		switch n := death["count"].(type) {
		case int64:
			attempt += int(n)
		case int32:
			attempt += int(n)
		case int:
			attempt += n
		}
	}
	return attempt
}

func toTable(attrs bus.Attributes) amqp.Table {
	if len(attrs) == 0 {
		return nil
	}
	table := make(amqp.Table, len(attrs))
	for k, v := range attrs {
		table[k] = v
	}
	return table
}

func fromTable(table amqp.Table) bus.Attributes {
	attrs := bus.Attributes{}
	for k, v := range table {
		if s, ok := v.(string); ok {
			attrs[k] = s
		}
	}
	return attrs
}
