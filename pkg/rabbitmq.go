package pkg

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/appetiteclub/apt"
	"github.com/appetiteclub/apt/events"
	amqp "github.com/rabbitmq/amqp091-go"
)

// RabbitExchange is the topic exchange order events are routed through. Topic
// names double as routing keys, so "orders.restaurant.*" binds the same way it
// subscribes on NATS.
const RabbitExchange = "orderflow.events"

// RabbitBus publishes and subscribes over a RabbitMQ topic exchange. Queues are
// exclusive and auto-deleted, and deliveries are auto-acked: the bus stays
// at-most-once with no replay, same as the NATS driver.
type RabbitBus struct {
	conn   *amqp.Connection
	pubCh  *amqp.Channel
	logger apt.Logger

	mu sync.Mutex
}

func NewRabbitBus(url string, logger apt.Logger) (*RabbitBus, error) {
	if logger == nil {
		logger = apt.NewNoopLogger()
	}

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("cannot open RabbitMQ channel: %w", err)
	}

	if err := ch.ExchangeDeclare(RabbitExchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("cannot declare exchange %s: %w", RabbitExchange, err)
	}

	return &RabbitBus{conn: conn, pubCh: ch, logger: logger}, nil
}

func (b *RabbitBus) Publish(ctx context.Context, topic string, msg []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	err := b.pubCh.PublishWithContext(ctx, RabbitExchange, topic, false, false, amqp.Publishing{
		DeliveryMode: amqp.Transient,
		ContentType:  "application/json",
		Timestamp:    time.Now().UTC(),
		Body:         msg,
	})
	if err != nil {
		return fmt.Errorf("cannot publish to %s: %w", topic, err)
	}
	return nil
}

// Subscribe binds a private queue to topic and dispatches deliveries until ctx
// is done or the connection closes.
func (b *RabbitBus) Subscribe(ctx context.Context, topic string, handler events.HandlerFunc) error {
	ch, err := b.conn.Channel()
	if err != nil {
		return fmt.Errorf("cannot open RabbitMQ channel: %w", err)
	}

	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		_ = ch.Close()
		return fmt.Errorf("cannot declare queue for %s: %w", topic, err)
	}

	if err := ch.QueueBind(q.Name, topic, RabbitExchange, false, nil); err != nil {
		_ = ch.Close()
		return fmt.Errorf("cannot bind queue for %s: %w", topic, err)
	}

	if err := ch.Qos(100, 0, false); err != nil {
		_ = ch.Close()
		return fmt.Errorf("cannot set qos: %w", err)
	}

	deliveries, err := ch.Consume(q.Name, "", true, true, false, false, nil)
	if err != nil {
		_ = ch.Close()
		return fmt.Errorf("cannot consume %s: %w", topic, err)
	}

	go func() {
		defer ch.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					b.logger.Info("rabbitmq deliveries closed", "topic", topic)
					return
				}
				if err := handler(ctx, d.Body); err != nil {
					b.logger.Error("rabbitmq handler failed", "routing_key", d.RoutingKey, "error", err)
				}
			}
		}
	}()

	return nil
}

func (b *RabbitBus) Close() error {
	if b.pubCh != nil {
		_ = b.pubCh.Close()
	}
	if b.conn != nil {
		return b.conn.Close()
	}
	return nil
}
