package pkg

import (
	"context"
	"fmt"
	"time"

	"github.com/appetiteclub/apt"
	"github.com/appetiteclub/apt/events"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// NATSStream is a durable JetStream queue. Print jobs use it because a print
// station that is offline must still receive its tickets when it comes back.
type NATSStream struct {
	conn     *nats.Conn
	js       jetstream.JetStream
	consumer jetstream.Consumer
	consumed jetstream.ConsumeContext
	logger   apt.Logger
}

// NATSStreamConfig configures a NATSStream instance.
type NATSStreamConfig struct {
	URL          string        // NATS server URL
	StreamName   string        // JetStream stream name, e.g. "PRINT_JOBS"
	Topic        string        // Subject bound to the stream, e.g. "print.jobs"
	ConsumerName string        // Durable consumer name; empty for publish-only use
	MaxAge       time.Duration // Retention window
	MaxDeliver   int           // Redelivery attempts before a job is dropped (0 = server default)
}

func NewNATSStream(ctx context.Context, cfg NATSStreamConfig, logger apt.Logger) (*NATSStream, error) {
	if logger == nil {
		logger = apt.NewNoopLogger()
	}

	conn, err := connectNATS(cfg.URL, "orderflow-stream-"+cfg.StreamName, logger)
	if err != nil {
		return nil, err
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	stream, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      cfg.StreamName,
		Subjects:  []string{cfg.Topic},
		MaxAge:    cfg.MaxAge,
		Retention: jetstream.WorkQueuePolicy,
	})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create/update stream %s: %w", cfg.StreamName, err)
	}

	s := &NATSStream{conn: conn, js: js, logger: logger}

	if cfg.ConsumerName == "" {
		return s, nil
	}

	consumer, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Name:          cfg.ConsumerName,
		Durable:       cfg.ConsumerName,
		AckPolicy:     jetstream.AckExplicitPolicy,
		DeliverPolicy: jetstream.DeliverAllPolicy,
		FilterSubject: cfg.Topic,
		MaxDeliver:    cfg.MaxDeliver,
	})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create/update consumer %s: %w", cfg.ConsumerName, err)
	}
	s.consumer = consumer

	return s, nil
}

func (s *NATSStream) Publish(ctx context.Context, topic string, msg []byte) error {
	if _, err := s.js.Publish(ctx, topic, msg); err != nil {
		return fmt.Errorf("failed to publish to stream: %w", err)
	}
	return nil
}

// Subscribe consumes the durable consumer. Topic is fixed by the consumer filter
// and ignored here. Handler errors trigger redelivery.
func (s *NATSStream) Subscribe(ctx context.Context, _ string, handler events.HandlerFunc) error {
	if s.consumer == nil {
		return fmt.Errorf("stream has no consumer configured")
	}

	cc, err := s.consumer.Consume(func(msg jetstream.Msg) {
		if err := handler(ctx, msg.Data()); err != nil {
			s.logger.Error("stream handler failed", "subject", msg.Subject(), "error", err)
			_ = msg.Nak()
			return
		}
		_ = msg.Ack()
	})
	if err != nil {
		return fmt.Errorf("cannot consume stream: %w", err)
	}
	s.consumed = cc
	return nil
}

func (s *NATSStream) Close() error {
	if s.consumed != nil {
		s.consumed.Stop()
	}
	s.conn.Close()
	return nil
}
