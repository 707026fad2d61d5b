package pkg

import (
	"context"
	"fmt"

	"github.com/appetiteclub/apt"
	"github.com/appetiteclub/apt/events"
)

const (
	BusDriverNATS     = "nats"
	BusDriverRabbitMQ = "rabbitmq"
	BusDriverNone     = "none"
)

// Bus is a pub/sub transport for order events.
type Bus interface {
	events.Publisher
	events.Subscriber
	Close() error
}

type BusConfig struct {
	Driver    string
	NATSURL   string
	RabbitURL string
}

// OpenBus connects the configured driver. The "none" driver returns a nil Bus
// and callers deliver events in-process only.
func OpenBus(cfg BusConfig, logger apt.Logger) (Bus, error) {
	switch cfg.Driver {
	case BusDriverNATS, "":
		return newNATSBus(cfg.NATSURL, logger)
	case BusDriverRabbitMQ:
		return NewRabbitBus(cfg.RabbitURL, logger)
	case BusDriverNone:
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown bus driver %q", cfg.Driver)
	}
}

type natsBus struct {
	*NATSPublisher
	sub *NATSSubscriber
}

func newNATSBus(url string, logger apt.Logger) (*natsBus, error) {
	pub, err := NewNATSPublisher(url, logger)
	if err != nil {
		return nil, err
	}
	sub, err := NewNATSSubscriber(url, logger)
	if err != nil {
		_ = pub.Close()
		return nil, err
	}
	return &natsBus{NATSPublisher: pub, sub: sub}, nil
}

func (b *natsBus) Subscribe(ctx context.Context, topic string, handler events.HandlerFunc) error {
	return b.sub.Subscribe(ctx, topic, handler)
}

func (b *natsBus) Close() error {
	_ = b.sub.Close()
	return b.NATSPublisher.Close()
}
