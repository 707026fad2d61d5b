package order

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/appetiteclub/apt"
	"github.com/appetiteclub/apt/events"
	"github.com/appetiteclub/orderflow/pkg/event"
)

// BusBridge feeds order events arriving on the bus into the local hub so that
// terminals connected to any instance see every mutation.
type BusBridge struct {
	subscriber events.Subscriber
	hub        *Hub
	logger     apt.Logger
}

func NewBusBridge(subscriber events.Subscriber, hub *Hub, logger apt.Logger) *BusBridge {
	if logger == nil {
		logger = apt.NewNoopLogger()
	}
	return &BusBridge{subscriber: subscriber, hub: hub, logger: logger}
}

func (b *BusBridge) Start(ctx context.Context) error {
	if b.subscriber == nil {
		b.logger.Info("bus bridge disabled, delivering events in-process only")
		return nil
	}

	for _, topic := range []string{event.RestaurantTopicPattern, event.OperatorTopic} {
		if err := b.subscriber.Subscribe(ctx, topic, b.handle); err != nil {
			return fmt.Errorf("cannot subscribe to %s: %w", topic, err)
		}
		b.logger.Info("bus bridge subscribed", "topic", topic)
	}
	return nil
}

func (b *BusBridge) Stop(ctx context.Context) error {
	return nil
}

func (b *BusBridge) handle(ctx context.Context, msg []byte) error {
	var evt event.OrderEvent
	if err := json.Unmarshal(msg, &evt); err != nil {
		return fmt.Errorf("cannot decode order event: %w", err)
	}

	switch evt.EventType {
	case event.EventOrderCreated, event.EventOrderUpdated:
	default:
		b.logger.Debug("ignoring unknown order event", "event_type", evt.EventType)
		return nil
	}

	if evt.Channel != event.OperatorTopic && !event.IsRestaurantTopic(evt.Channel) {
		return fmt.Errorf("order event on unknown channel %q", evt.Channel)
	}

	b.hub.Broadcast(&evt)
	return nil
}
