package order

import (
	"context"
	"encoding/json"
	"time"

	"github.com/appetiteclub/apt"
	"github.com/appetiteclub/apt/events"
	"github.com/appetiteclub/orderflow/pkg"
	"github.com/appetiteclub/orderflow/pkg/event"
)

// EventPublisher emits order lifecycle events once per channel. With a bus the
// events reach every instance through BusBridge; without one they go straight
// into the local hub.
type EventPublisher struct {
	bus    events.Publisher
	hub    *Hub
	logger apt.Logger
}

func NewEventPublisher(bus events.Publisher, hub *Hub, logger apt.Logger) *EventPublisher {
	if logger == nil {
		logger = apt.NewNoopLogger()
	}
	return &EventPublisher{bus: bus, hub: hub, logger: logger}
}

func (p *EventPublisher) OrderCreated(ctx context.Context, o *Order) {
	p.publishOrder(ctx, event.EventOrderCreated, o)
}

func (p *EventPublisher) OrderUpdated(ctx context.Context, o *Order) {
	p.publishOrder(ctx, event.EventOrderUpdated, o)
}

func (p *EventPublisher) publishOrder(ctx context.Context, eventType string, o *Order) {
	body, err := json.Marshal(o)
	if err != nil {
		p.logger.Error("cannot encode order for event", "order_id", o.ID.String(), "error", err)
		return
	}

	now := time.Now().UTC()
	for _, channel := range event.ChannelsFor(o.RestaurantID.String()) {
		evt := &event.OrderEvent{
			EventType:    eventType,
			OccurredAt:   now,
			Channel:      channel,
			RestaurantID: o.RestaurantID.String(),
			OrderID:      o.ID.String(),
			Version:      o.Version,
			Order:        body,
		}

		if p.bus == nil {
			if p.hub != nil {
				p.hub.Broadcast(evt)
			}
			continue
		}

		if err := p.publish(ctx, channel, evt); err != nil {
			p.logger.Error("order event not published", "event_type", eventType, "order_id", o.ID.String(), "error", err)
		}
	}
}

// TableCleared tells other services a table session ended.
func (p *EventPublisher) TableCleared(ctx context.Context, restaurantID, tableNumber, clearedBy string, orders []*Order) {
	if p.bus == nil {
		return
	}

	ids := make([]string, 0, len(orders))
	for _, o := range orders {
		ids = append(ids, o.ID.String())
	}

	evt := pkg.TableClearedEvent{
		EventType:    pkg.EventTableCleared,
		RestaurantID: restaurantID,
		TableNumber:  tableNumber,
		OrderIDs:     ids,
		ClearedBy:    clearedBy,
		OccurredAt:   time.Now().UTC(),
	}
	if err := p.publish(ctx, pkg.OrderTableTopic, evt); err != nil {
		p.logger.Error("table cleared event not published", "table_number", tableNumber, "error", err)
	}
}

func (p *EventPublisher) publish(ctx context.Context, topic string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if err := p.bus.Publish(ctx, topic, data); err != nil {
		return &TransientChannelError{Channel: topic, Err: err}
	}
	return nil
}
