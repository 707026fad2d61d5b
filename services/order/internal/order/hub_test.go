package order

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/appetiteclub/orderflow/pkg"
	"github.com/appetiteclub/orderflow/pkg/enums/orderstatus"
	"github.com/appetiteclub/orderflow/pkg/event"
)

func orderEvent(channel, orderID string, version int64) *event.OrderEvent {
	return &event.OrderEvent{EventType: event.EventOrderUpdated, Channel: channel, OrderID: orderID, Version: version}
}

func TestHubBroadcastRoutesByChannel(t *testing.T) {
	hub := NewHub(nil)
	restaurantChannel := event.RestaurantTopic(testRestaurantID.String())

	staff := hub.Join("kds-1", []string{restaurantChannel})
	operator := hub.Join("console", []string{event.OperatorTopic})
	other := hub.Join("kds-2", []string{event.RestaurantTopic(otherRestaurant.String())})
	defer staff.Leave()
	defer operator.Leave()
	defer other.Leave()

	if n := hub.Broadcast(orderEvent(restaurantChannel, "o1", 1)); n != 1 {
		t.Errorf("Broadcast() delivered to %d, want 1", n)
	}
	if n := hub.Broadcast(orderEvent(event.OperatorTopic, "o1", 1)); n != 1 {
		t.Errorf("Broadcast() delivered to %d, want 1", n)
	}

	if got := len(staff.Events()); got != 1 {
		t.Errorf("staff received %d events, want 1", got)
	}
	if got := len(operator.Events()); got != 1 {
		t.Errorf("operator received %d events, want 1", got)
	}
	if got := len(other.Events()); got != 0 {
		t.Errorf("other restaurant received %d events, want 0", got)
	}
}

func TestHubDropsWhenSubscriberIsFull(t *testing.T) {
	hub := NewHub(nil)
	hub.buffer = 2
	sub := hub.Join("slow", []string{event.OperatorTopic})
	defer sub.Leave()

	delivered := 0
	for i := 0; i < 5; i++ {
		delivered += hub.Broadcast(orderEvent(event.OperatorTopic, "o1", int64(i+1)))
	}

	if delivered != 2 {
		t.Errorf("delivered = %d, want 2", delivered)
	}
	first := <-sub.Events()
	if first.Version != 1 {
		t.Errorf("first event version = %d, want 1", first.Version)
	}
}

func TestHubLeave(t *testing.T) {
	hub := NewHub(nil)
	sub := hub.Join("t", []string{event.OperatorTopic})
	if hub.Count() != 1 {
		t.Fatalf("Count() = %d, want 1", hub.Count())
	}

	sub.Leave()
	sub.Leave()

	if hub.Count() != 0 {
		t.Errorf("Count() = %d after Leave, want 0", hub.Count())
	}
	if _, ok := <-sub.Events(); ok {
		t.Error("events channel should be closed after Leave")
	}
	if n := hub.Broadcast(orderEvent(event.OperatorTopic, "o1", 1)); n != 0 {
		t.Errorf("Broadcast() after Leave delivered to %d", n)
	}
}

func TestEventPublisherWithoutBusFeedsHub(t *testing.T) {
	hub := NewHub(nil)
	restaurant := hub.Join("kds", []string{event.RestaurantTopic(testRestaurantID.String())})
	operator := hub.Join("console", []string{event.OperatorTopic})
	defer restaurant.Leave()
	defer operator.Leave()

	p := NewEventPublisher(nil, hub, nil)
	o := testOrder(TypeDineIn, orderstatus.Statuses.Pending)
	p.OrderCreated(context.Background(), o)

	for name, sub := range map[string]*Subscription{"restaurant": restaurant, "operator": operator} {
		select {
		case evt := <-sub.Events():
			if evt.EventType != event.EventOrderCreated || evt.OrderID != o.ID.String() || evt.Version != o.Version {
				t.Errorf("%s got %+v", name, evt)
			}
			var decoded Order
			if err := json.Unmarshal(evt.Order, &decoded); err != nil || decoded.ID != o.ID {
				t.Errorf("%s event carries order %v, err %v", name, decoded.ID, err)
			}
		default:
			t.Errorf("%s received nothing", name)
		}
	}
}

func TestEventPublisherPublishesOncePerChannel(t *testing.T) {
	bus := NewMockPublisher()
	p := NewEventPublisher(bus, NewHub(nil), nil)
	o := testOrder(TypeDelivery, orderstatus.Statuses.Preparing)

	p.OrderUpdated(context.Background(), o)

	topics := bus.Topics()
	want := []string{event.RestaurantTopic(testRestaurantID.String()), event.OperatorTopic}
	if len(topics) != len(want) {
		t.Fatalf("published to %v, want %v", topics, want)
	}
	for i := range want {
		if topics[i] != want[i] {
			t.Errorf("topic %d = %q, want %q", i, topics[i], want[i])
		}
	}
}

func TestEventPublisherSwallowsBusErrors(t *testing.T) {
	calls := 0
	bus := NewMockPublisher()
	bus.PublishFunc = func(ctx context.Context, topic string, msg []byte) error {
		calls++
		return errors.New("nats: connection closed")
	}
	p := NewEventPublisher(bus, nil, nil)

	p.OrderUpdated(context.Background(), testOrder(TypeDineIn, orderstatus.Statuses.Pending))

	if calls != 2 {
		t.Errorf("publish attempts = %d, want one per channel", calls)
	}
}

func TestEventPublisherTableCleared(t *testing.T) {
	bus := NewMockPublisher()
	p := NewEventPublisher(bus, nil, nil)
	o := testOrder(TypeDineIn, orderstatus.Statuses.Completed)

	p.TableCleared(context.Background(), testRestaurantID.String(), "5", "staff-1", []*Order{o})

	if len(bus.Published) != 1 || bus.Published[0].Topic != pkg.OrderTableTopic {
		t.Fatalf("published = %v", bus.Topics())
	}
	var evt pkg.TableClearedEvent
	if err := json.Unmarshal(bus.Published[0].Data, &evt); err != nil {
		t.Fatalf("cannot decode: %v", err)
	}
	if evt.TableNumber != "5" || len(evt.OrderIDs) != 1 || evt.ClearedBy != "staff-1" {
		t.Errorf("event = %+v", evt)
	}
}

func TestBusBridgeForwardsToHub(t *testing.T) {
	hub := NewHub(nil)
	sub := hub.Join("console", []string{event.OperatorTopic})
	defer sub.Leave()

	bus := NewMockSubscriber()
	bridge := NewBusBridge(bus, hub, nil)
	if err := bridge.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	handler, ok := bus.Handlers[event.OperatorTopic]
	if !ok {
		t.Fatalf("bridge did not subscribe %s", event.OperatorTopic)
	}
	if _, ok := bus.Handlers[event.RestaurantTopicPattern]; !ok {
		t.Fatalf("bridge did not subscribe %s", event.RestaurantTopicPattern)
	}

	data, _ := json.Marshal(orderEvent(event.OperatorTopic, "o1", 3))
	if err := handler(context.Background(), data); err != nil {
		t.Fatalf("handler error = %v", err)
	}

	select {
	case evt := <-sub.Events():
		if evt.OrderID != "o1" || evt.Version != 3 {
			t.Errorf("got %+v", evt)
		}
	default:
		t.Fatal("hub received nothing")
	}
}

func TestBusBridgeRejectsBadMessages(t *testing.T) {
	bridge := NewBusBridge(nil, NewHub(nil), nil)

	tests := []struct {
		name    string
		msg     []byte
		wantErr bool
	}{
		{name: "invalidJSON", msg: []byte("{"), wantErr: true},
		{name: "unknownChannel", msg: mustJSON(t, orderEvent("orders.elsewhere", "o1", 1)), wantErr: true},
		{name: "unknownEventIgnored", msg: mustJSON(t, &event.OrderEvent{EventType: "order-deleted", Channel: event.OperatorTopic})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := bridge.handle(context.Background(), tt.msg)
			if (err != nil) != tt.wantErr {
				t.Errorf("handle() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestBusBridgeWithoutSubscriber(t *testing.T) {
	bridge := NewBusBridge(nil, NewHub(nil), nil)
	if err := bridge.Start(context.Background()); err != nil {
		t.Errorf("Start() without subscriber error = %v", err)
	}
}

func mustJSON(t *testing.T, v interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return data
}
