package event

import (
	"encoding/json"
	"strings"
	"time"
)

const (
	// RestaurantTopicPrefix is followed by the restaurant id.
	RestaurantTopicPrefix = "orders.restaurant."
	// RestaurantTopicPattern matches every restaurant channel on the bus.
	RestaurantTopicPattern = "orders.restaurant.*"
	OperatorTopic          = "orders.operator"

	EventOrderCreated = "order-created"
	EventOrderUpdated = "order-updated"
)

// OrderEvent is the envelope fanned out to terminals. Order carries the full
// current order representation as produced by the order service.
type OrderEvent struct {
	EventType    string          `json:"event_type"`
	OccurredAt   time.Time       `json:"occurred_at"`
	Channel      string          `json:"channel"`
	RestaurantID string          `json:"restaurant_id"`
	OrderID      string          `json:"order_id"`
	Version      int64           `json:"version"`
	Order        json.RawMessage `json:"order"`
}

// RestaurantTopic returns the channel joined by a restaurant's terminals.
func RestaurantTopic(restaurantID string) string {
	return RestaurantTopicPrefix + restaurantID
}

// ChannelsFor returns the channels an order event for restaurantID is published to.
func ChannelsFor(restaurantID string) []string {
	return []string{RestaurantTopic(restaurantID), OperatorTopic}
}

// IsRestaurantTopic reports whether topic is a per-restaurant channel.
func IsRestaurantTopic(topic string) bool {
	return strings.HasPrefix(topic, RestaurantTopicPrefix) && len(topic) > len(RestaurantTopicPrefix)
}
