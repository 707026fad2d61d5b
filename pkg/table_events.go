package pkg

import "time"

const (
	// OrderTableTopic groups events emitted by the order service that relate to table sessions.
	OrderTableTopic = "orders.tables"
	// NotificationTopic carries new-order signals for audible/visual alerts.
	NotificationTopic = "notifications.orders"

	// EventTableCleared identifies a table clear that tore down its session.
	EventTableCleared = "table.cleared"
	// EventNewOrderSignal identifies a new-order alert signal.
	EventNewOrderSignal = "order.new.signal"
)

// TableClearedEvent tells terminals that a table session ended and any cached
// customer identity for it must be dropped.
type TableClearedEvent struct {
	EventType    string    `json:"event_type"`
	RestaurantID string    `json:"restaurant_id"`
	TableNumber  string    `json:"table_number"`
	OrderIDs     []string  `json:"order_ids"`
	ClearedBy    string    `json:"cleared_by,omitempty"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// NewOrderSignal is consumed by notification dispatchers.
type NewOrderSignal struct {
	EventType    string    `json:"event_type"`
	RestaurantID string    `json:"restaurant_id"`
	OrderID      string    `json:"order_id"`
	OrderType    string    `json:"order_type"`
	Source       string    `json:"source"`
	TableNumber  string    `json:"table_number,omitempty"`
	TotalAmount  float64   `json:"total_amount"`
	OccurredAt   time.Time `json:"occurred_at"`
}
