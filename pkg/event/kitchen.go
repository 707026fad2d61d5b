package event

import "time"

const (
	// PrintJobsTopic carries kitchen tickets and receipts to print stations.
	PrintJobsTopic = "print.jobs"

	EventKitchenTicketPrint = "print.kitchen_ticket"
	EventReceiptPrint       = "print.receipt"
)

type PrintJobMetadata struct {
	EventType    string    `json:"event_type"`
	OccurredAt   time.Time `json:"occurred_at"`
	JobID        string    `json:"job_id"`
	OrderID      string    `json:"order_id"`
	RestaurantID string    `json:"restaurant_id"`

	// Denormalized data for the print station
	RestaurantName  string `json:"restaurant_name,omitempty"`
	OrderType       string `json:"order_type"`
	TableNumber     string `json:"table_number,omitempty"`
	DeliveryAddress string `json:"delivery_address,omitempty"`
}

type PrintLine struct {
	Name      string  `json:"name"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unit_price,omitempty"`
	Subtotal  float64 `json:"subtotal,omitempty"`
}

// KitchenTicketPrintEvent is an unpriced KOT holding only items not yet sent to the kitchen.
type KitchenTicketPrintEvent struct {
	PrintJobMetadata
	Lines []PrintLine `json:"lines"`
}

// ReceiptPrintEvent is a fully priced bill for the customer.
type ReceiptPrintEvent struct {
	PrintJobMetadata
	Lines          []PrintLine `json:"lines"`
	OriginalAmount float64     `json:"original_amount"`
	DiscountName   string      `json:"discount_name,omitempty"`
	DiscountAmount float64     `json:"discount_amount"`
	TotalAmount    float64     `json:"total_amount"`
	CustomerName   string      `json:"customer_name,omitempty"`
	CustomerPhone  string      `json:"customer_phone,omitempty"`
	CustomerEmail  string      `json:"customer_email,omitempty"`
	PaymentMethod  string      `json:"payment_method"`
	PaymentStatus  string      `json:"payment_status"`
}
