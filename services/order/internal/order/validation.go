package order

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

type ItemRequest struct {
	MenuItemID string  `json:"menu_item_id"`
	Name       string  `json:"name"`
	Category   string  `json:"category,omitempty"`
	UnitPrice  float64 `json:"unit_price"`
	Quantity   int     `json:"quantity"`
}

type CreateOrderRequest struct {
	RestaurantID    uuid.UUID     `json:"restaurant_id"`
	OrderType       OrderType     `json:"order_type"`
	TableNumber     string        `json:"table_number,omitempty"`
	Source          Source        `json:"source"`
	Items           []ItemRequest `json:"items"`
	CustomerName    string        `json:"customer_name,omitempty"`
	CustomerPhone   string        `json:"customer_phone,omitempty"`
	CustomerEmail   string        `json:"customer_email,omitempty"`
	DeliveryAddress string        `json:"delivery_address,omitempty"`
	PaymentMethod   PaymentMethod `json:"payment_method"`
	PaymentStatus   PaymentStatus `json:"payment_status,omitempty"`
	DiscountID      *uuid.UUID    `json:"discount_id,omitempty"`
	AutoDiscount    bool          `json:"auto_discount,omitempty"`
}

type ItemPatch struct {
	Index            int  `json:"index"`
	PrintedToKitchen bool `json:"printed_to_kitchen"`
}

func ValidateOrderCreate(ctx context.Context, req CreateOrderRequest) []string {
	var errors []string

	if req.RestaurantID == uuid.Nil {
		errors = append(errors, "restaurant_id is required")
	}

	switch req.OrderType {
	case TypeDineIn:
		if strings.TrimSpace(req.TableNumber) == "" {
			errors = append(errors, "table_number is required for dine-in orders")
		}
	case TypeDelivery:
		if strings.TrimSpace(req.DeliveryAddress) == "" {
			errors = append(errors, "delivery_address is required for delivery orders")
		}
	case TypeTakeaway:
	default:
		errors = append(errors, "order_type must be dine-in, delivery or takeaway")
	}

	switch req.Source {
	case SourceQR, SourceStaff, SourceDeliveryForm, SourceThirdParty:
	default:
		errors = append(errors, "invalid source")
	}

	switch req.PaymentMethod {
	case PaymentCash, PaymentUPI:
	default:
		errors = append(errors, "payment_method must be cash or upi")
	}

	switch req.PaymentStatus {
	case "", PaymentPending, PaymentPaid:
	default:
		errors = append(errors, "payment_status must be pending or paid")
	}

	if len(req.Items) == 0 {
		errors = append(errors, "at least one item is required")
	}

	for i, item := range req.Items {
		if strings.TrimSpace(item.Name) == "" {
			errors = append(errors, fmt.Sprintf("items[%d].name is required", i))
		}
		if item.Quantity <= 0 {
			errors = append(errors, fmt.Sprintf("items[%d].quantity must be greater than 0", i))
		}
		if item.UnitPrice < 0 {
			errors = append(errors, fmt.Sprintf("items[%d].unit_price cannot be negative", i))
		}
	}

	return errors
}

func ValidateItemPatches(ctx context.Context, order *Order, patches []ItemPatch) []string {
	var errors []string

	if len(patches) == 0 {
		errors = append(errors, "at least one item patch is required")
	}

	for _, p := range patches {
		if p.Index < 0 || p.Index >= len(order.Items) {
			errors = append(errors, fmt.Sprintf("item index %d out of range", p.Index))
		}
	}

	return errors
}
