package order

import (
	"time"

	"github.com/appetiteclub/apt"
	"github.com/appetiteclub/orderflow/pkg/enums/orderstatus"
	"github.com/appetiteclub/orderflow/services/order/internal/discount"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type OrderType string

const (
	TypeDineIn   OrderType = "dine-in"
	TypeDelivery OrderType = "delivery"
	TypeTakeaway OrderType = "takeaway"
)

type Source string

const (
	SourceQR           Source = "qr"
	SourceStaff        Source = "staff"
	SourceDeliveryForm Source = "delivery-form"
	SourceThirdParty   Source = "third-party-platform"
)

type PaymentMethod string

const (
	PaymentCash PaymentMethod = "cash"
	PaymentUPI  PaymentMethod = "upi"
)

type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
)

type Item struct {
	MenuItemID       string  `json:"menu_item_id" bson:"menu_item_id"`
	Name             string  `json:"name" bson:"name"`
	Category         string  `json:"category,omitempty" bson:"category,omitempty"`
	UnitPrice        float64 `json:"unit_price" bson:"unit_price"`
	Quantity         int     `json:"quantity" bson:"quantity"`
	PrintedToKitchen bool    `json:"printed_to_kitchen" bson:"printed_to_kitchen"`
}

func (i Item) Subtotal() float64 {
	return itemSubtotal(i).InexactFloat64()
}

func itemSubtotal(i Item) decimal.Decimal {
	return decimal.NewFromFloat(i.UnitPrice).Mul(decimal.NewFromInt(int64(i.Quantity))).Round(2)
}

// AppliedDiscount is a snapshot of the discount taken at checkout.
type AppliedDiscount struct {
	DiscountID uuid.UUID     `json:"discount_id" bson:"discount_id"`
	Name       string        `json:"name,omitempty" bson:"name,omitempty"`
	Type       discount.Type `json:"type" bson:"type"`
	Value      float64       `json:"value" bson:"value"`
	Amount     float64       `json:"amount" bson:"amount"`
}

type Order struct {
	ID              uuid.UUID        `json:"id" bson:"_id"`
	RestaurantID    uuid.UUID        `json:"restaurant_id" bson:"restaurant_id"`
	OrderType       OrderType        `json:"order_type" bson:"order_type"`
	TableNumber     string           `json:"table_number,omitempty" bson:"table_number,omitempty"`
	Source          Source           `json:"source" bson:"source"`
	Items           []Item           `json:"items" bson:"items"`
	OriginalAmount  float64          `json:"original_amount" bson:"original_amount"`
	Discount        *AppliedDiscount `json:"discount,omitempty" bson:"discount,omitempty"`
	TotalAmount     float64          `json:"total_amount" bson:"total_amount"`
	CustomerName    string           `json:"customer_name,omitempty" bson:"customer_name,omitempty"`
	CustomerPhone   string           `json:"customer_phone,omitempty" bson:"customer_phone,omitempty"`
	CustomerEmail   string           `json:"customer_email,omitempty" bson:"customer_email,omitempty"`
	DeliveryAddress string           `json:"delivery_address,omitempty" bson:"delivery_address,omitempty"`
	PaymentMethod   PaymentMethod    `json:"payment_method" bson:"payment_method"`
	PaymentStatus   PaymentStatus    `json:"payment_status" bson:"payment_status"`
	Status          string           `json:"status" bson:"status"`
	Version         int64            `json:"version" bson:"version"`
	CreatedAt       time.Time        `json:"created_at" bson:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at" bson:"updated_at"`
	CompletedAt     *time.Time       `json:"completed_at,omitempty" bson:"completed_at,omitempty"`
}

func (o *Order) GetID() uuid.UUID {
	return o.ID
}

func (o *Order) ResourceType() string {
	return "order"
}

func (o *Order) SetID(id uuid.UUID) {
	o.ID = id
}

func NewOrder() *Order {
	return &Order{
		ID:            apt.GenerateNewID(),
		Status:        orderstatus.Statuses.Pending.Name,
		PaymentStatus: PaymentPending,
	}
}

func (o *Order) EnsureID() {
	if o.ID == uuid.Nil {
		o.ID = apt.GenerateNewID()
	}
}

func (o *Order) BeforeCreate(now time.Time) {
	o.EnsureID()
	o.CreatedAt = now
	o.UpdatedAt = now
	o.Version = 1
}

func (o *Order) BeforeUpdate(now time.Time) {
	o.UpdatedAt = now
}

func (o *Order) IsDineIn() bool {
	return o.OrderType == TypeDineIn
}

func (o *Order) IsDelivery() bool {
	return o.OrderType == TypeDelivery
}

func (o *Order) IsActive() bool {
	return o.Status != orderstatus.Statuses.Completed.Name
}

// Channel is the ordering channel used for discount eligibility.
func (o *Order) Channel() string {
	return string(o.Source)
}

func (o *Order) CartItems() []discount.CartItem {
	items := make([]discount.CartItem, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, discount.CartItem{
			MenuItemID: it.MenuItemID,
			Name:       it.Name,
			Category:   it.Category,
			UnitPrice:  it.UnitPrice,
			Quantity:   it.Quantity,
		})
	}
	return items
}

// Recalculate derives original and total amounts from the items and the
// applied discount. The discount amount is clamped to the original amount.
func (o *Order) Recalculate() {
	original := decimal.Zero
	for _, it := range o.Items {
		original = original.Add(itemSubtotal(it))
	}
	original = original.Round(2)

	total := original
	if o.Discount != nil {
		amount := decimal.Min(decimal.NewFromFloat(o.Discount.Amount), original).Round(2)
		o.Discount.Amount = amount.InexactFloat64()
		total = original.Sub(amount)
	}
	if total.IsNegative() {
		total = decimal.Zero
	}

	o.OriginalAmount = original.InexactFloat64()
	o.TotalAmount = total.InexactFloat64()
}

func (o *Order) ApplyDiscount(d *discount.Discount, amount float64) {
	o.Discount = &AppliedDiscount{
		DiscountID: d.ID,
		Name:       d.Name,
		Type:       d.Type,
		Value:      d.Value,
		Amount:     amount,
	}
	o.Recalculate()
}

func (o *Order) RemoveDiscount() {
	o.Discount = nil
	o.Recalculate()
}

// UnprintedItems returns the indexes of items not yet sent to the kitchen.
func (o *Order) UnprintedItems() []int {
	var idx []int
	for i, it := range o.Items {
		if !it.PrintedToKitchen {
			idx = append(idx, i)
		}
	}
	return idx
}

// Clone returns a deep copy so callers can mutate without touching shared state.
func (o *Order) Clone() *Order {
	c := *o
	c.Items = append([]Item(nil), o.Items...)
	if o.Discount != nil {
		d := *o.Discount
		c.Discount = &d
	}
	if o.CompletedAt != nil {
		t := *o.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}
