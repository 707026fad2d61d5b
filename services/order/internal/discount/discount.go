package discount

import (
	"strings"
	"time"

	"github.com/appetiteclub/apt"
	"github.com/google/uuid"
)

type Type string

const (
	TypePercentage Type = "percentage"
	TypeFixed      Type = "fixed"
)

// ChannelQR is the ordering channel qr-exclusive discounts are restricted to.
const ChannelQR = "qr"

type Discount struct {
	ID                   uuid.UUID  `json:"id" bson:"_id"`
	RestaurantID         uuid.UUID  `json:"restaurant_id" bson:"restaurant_id"`
	Name                 string     `json:"name" bson:"name"`
	Description          string     `json:"description,omitempty" bson:"description,omitempty"`
	Type                 Type       `json:"type" bson:"type"`
	Value                float64    `json:"value" bson:"value"`
	MinOrderAmount       float64    `json:"min_order_amount" bson:"min_order_amount"`
	MaxDiscountAmount    *float64   `json:"max_discount_amount,omitempty" bson:"max_discount_amount,omitempty"`
	ApplicableCategories []string   `json:"applicable_categories,omitempty" bson:"applicable_categories,omitempty"`
	QRExclusive          bool       `json:"qr_exclusive" bson:"qr_exclusive"`
	UsageLimit           *int       `json:"usage_limit,omitempty" bson:"usage_limit,omitempty"`
	CurrentUsage         int        `json:"current_usage" bson:"current_usage"`
	StartDate            *time.Time `json:"start_date,omitempty" bson:"start_date,omitempty"`
	EndDate              *time.Time `json:"end_date,omitempty" bson:"end_date,omitempty"`
	Active               bool       `json:"active" bson:"active"`
	Banner               *Banner    `json:"banner,omitempty" bson:"banner,omitempty"`
	Version              int64      `json:"version" bson:"version"`
	CreatedAt            time.Time  `json:"created_at" bson:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at" bson:"updated_at"`
}

// Banner is display metadata only.
type Banner struct {
	ImageURL string `json:"image_url,omitempty" bson:"image_url,omitempty"`
	Headline string `json:"headline,omitempty" bson:"headline,omitempty"`
	Color    string `json:"color,omitempty" bson:"color,omitempty"`
}

func (d *Discount) GetID() uuid.UUID {
	return d.ID
}

func (d *Discount) ResourceType() string {
	return "discount"
}

func (d *Discount) SetID(id uuid.UUID) {
	d.ID = id
}

func (d *Discount) EnsureID() {
	if d.ID == uuid.Nil {
		d.ID = apt.GenerateNewID()
	}
}

func (d *Discount) BeforeCreate() {
	d.EnsureID()
	now := time.Now()
	d.CreatedAt = now
	d.UpdatedAt = now
	d.Version = 1
}

func (d *Discount) BeforeUpdate() {
	d.UpdatedAt = time.Now()
}

func (d *Discount) UsageExhausted() bool {
	return d.UsageLimit != nil && d.CurrentUsage >= *d.UsageLimit
}

func (d *Discount) NotStarted(now time.Time) bool {
	return d.StartDate != nil && now.Before(*d.StartDate)
}

func (d *Discount) Expired(now time.Time) bool {
	return d.EndDate != nil && now.After(*d.EndDate)
}

// AppliesToCategory reports whether an item in category is covered. An empty
// category list covers everything.
func (d *Discount) AppliesToCategory(category string) bool {
	if len(d.ApplicableCategories) == 0 {
		return true
	}
	for _, c := range d.ApplicableCategories {
		if strings.EqualFold(c, category) {
			return true
		}
	}
	return false
}

// CartItem is a line of a cart being priced.
type CartItem struct {
	MenuItemID string  `json:"menu_item_id,omitempty"`
	Name       string  `json:"name"`
	Category   string  `json:"category,omitempty"`
	UnitPrice  float64 `json:"unit_price"`
	Quantity   int     `json:"quantity"`
}

// Filter narrows a catalog listing.
type Filter struct {
	ActiveOnly bool
	// Channel hides qr-exclusive discounts from other channels when set.
	Channel string
}

func (f Filter) Match(d *Discount) bool {
	if f.ActiveOnly && !d.Active {
		return false
	}
	if f.Channel != "" && d.QRExclusive && f.Channel != ChannelQR {
		return false
	}
	return true
}
