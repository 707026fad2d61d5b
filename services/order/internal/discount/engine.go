package discount

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Reason string

const (
	ReasonNone           Reason = ""
	ReasonInactive       Reason = "inactive"
	ReasonNotStarted     Reason = "not-started"
	ReasonExpired        Reason = "expired"
	ReasonWrongChannel   Reason = "wrong-channel"
	ReasonMinOrderNotMet Reason = "min-order-not-met"
	ReasonUsageExhausted Reason = "usage-exhausted"
	ReasonCategory       Reason = "category-not-applicable"
)

var hundred = decimal.NewFromInt(100)

// ErrIneligible is matched by every IneligibleError.
var ErrIneligible = errors.New("discount ineligible")

// ErrExhausted is returned by stores when the last usage unit was taken
// between evaluation and commit.
var ErrExhausted = errors.New("discount usage exhausted")

type IneligibleError struct {
	DiscountID uuid.UUID
	Reason     Reason
}

func (e *IneligibleError) Error() string {
	return fmt.Sprintf("discount %s ineligible: %s", e.DiscountID, e.Reason)
}

func (e *IneligibleError) Is(target error) bool {
	return target == ErrIneligible
}

type Result struct {
	Eligible bool    `json:"eligible"`
	Savings  float64 `json:"savings"`
	Reason   Reason  `json:"reason,omitempty"`
}

// Evaluate checks d against a cart total on a channel at time now and
// computes the savings it would grant.
func Evaluate(d *Discount, cartTotal float64, channel string, now time.Time) Result {
	if reason := gate(d, cartTotal, channel, now); reason != ReasonNone {
		return Result{Reason: reason}
	}
	return Result{Eligible: true, Savings: savings(d, decimal.NewFromFloat(cartTotal)).InexactFloat64()}
}

func gate(d *Discount, cartTotal float64, channel string, now time.Time) Reason {
	switch {
	case !d.Active:
		return ReasonInactive
	case d.NotStarted(now):
		return ReasonNotStarted
	case d.Expired(now):
		return ReasonExpired
	case d.QRExclusive && channel != ChannelQR:
		return ReasonWrongChannel
	case cartTotal < d.MinOrderAmount:
		return ReasonMinOrderNotMet
	case d.UsageExhausted():
		return ReasonUsageExhausted
	}
	return ReasonNone
}

// savings never exceeds base nor the configured cap, and is rounded half away
// from zero to 2 places.
func savings(d *Discount, base decimal.Decimal) decimal.Decimal {
	if !base.IsPositive() {
		return decimal.Zero
	}

	value := decimal.NewFromFloat(d.Value)
	var raw decimal.Decimal
	switch d.Type {
	case TypePercentage:
		raw = base.Mul(value).Div(hundred)
	case TypeFixed:
		raw = decimal.Min(value, base)
	default:
		return decimal.Zero
	}

	if d.MaxDiscountAmount != nil {
		raw = decimal.Min(raw, decimal.NewFromFloat(*d.MaxDiscountAmount))
	}
	if raw.IsNegative() {
		return decimal.Zero
	}
	// Clamp after rounding; totals may carry more than 2 places.
	return decimal.Min(raw.Round(2), base.Truncate(2))
}

// Selection is the outcome of picking from a catalog. Discount is nil when
// nothing in the catalog is eligible.
type Selection struct {
	Discount *Discount `json:"discount,omitempty"`
	Result   Result    `json:"result"`
}

func (s Selection) ID() uuid.UUID {
	if s.Discount == nil {
		return uuid.Nil
	}
	return s.Discount.ID
}

// SelectBest returns the eligible discount with the highest savings. Ties go to
// the earliest entry in catalog order.
func SelectBest(catalog []*Discount, cartTotal float64, channel string, now time.Time) Selection {
	var best Selection
	for _, d := range catalog {
		if d == nil {
			continue
		}
		res := Evaluate(d, cartTotal, channel, now)
		if !res.Eligible {
			continue
		}
		if best.Discount == nil || res.Savings > best.Result.Savings {
			best = Selection{Discount: d, Result: res}
		}
	}
	return best
}

// PreviewItem computes an item-level saving for display. Gates use the cart
// total, savings use the item subtotal, and the item category must be covered.
func PreviewItem(d *Discount, item CartItem, cartTotal float64, channel string, now time.Time) Result {
	if !d.AppliesToCategory(item.Category) {
		return Result{Reason: ReasonCategory}
	}
	if reason := gate(d, cartTotal, channel, now); reason != ReasonNone {
		return Result{Reason: reason}
	}
	return Result{Eligible: true, Savings: savings(d, itemSubtotal(item)).InexactFloat64()}
}

type ItemPreview struct {
	Item       CartItem  `json:"item"`
	DiscountID uuid.UUID `json:"discount_id,omitempty"`
	Savings    float64   `json:"savings"`
}

// PreviewItems returns the best item-level saving per cart line. It never
// touches the cart-level selection.
func PreviewItems(catalog []*Discount, items []CartItem, channel string, now time.Time) []ItemPreview {
	total := CartTotal(items)
	previews := make([]ItemPreview, 0, len(items))
	for _, item := range items {
		p := ItemPreview{Item: item}
		for _, d := range catalog {
			res := PreviewItem(d, item, total, channel, now)
			if res.Eligible && (p.DiscountID == uuid.Nil || res.Savings > p.Savings) {
				p.DiscountID = d.ID
				p.Savings = res.Savings
			}
		}
		previews = append(previews, p)
	}
	return previews
}

// Quote is the priced outcome of applying one discount to a cart.
type Quote struct {
	DiscountID     uuid.UUID `json:"discount_id"`
	CartTotal      float64   `json:"cart_total"`
	DiscountAmount float64   `json:"discount_amount"`
	FinalAmount    float64   `json:"final_amount"`
	Savings        float64   `json:"savings"`
}

// Apply prices a cart with d, failing with an IneligibleError.
func Apply(d *Discount, cartTotal float64, channel string, now time.Time) (Quote, error) {
	res := Evaluate(d, cartTotal, channel, now)
	if !res.Eligible {
		return Quote{}, &IneligibleError{DiscountID: d.ID, Reason: res.Reason}
	}
	return Quote{
		DiscountID:     d.ID,
		CartTotal:      cartTotal,
		DiscountAmount: res.Savings,
		FinalAmount:    FinalAmount(cartTotal, res.Savings),
		Savings:        res.Savings,
	}, nil
}

// FinalAmount subtracts savings from total, never going below zero.
func FinalAmount(total, saved float64) float64 {
	final := decimal.NewFromFloat(total).Sub(decimal.NewFromFloat(saved))
	if final.IsNegative() {
		return 0
	}
	return final.Round(2).InexactFloat64()
}

// CartTotal sums unit price times quantity, rounded to 2 places.
func CartTotal(items []CartItem) float64 {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(itemSubtotal(item))
	}
	return total.Round(2).InexactFloat64()
}

func itemSubtotal(item CartItem) decimal.Decimal {
	return decimal.NewFromFloat(item.UnitPrice).Mul(decimal.NewFromInt(int64(item.Quantity)))
}
