package discount

import (
	"sync"
	"time"
)

// Cart keeps the cart-level discount selection current. Every change to the
// items or the catalog re-runs selection, so a discount that stops qualifying
// is replaced by the next best one, or dropped, without any caller action.
type Cart struct {
	mu      sync.Mutex
	channel string
	items   []CartItem
	catalog []*Discount
	applied Selection
	now     func() time.Time
}

func NewCart(channel string, catalog []*Discount) *Cart {
	c := &Cart{
		channel: channel,
		catalog: catalog,
		now:     time.Now,
	}
	c.reselect()
	return c
}

// SetItems replaces the cart lines. It reports whether the applied discount changed.
func (c *Cart) SetItems(items []CartItem) (Selection, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = append([]CartItem(nil), items...)
	return c.reselect()
}

// SetCatalog replaces the discount catalog. It reports whether the applied discount changed.
func (c *Cart) SetCatalog(catalog []*Discount) (Selection, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.catalog = catalog
	return c.reselect()
}

func (c *Cart) Applied() Selection {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.applied
}

func (c *Cart) Total() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CartTotal(c.items)
}

// Quote prices the cart with the applied discount, if any.
func (c *Cart) Quote() Quote {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := CartTotal(c.items)
	saved := c.applied.Result.Savings
	return Quote{
		DiscountID:     c.applied.ID(),
		CartTotal:      total,
		DiscountAmount: saved,
		FinalAmount:    FinalAmount(total, saved),
		Savings:        saved,
	}
}

// Previews returns item-level previews against the current catalog.
func (c *Cart) Previews() []ItemPreview {
	c.mu.Lock()
	defer c.mu.Unlock()
	return PreviewItems(c.catalog, c.items, c.channel, c.now())
}

func (c *Cart) reselect() (Selection, bool) {
	prev := c.applied.ID()
	c.applied = SelectBest(c.catalog, CartTotal(c.items), c.channel, c.now())
	return c.applied, c.applied.ID() != prev
}
