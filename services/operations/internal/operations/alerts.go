package operations

import (
	"sync"
	"time"

	"github.com/appetiteclub/orderflow/services/operations/internal/orderstream"
)

const (
	AlertNewOrder     = "new-order"
	AlertTableClosed  = "table-closed"
	AlertTableCleared = "table-cleared"

	DefaultAlertCapacity = 200
)

type Alert struct {
	Kind         string    `json:"kind"`
	RestaurantID string    `json:"restaurant_id"`
	OrderID      string    `json:"order_id,omitempty"`
	TableNumber  string    `json:"table_number,omitempty"`
	Source       string    `json:"source,omitempty"`
	TotalAmount  float64   `json:"total_amount,omitempty"`
	By           string    `json:"by,omitempty"`
	At           time.Time `json:"at"`
}

// AlertFeed keeps the most recent console alerts in a fixed ring.
type AlertFeed struct {
	mu    sync.RWMutex
	items []Alert
	next  int
	full  bool
	now   func() time.Time
}

func NewAlertFeed(capacity int) *AlertFeed {
	if capacity <= 0 {
		capacity = DefaultAlertCapacity
	}
	return &AlertFeed{
		items: make([]Alert, capacity),
		now:   time.Now,
	}
}

func (f *AlertFeed) Add(a Alert) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if a.At.IsZero() {
		a.At = f.now().UTC()
	}
	f.items[f.next] = a
	f.next = (f.next + 1) % len(f.items)
	if f.next == 0 {
		f.full = true
	}
}

// Recent returns up to limit alerts, newest first. A restaurantID of "" matches all.
func (f *AlertFeed) Recent(restaurantID string, limit int) []Alert {
	f.mu.RLock()
	defer f.mu.RUnlock()

	count := f.next
	if f.full {
		count = len(f.items)
	}

	out := make([]Alert, 0, count)
	for i := 1; i <= count; i++ {
		a := f.items[(f.next-i+len(f.items))%len(f.items)]
		if restaurantID != "" && a.RestaurantID != restaurantID {
			continue
		}
		out = append(out, a)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// NewOrderAlert is wired as the order view's new-order hook.
func (f *AlertFeed) NewOrderAlert(o orderstream.Order) {
	f.Add(Alert{
		Kind:         AlertNewOrder,
		RestaurantID: o.RestaurantID,
		OrderID:      o.ID,
		TableNumber:  o.TableNumber,
		Source:       o.Source,
		TotalAmount:  o.TotalAmount,
	})
}

// TableClosedAlert is wired as the order view's table-closed hook.
func (f *AlertFeed) TableClosedAlert(restaurantID, table string) {
	f.Add(Alert{
		Kind:         AlertTableClosed,
		RestaurantID: restaurantID,
		TableNumber:  table,
	})
}
