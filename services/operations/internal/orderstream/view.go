package orderstream

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/appetiteclub/apt"
	"github.com/appetiteclub/orderflow/pkg/enums/orderstatus"
	"github.com/appetiteclub/orderflow/pkg/event"
	"github.com/shopspring/decimal"
)

const (
	orderTypeDineIn = "dine-in"

	// DefaultCompletedRetention is how long finished orders stay in the view.
	DefaultCompletedRetention = 15 * time.Minute
)

// Order is the console's copy of an order as published by the order service.
type Order struct {
	ID             string     `json:"id"`
	RestaurantID   string     `json:"restaurant_id"`
	OrderType      string     `json:"order_type"`
	TableNumber    string     `json:"table_number,omitempty"`
	Source         string     `json:"source"`
	Items          []Item     `json:"items"`
	OriginalAmount float64    `json:"original_amount"`
	TotalAmount    float64    `json:"total_amount"`
	CustomerName   string     `json:"customer_name,omitempty"`
	PaymentMethod  string     `json:"payment_method"`
	PaymentStatus  string     `json:"payment_status"`
	Status         string     `json:"status"`
	Version        int64      `json:"version"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
}

type Item struct {
	Name             string  `json:"name"`
	Category         string  `json:"category,omitempty"`
	UnitPrice        float64 `json:"unit_price"`
	Quantity         int     `json:"quantity"`
	PrintedToKitchen bool    `json:"printed_to_kitchen"`
}

// Active reports whether the order still belongs to a live table session.
// Unknown statuses count as active.
func (o Order) Active() bool {
	s := orderstatus.ByName(o.Status)
	return s == nil || s.Active()
}

func (o Order) finishedAt() time.Time {
	if o.CompletedAt != nil {
		return *o.CompletedAt
	}
	return o.UpdatedAt
}

func (o Order) seated() bool {
	return o.OrderType == orderTypeDineIn && o.TableNumber != ""
}

// Table is the console's merged view of one table's active orders.
type Table struct {
	RestaurantID string   `json:"restaurant_id"`
	TableNumber  string   `json:"table_number"`
	OrderIDs     []string `json:"order_ids"`
	ItemCount    int      `json:"item_count"`
	TotalAmount  float64  `json:"total_amount"`
}

// Source lists the authoritative set of orders.
type Source interface {
	ListOrders(ctx context.Context) ([]Order, error)
}

type ViewOption func(*View)

// WithNewOrderHook is called once per order first seen after the initial load.
func WithNewOrderHook(fn func(Order)) ViewOption {
	return func(v *View) {
		v.onNew = fn
	}
}

// WithTableClosedHook is called when the last active order of a table completes.
func WithTableClosedHook(fn func(restaurantID, table string)) ViewOption {
	return func(v *View) {
		v.onTableClosed = fn
	}
}

// WithCompletedRetention drops finished orders from snapshots once they are
// older than d. Without it they stay until their table is torn down.
func WithCompletedRetention(d time.Duration) ViewOption {
	return func(v *View) {
		v.retention = d
	}
}

type tombstone struct {
	version int64
	at      time.Time
}

// View is the reconciled order cache behind the console.
type View struct {
	mu      sync.RWMutex
	orders  map[string]*Order
	cleared map[string]tombstone
	primed  bool

	retention time.Duration
	now       func() time.Time

	source        Source
	onNew         func(Order)
	onTableClosed func(restaurantID, table string)
	logger        apt.Logger
}

func NewView(source Source, logger apt.Logger, opts ...ViewOption) *View {
	if logger == nil {
		logger = apt.NewNoopLogger()
	}
	v := &View{
		orders:    make(map[string]*Order),
		cleared:   make(map[string]tombstone),
		now:       time.Now,
		source:    source,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Refetch replaces the view with the source's current orders.
func (v *View) Refetch(ctx context.Context) error {
	if v.source == nil {
		return errors.New("order source not configured")
	}

	orders, err := v.source.ListOrders(ctx)
	if err != nil {
		return err
	}

	v.Replace(orders)
	return nil
}

// Replace installs an authoritative snapshot. Entries newer than the
// snapshot, applied from the stream while it was loading, are kept.
func (v *View) Replace(orders []Order) {
	v.mu.Lock()
	defer v.mu.Unlock()

	cutoff := v.cutoff()
	for id, ts := range v.cleared {
		if !cutoff.IsZero() && ts.at.Before(cutoff) {
			delete(v.cleared, id)
		}
	}

	next := make(map[string]*Order, len(orders))
	for i := range orders {
		o := orders[i]
		if o.ID == "" || v.skipLocked(o, cutoff) {
			continue
		}
		if cur, ok := v.orders[o.ID]; ok && cur.Version > o.Version {
			next[o.ID] = cur
			continue
		}
		next[o.ID] = &o
	}

	v.orders = next
	v.primed = true
	v.logger.Debug("order view replaced", "orders", len(next))
}

// Apply folds a stream event into the view. It returns false for events
// that are stale, duplicated or undecodable.
func (v *View) Apply(evt *event.OrderEvent) bool {
	if evt == nil {
		return false
	}

	var o Order
	if len(evt.Order) > 0 {
		if err := json.Unmarshal(evt.Order, &o); err != nil {
			v.logger.Error("cannot decode order event", "order_id", evt.OrderID, "error", err)
			return false
		}
	}
	if o.ID == "" {
		o.ID = evt.OrderID
	}
	if o.RestaurantID == "" {
		o.RestaurantID = evt.RestaurantID
	}
	if o.Version == 0 {
		o.Version = evt.Version
	}

	return v.Upsert(o)
}

// Upsert merges one order into the view with the same version rules as Apply.
func (v *View) Upsert(o Order) bool {
	if o.ID == "" {
		return false
	}

	v.mu.Lock()
	prev, seen := v.orders[o.ID]
	if seen && prev.Version > 0 && o.Version <= prev.Version {
		v.mu.Unlock()
		v.logger.Debug("ignoring stale order event", "order_id", o.ID, "version", o.Version, "current", prev.Version)
		return false
	}
	if v.clearedLocked(o) {
		v.mu.Unlock()
		return false
	}
	delete(v.cleared, o.ID)

	v.orders[o.ID] = &o
	isNew := !seen && v.primed && o.Active()
	closed := seen && prev.Active() && !o.Active() && o.seated() && !v.tableActiveLocked(o.RestaurantID, o.TableNumber)
	v.mu.Unlock()

	if isNew && v.onNew != nil {
		v.onNew(o)
	}
	if closed {
		v.logger.Info("table session ended", "restaurant_id", o.RestaurantID, "table_number", o.TableNumber)
		if v.onTableClosed != nil {
			v.onTableClosed(o.RestaurantID, o.TableNumber)
		}
	}

	return true
}

// TeardownTable drops a cleared table's orders from the view. Orders named
// in orderIDs are removed along with any completed order left on the table.
// Removed orders are not brought back by a later snapshot at the same version.
func (v *View) TeardownTable(restaurantID, table string, orderIDs []string) int {
	v.mu.Lock()
	defer v.mu.Unlock()

	now := v.now()
	removed := 0
	for _, id := range orderIDs {
		ts := tombstone{at: now}
		if o, ok := v.orders[id]; ok {
			ts.version = o.Version
			delete(v.orders, id)
			removed++
		}
		v.cleared[id] = ts
	}
	for id, o := range v.orders {
		if o.RestaurantID == restaurantID && o.TableNumber == table && o.seated() && !o.Active() {
			v.cleared[id] = tombstone{version: o.Version, at: now}
			delete(v.orders, id)
			removed++
		}
	}
	return removed
}

// skipLocked reports whether o must stay out of the view: finished past the
// retention window, or already torn down at this version.
func (v *View) skipLocked(o Order, cutoff time.Time) bool {
	if !o.Active() && !cutoff.IsZero() && o.finishedAt().Before(cutoff) {
		return true
	}
	return v.clearedLocked(o)
}

// clearedLocked reports whether o was torn down and has not been reopened
// since.
func (v *View) clearedLocked(o Order) bool {
	ts, ok := v.cleared[o.ID]
	if !ok {
		return false
	}
	return !o.Active() || o.Version <= ts.version
}

func (v *View) cutoff() time.Time {
	if v.retention <= 0 {
		return time.Time{}
	}
	return v.now().Add(-v.retention)
}

// Orders returns the cached orders, oldest first. Empty arguments match everything.
func (v *View) Orders(restaurantID, status string) []Order {
	v.mu.RLock()
	out := make([]Order, 0, len(v.orders))
	for _, o := range v.orders {
		if restaurantID != "" && o.RestaurantID != restaurantID {
			continue
		}
		if status != "" && o.Status != status {
			continue
		}
		out = append(out, *o)
	}
	v.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Get returns a copy of one cached order.
func (v *View) Get(id string) (Order, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	o, ok := v.orders[id]
	if !ok {
		return Order{}, false
	}
	return *o, true
}

// Tables merges active dine-in orders per restaurant and table.
func (v *View) Tables(restaurantID string) []Table {
	type key struct{ rid, table string }
	totals := make(map[key]decimal.Decimal)
	tables := make(map[key]*Table)

	for _, o := range v.Orders(restaurantID, "") {
		if !o.seated() || !o.Active() {
			continue
		}
		k := key{o.RestaurantID, o.TableNumber}
		t, ok := tables[k]
		if !ok {
			t = &Table{RestaurantID: o.RestaurantID, TableNumber: o.TableNumber}
			tables[k] = t
		}
		t.OrderIDs = append(t.OrderIDs, o.ID)
		for _, it := range o.Items {
			t.ItemCount += it.Quantity
		}
		totals[k] = totals[k].Add(decimal.NewFromFloat(o.TotalAmount))
	}

	out := make([]Table, 0, len(tables))
	for k, t := range tables {
		t.TotalAmount = totals[k].Round(2).InexactFloat64()
		out = append(out, *t)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].RestaurantID != out[j].RestaurantID {
			return out[i].RestaurantID < out[j].RestaurantID
		}
		return out[i].TableNumber < out[j].TableNumber
	})
	return out
}

// Primed reports whether an authoritative snapshot has been loaded.
func (v *View) Primed() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.primed
}

func (v *View) Len() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.orders)
}

func (v *View) tableActiveLocked(restaurantID, table string) bool {
	for _, o := range v.orders {
		if o.RestaurantID == restaurantID && o.TableNumber == table && o.seated() && o.Active() {
			return true
		}
	}
	return false
}
