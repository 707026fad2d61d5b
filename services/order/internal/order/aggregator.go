package order

import (
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const DefaultHistoryWindow = 60 * time.Second

// LineItem is one consolidated bill line. Items sharing a name are merged.
type LineItem struct {
	Name      string  `json:"name"`
	Category  string  `json:"category,omitempty"`
	UnitPrice float64 `json:"unit_price"`
	Quantity  int     `json:"quantity"`
	Subtotal  float64 `json:"subtotal"`
}

// TableSession is the merged view of the active dine-in orders on one table.
type TableSession struct {
	RestaurantID   uuid.UUID   `json:"restaurant_id"`
	TableNumber    string      `json:"table_number"`
	OrderIDs       []uuid.UUID `json:"order_ids"`
	Items          []LineItem  `json:"items"`
	OriginalAmount float64     `json:"original_amount"`
	DiscountAmount float64     `json:"discount_amount"`
	TotalAmount    float64     `json:"total_amount"`
	OpenedAt       time.Time   `json:"opened_at"`
	Identity       *Identity   `json:"identity,omitempty"`
}

// Bill is one historical bill: a single order or a group of dine-in orders
// closed together.
type Bill struct {
	RestaurantID   uuid.UUID   `json:"restaurant_id"`
	OrderType      OrderType   `json:"order_type"`
	TableNumber    string      `json:"table_number,omitempty"`
	OrderIDs       []uuid.UUID `json:"order_ids"`
	Items          []LineItem  `json:"items"`
	OriginalAmount float64     `json:"original_amount"`
	DiscountAmount float64     `json:"discount_amount"`
	TotalAmount    float64     `json:"total_amount"`
	OpenedAt       time.Time   `json:"opened_at"`
	ClosedAt       time.Time   `json:"closed_at"`
}

type totals struct {
	original decimal.Decimal
	discount decimal.Decimal
	total    decimal.Decimal
}

func (t *totals) add(o *Order) {
	t.original = t.original.Add(decimal.NewFromFloat(o.OriginalAmount))
	t.total = t.total.Add(decimal.NewFromFloat(o.TotalAmount))
	if o.Discount != nil {
		t.discount = t.discount.Add(decimal.NewFromFloat(o.Discount.Amount))
	}
}

// MergeItems combines items with identical names across orders, keeping the
// order of first appearance.
func MergeItems(orders []*Order) []LineItem {
	index := make(map[string]int)
	subtotals := make([]decimal.Decimal, 0)
	var lines []LineItem

	for _, o := range orders {
		for _, it := range o.Items {
			i, ok := index[it.Name]
			if !ok {
				i = len(lines)
				index[it.Name] = i
				lines = append(lines, LineItem{Name: it.Name, Category: it.Category, UnitPrice: it.UnitPrice})
				subtotals = append(subtotals, decimal.Zero)
			}
			lines[i].Quantity += it.Quantity
			subtotals[i] = subtotals[i].Add(itemSubtotal(it))
		}
	}

	for i := range lines {
		lines[i].Subtotal = subtotals[i].Round(2).InexactFloat64()
	}
	return lines
}

// AggregateTables groups the active dine-in orders by table. Sessions are
// sorted by table number.
func AggregateTables(orders []*Order) []TableSession {
	byTable := make(map[string][]*Order)
	var keys []string

	for _, o := range orders {
		if !o.IsDineIn() || !o.IsActive() {
			continue
		}
		if _, ok := byTable[o.TableNumber]; !ok {
			keys = append(keys, o.TableNumber)
		}
		byTable[o.TableNumber] = append(byTable[o.TableNumber], o)
	}

	sort.Slice(keys, func(i, j int) bool { return tableLess(keys[i], keys[j]) })

	sessions := make([]TableSession, 0, len(keys))
	for _, table := range keys {
		sessions = append(sessions, newTableSession(byTable[table]))
	}
	return sessions
}

func newTableSession(orders []*Order) TableSession {
	sortByCreated(orders)

	var sum totals
	ids := make([]uuid.UUID, 0, len(orders))
	for _, o := range orders {
		ids = append(ids, o.ID)
		sum.add(o)
	}

	return TableSession{
		RestaurantID:   orders[0].RestaurantID,
		TableNumber:    orders[0].TableNumber,
		OrderIDs:       ids,
		Items:          MergeItems(orders),
		OriginalAmount: sum.original.Round(2).InexactFloat64(),
		DiscountAmount: sum.discount.Round(2).InexactFloat64(),
		TotalAmount:    sum.total.Round(2).InexactFloat64(),
		OpenedAt:       orders[0].CreatedAt,
	}
}

// GroupCompletedForHistory turns completed orders into bills. Dine-in orders
// on the same table form one bill while each completion falls within window
// of the previous one. Every other order is a bill of its own. Bills are
// returned most recently closed first.
//
// This is a best-effort reconstruction of seatings, not a hard guarantee.
func GroupCompletedForHistory(orders []*Order, window time.Duration) []Bill {
	if window <= 0 {
		window = DefaultHistoryWindow
	}

	var bills []Bill
	byTable := make(map[string][]*Order)

	for _, o := range orders {
		if o.IsActive() {
			continue
		}
		if !o.IsDineIn() {
			bills = append(bills, newBill([]*Order{o}))
			continue
		}
		key := o.RestaurantID.String() + "/" + o.TableNumber
		byTable[key] = append(byTable[key], o)
	}

	for _, group := range byTable {
		sort.SliceStable(group, func(i, j int) bool {
			return completedAt(group[i]).Before(completedAt(group[j]))
		})

		start := 0
		for i := 1; i <= len(group); i++ {
			if i < len(group) && completedAt(group[i]).Sub(completedAt(group[i-1])) <= window {
				continue
			}
			bills = append(bills, newBill(group[start:i]))
			start = i
		}
	}

	sort.SliceStable(bills, func(i, j int) bool {
		return bills[i].ClosedAt.After(bills[j].ClosedAt)
	})
	return bills
}

func newBill(orders []*Order) Bill {
	var sum totals
	ids := make([]uuid.UUID, 0, len(orders))
	opened := orders[0].CreatedAt
	closed := completedAt(orders[0])

	for _, o := range orders {
		ids = append(ids, o.ID)
		sum.add(o)
		if o.CreatedAt.Before(opened) {
			opened = o.CreatedAt
		}
		if c := completedAt(o); c.After(closed) {
			closed = c
		}
	}

	return Bill{
		RestaurantID:   orders[0].RestaurantID,
		OrderType:      orders[0].OrderType,
		TableNumber:    orders[0].TableNumber,
		OrderIDs:       ids,
		Items:          MergeItems(orders),
		OriginalAmount: sum.original.Round(2).InexactFloat64(),
		DiscountAmount: sum.discount.Round(2).InexactFloat64(),
		TotalAmount:    sum.total.Round(2).InexactFloat64(),
		OpenedAt:       opened,
		ClosedAt:       closed,
	}
}

// completedAt falls back to UpdatedAt for records written before completion
// times were tracked.
func completedAt(o *Order) time.Time {
	if o.CompletedAt != nil {
		return *o.CompletedAt
	}
	return o.UpdatedAt
}

func sortByCreated(orders []*Order) {
	sort.SliceStable(orders, func(i, j int) bool {
		return orders[i].CreatedAt.Before(orders[j].CreatedAt)
	})
}

// tableLess orders numeric table labels numerically and everything else
// lexically after them.
func tableLess(a, b string) bool {
	na, errA := strconv.Atoi(a)
	nb, errB := strconv.Atoi(b)
	switch {
	case errA == nil && errB == nil:
		return na < nb
	case errA == nil:
		return true
	case errB == nil:
		return false
	default:
		return a < b
	}
}
