package order

import (
	"errors"
	"testing"
	"time"

	"github.com/appetiteclub/orderflow/pkg/enums/orderstatus"
	"github.com/appetiteclub/orderflow/services/order/internal/discount"
	"github.com/google/uuid"
)

var (
	testRestaurantID = uuid.MustParse("550e8400-e29b-41d4-a716-446655440001")
	otherRestaurant  = uuid.MustParse("550e8400-e29b-41d4-a716-446655440002")
	testNow          = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
)

func testOrder(orderType OrderType, status orderstatus.Status) *Order {
	o := NewOrder()
	o.RestaurantID = testRestaurantID
	o.OrderType = orderType
	o.Source = SourceStaff
	o.PaymentMethod = PaymentCash
	if orderType == TypeDineIn {
		o.TableNumber = "5"
	}
	o.Items = []Item{
		{Name: "Paneer Tikka", Category: "starters", UnitPrice: 100, Quantity: 2},
		{Name: "Lassi", Category: "drinks", UnitPrice: 50, Quantity: 1},
	}
	o.Recalculate()
	o.BeforeCreate(testNow)
	o.Status = status.Name
	return o
}

func TestNewOrder(t *testing.T) {
	o := NewOrder()

	if o.ID == uuid.Nil {
		t.Error("NewOrder() should generate a non-nil UUID")
	}
	if o.Status != orderstatus.Statuses.Pending.Name {
		t.Errorf("NewOrder() Status = %q, want pending", o.Status)
	}
	if o.PaymentStatus != PaymentPending {
		t.Errorf("NewOrder() PaymentStatus = %q, want pending", o.PaymentStatus)
	}
}

func TestOrderBeforeCreate(t *testing.T) {
	o := &Order{}
	o.BeforeCreate(testNow)

	if o.ID == uuid.Nil {
		t.Error("BeforeCreate() should set ID")
	}
	if !o.CreatedAt.Equal(testNow) || !o.UpdatedAt.Equal(testNow) {
		t.Errorf("BeforeCreate() timestamps = %v/%v, want %v", o.CreatedAt, o.UpdatedAt, testNow)
	}
	if o.Version != 1 {
		t.Errorf("BeforeCreate() Version = %d, want 1", o.Version)
	}
}

func TestOrderRecalculate(t *testing.T) {
	tests := []struct {
		name         string
		items        []Item
		discount     *AppliedDiscount
		wantOriginal float64
		wantTotal    float64
		wantDiscount float64
	}{
		{
			name:         "withoutDiscount",
			items:        []Item{{Name: "A", UnitPrice: 100, Quantity: 2}, {Name: "B", UnitPrice: 50, Quantity: 1}},
			wantOriginal: 250,
			wantTotal:    250,
		},
		{
			name:         "withDiscount",
			items:        []Item{{Name: "A", UnitPrice: 100, Quantity: 2}, {Name: "B", UnitPrice: 50, Quantity: 1}},
			discount:     &AppliedDiscount{Amount: 25},
			wantOriginal: 250,
			wantTotal:    225,
			wantDiscount: 25,
		},
		{
			name:         "discountClampedToOriginal",
			items:        []Item{{Name: "A", UnitPrice: 40, Quantity: 1}},
			discount:     &AppliedDiscount{Amount: 75},
			wantOriginal: 40,
			wantTotal:    0,
			wantDiscount: 40,
		},
		{
			name:         "fractionalPrices",
			items:        []Item{{Name: "Tea", UnitPrice: 0.1, Quantity: 3}, {Name: "Bun", UnitPrice: 0.2, Quantity: 1}},
			wantOriginal: 0.5,
			wantTotal:    0.5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := &Order{Items: tt.items, Discount: tt.discount}
			o.Recalculate()

			if o.OriginalAmount != tt.wantOriginal {
				t.Errorf("OriginalAmount = %v, want %v", o.OriginalAmount, tt.wantOriginal)
			}
			if o.TotalAmount != tt.wantTotal {
				t.Errorf("TotalAmount = %v, want %v", o.TotalAmount, tt.wantTotal)
			}
			if o.Discount != nil && o.Discount.Amount != tt.wantDiscount {
				t.Errorf("Discount.Amount = %v, want %v", o.Discount.Amount, tt.wantDiscount)
			}
		})
	}
}

func TestOrderApplyAndRemoveDiscount(t *testing.T) {
	o := testOrder(TypeDineIn, orderstatus.Statuses.Pending)
	d := &discount.Discount{ID: uuid.New(), Name: "Lunch", Type: discount.TypePercentage, Value: 10}

	o.ApplyDiscount(d, 25)
	if o.Discount == nil || o.Discount.DiscountID != d.ID {
		t.Fatalf("ApplyDiscount() Discount = %+v", o.Discount)
	}
	if o.TotalAmount != 225 {
		t.Errorf("TotalAmount = %v, want 225", o.TotalAmount)
	}

	o.RemoveDiscount()
	if o.Discount != nil {
		t.Error("RemoveDiscount() should clear the discount")
	}
	if o.TotalAmount != 250 {
		t.Errorf("TotalAmount = %v, want 250", o.TotalAmount)
	}
}

func TestOrderUnprintedItems(t *testing.T) {
	o := testOrder(TypeDineIn, orderstatus.Statuses.Pending)
	if got := o.UnprintedItems(); len(got) != 2 {
		t.Fatalf("UnprintedItems() = %v, want 2 indexes", got)
	}

	o.Items[0].PrintedToKitchen = true
	got := o.UnprintedItems()
	if len(got) != 1 || got[0] != 1 {
		t.Errorf("UnprintedItems() = %v, want [1]", got)
	}
}

func TestOrderCloneIsDeep(t *testing.T) {
	o := testOrder(TypeDineIn, orderstatus.Statuses.Pending)
	o.Discount = &AppliedDiscount{Amount: 10}
	completed := testNow
	o.CompletedAt = &completed

	c := o.Clone()
	c.Items[0].Quantity = 99
	c.Discount.Amount = 99
	*c.CompletedAt = testNow.Add(time.Hour)

	if o.Items[0].Quantity == 99 || o.Discount.Amount == 99 || !o.CompletedAt.Equal(testNow) {
		t.Error("Clone() shares state with the original")
	}
}

func TestOrderAdvance(t *testing.T) {
	s := orderstatus.Statuses
	tests := []struct {
		name      string
		orderType OrderType
		from      orderstatus.Status
		to        orderstatus.Status
		wantErr   bool
	}{
		{name: "dineInPendingToPreparing", orderType: TypeDineIn, from: s.Pending, to: s.Preparing},
		{name: "dineInPreparingToCompleted", orderType: TypeDineIn, from: s.Preparing, to: s.Completed},
		{name: "dineInCannotGoOutForDelivery", orderType: TypeDineIn, from: s.Preparing, to: s.OutForDelivery, wantErr: true},
		{name: "takeawayPreparingToCompleted", orderType: TypeTakeaway, from: s.Preparing, to: s.Completed},
		{name: "deliveryPreparingToOutForDelivery", orderType: TypeDelivery, from: s.Preparing, to: s.OutForDelivery},
		{name: "deliveryOutToDelivered", orderType: TypeDelivery, from: s.OutForDelivery, to: s.Delivered},
		{name: "deliveryDeliveredToCompleted", orderType: TypeDelivery, from: s.Delivered, to: s.Completed},
		{name: "deliveryCannotSkipToCompleted", orderType: TypeDelivery, from: s.Preparing, to: s.Completed, wantErr: true},
		{name: "cannotGoBackwards", orderType: TypeDineIn, from: s.Preparing, to: s.Pending, wantErr: true},
		{name: "pendingCannotComplete", orderType: TypeDineIn, from: s.Pending, to: s.Completed, wantErr: true},
		{name: "completedIsTerminal", orderType: TypeDelivery, from: s.Completed, to: s.Pending, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := testOrder(tt.orderType, tt.from)
			err := o.Advance(tt.to, testNow.Add(time.Minute))

			if tt.wantErr {
				if !errors.Is(err, ErrInvalidTransition) {
					t.Fatalf("Advance() error = %v, want ErrInvalidTransition", err)
				}
				if o.Status != tt.from.Name {
					t.Errorf("Advance() changed status to %q on failure", o.Status)
				}
				return
			}
			if err != nil {
				t.Fatalf("Advance() unexpected error: %v", err)
			}
			if o.Status != tt.to.Name {
				t.Errorf("Status = %q, want %q", o.Status, tt.to.Name)
			}
		})
	}
}

func TestOrderSetStatusIsUnguarded(t *testing.T) {
	o := testOrder(TypeDineIn, orderstatus.Statuses.Completed)
	o.SetStatus(orderstatus.Statuses.OutForDelivery, testNow)

	if o.Status != orderstatus.Statuses.OutForDelivery.Name {
		t.Errorf("Status = %q, want out-for-delivery", o.Status)
	}
	if o.CompletedAt != nil {
		t.Error("leaving completed should clear CompletedAt")
	}
}

func TestOrderForceComplete(t *testing.T) {
	for _, st := range orderstatus.All {
		t.Run(st.Name, func(t *testing.T) {
			o := testOrder(TypeDineIn, st)
			o.ForceComplete(testNow)

			if o.Status != orderstatus.Statuses.Completed.Name {
				t.Errorf("Status = %q, want completed", o.Status)
			}
			if o.CompletedAt == nil {
				t.Error("ForceComplete() should set CompletedAt")
			}
			if o.IsActive() {
				t.Error("completed order should not be active")
			}
		})
	}
}

func TestOrderForceCompleteKeepsFirstCompletion(t *testing.T) {
	o := testOrder(TypeDineIn, orderstatus.Statuses.Preparing)
	o.ForceComplete(testNow)
	o.ForceComplete(testNow.Add(time.Hour))

	if !o.CompletedAt.Equal(testNow) {
		t.Errorf("CompletedAt = %v, want %v", o.CompletedAt, testNow)
	}
}
