package order

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/appetiteclub/apt"
	"github.com/appetiteclub/orderflow/pkg/enums/orderstatus"
	"github.com/appetiteclub/orderflow/services/order/internal/auth"
	"github.com/appetiteclub/orderflow/services/order/internal/discount"
	"github.com/google/uuid"
)

const lockStripes = 64

// EventSink receives order lifecycle events. EventPublisher implements it.
type EventSink interface {
	OrderCreated(ctx context.Context, o *Order)
	OrderUpdated(ctx context.Context, o *Order)
	TableCleared(ctx context.Context, restaurantID, tableNumber, clearedBy string, orders []*Order)
}

type ServiceOption func(*Service)

func WithNotifier(n Notifier) ServiceOption {
	return func(s *Service) { s.notifier = n }
}

func WithRenderer(r ReceiptRenderer) ServiceOption {
	return func(s *Service) { s.renderer = r }
}

func WithProfiles(p ProfileProvider) ServiceOption {
	return func(s *Service) { s.profiles = p }
}

func WithIdentityCache(c *IdentityCache) ServiceOption {
	return func(s *Service) { s.identities = c }
}

// WithGuardedStatus makes UpdateStatus follow the normal progression only.
func WithGuardedStatus(guarded bool) ServiceOption {
	return func(s *Service) { s.guarded = guarded }
}

func WithHistoryWindow(window time.Duration) ServiceOption {
	return func(s *Service) { s.historyWindow = window }
}

func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

// Service owns every order mutation. Writes to one order are serialized on
// this instance by a striped lock and across instances by the version check
// in OrderRepo.Save.
type Service struct {
	orders     OrderRepo
	discounts  discount.DiscountRepo
	events     EventSink
	notifier   Notifier
	renderer   ReceiptRenderer
	profiles   ProfileProvider
	identities *IdentityCache
	logger     apt.Logger

	guarded       bool
	historyWindow time.Duration
	now           func() time.Time

	stripes [lockStripes]sync.Mutex
}

func NewService(orders OrderRepo, discounts discount.DiscountRepo, events EventSink, logger apt.Logger, opts ...ServiceOption) *Service {
	if logger == nil {
		logger = apt.NewNoopLogger()
	}
	s := &Service{
		orders:        orders,
		discounts:     discounts,
		events:        events,
		logger:        logger,
		historyWindow: DefaultHistoryWindow,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.identities == nil {
		s.identities = NewIdentityCache(DefaultIdentityTTL)
	}
	return s
}

func (s *Service) lock(id uuid.UUID) func() {
	m := &s.stripes[binary.BigEndian.Uint32(id[12:])%lockStripes]
	m.Lock()
	return m.Unlock
}

// CreateOrder validates, prices and persists a new order. A requested or
// auto-selected discount that does not qualify is dropped and the order is
// placed at full price.
func (s *Service) CreateOrder(ctx context.Context, req CreateOrderRequest) (*Order, error) {
	if problems := ValidateOrderCreate(ctx, req); len(problems) > 0 {
		return nil, newValidationError(problems...)
	}
	if !auth.CanAccess(ctx, req.RestaurantID) {
		return nil, ErrForbidden
	}

	now := s.now().UTC()
	o := newOrderFromRequest(req)

	chosen, saved, err := s.chooseDiscount(ctx, o, req, now)
	if err != nil {
		return nil, err
	}

	o.BeforeCreate(now)

	if chosen != nil {
		o.ApplyDiscount(chosen, saved)
		err = s.orders.CreateWithDiscount(ctx, o, chosen.ID)
		if errors.Is(err, discount.ErrExhausted) {
			s.logger.Info("discount exhausted at checkout, placing order without it", "order_id", o.ID.String(), "discount_id", chosen.ID.String())
			o.RemoveDiscount()
			err = s.orders.Create(ctx, o)
		}
	} else {
		err = s.orders.Create(ctx, o)
	}
	if err != nil {
		return nil, fmt.Errorf("cannot create order: %w", err)
	}

	if o.IsDineIn() && o.CustomerName != "" {
		s.identities.Set(o.RestaurantID, o.TableNumber, o.CustomerName, o.CustomerPhone)
	}

	s.events.OrderCreated(ctx, o)
	if s.notifier != nil {
		s.notifier.NewOrder(ctx, o)
	}

	s.logger.Info("order created", "order_id", o.ID.String(), "restaurant_id", o.RestaurantID.String(), "total", o.TotalAmount)
	return o, nil
}

func newOrderFromRequest(req CreateOrderRequest) *Order {
	o := NewOrder()
	o.RestaurantID = req.RestaurantID
	o.OrderType = req.OrderType
	o.Source = req.Source
	o.CustomerName = strings.TrimSpace(req.CustomerName)
	o.CustomerPhone = strings.TrimSpace(req.CustomerPhone)
	o.CustomerEmail = strings.TrimSpace(req.CustomerEmail)
	o.PaymentMethod = req.PaymentMethod
	if req.PaymentStatus != "" {
		o.PaymentStatus = req.PaymentStatus
	}

	switch o.OrderType {
	case TypeDineIn:
		o.TableNumber = strings.TrimSpace(req.TableNumber)
	case TypeDelivery:
		o.DeliveryAddress = strings.TrimSpace(req.DeliveryAddress)
	}

	o.Items = make([]Item, 0, len(req.Items))
	for _, it := range req.Items {
		o.Items = append(o.Items, Item{
			MenuItemID: it.MenuItemID,
			Name:       strings.TrimSpace(it.Name),
			Category:   it.Category,
			UnitPrice:  it.UnitPrice,
			Quantity:   it.Quantity,
		})
	}
	o.Recalculate()
	return o
}

func (s *Service) chooseDiscount(ctx context.Context, o *Order, req CreateOrderRequest, now time.Time) (*discount.Discount, float64, error) {
	if s.discounts == nil {
		return nil, 0, nil
	}

	switch {
	case req.DiscountID != nil:
		d, err := s.discounts.Get(ctx, *req.DiscountID)
		if err != nil {
			return nil, 0, fmt.Errorf("cannot load discount: %w", err)
		}
		if d == nil || d.RestaurantID != o.RestaurantID {
			s.logger.Debug("requested discount not found, ignoring", "discount_id", req.DiscountID.String())
			return nil, 0, nil
		}
		res := discount.Evaluate(d, o.OriginalAmount, o.Channel(), now)
		if !res.Eligible {
			s.logger.Debug("requested discount ineligible, ignoring", "discount_id", d.ID.String(), "reason", res.Reason)
			return nil, 0, nil
		}
		return d, res.Savings, nil

	case req.AutoDiscount:
		catalog, err := s.discounts.List(ctx, o.RestaurantID, discount.Filter{ActiveOnly: true, Channel: o.Channel()})
		if err != nil {
			return nil, 0, fmt.Errorf("cannot list discounts: %w", err)
		}
		sel := discount.SelectBest(catalog, o.OriginalAmount, o.Channel(), now)
		if sel.Discount == nil {
			return nil, 0, nil
		}
		return sel.Discount, sel.Result.Savings, nil
	}

	return nil, 0, nil
}

func (s *Service) GetOrder(ctx context.Context, id uuid.UUID) (*Order, error) {
	o, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return o, nil
}

// ListOrders lists a restaurant's orders, optionally narrowed to one status.
// A nil restaurantID lists every restaurant and is reserved to operators.
func (s *Service) ListOrders(ctx context.Context, restaurantID uuid.UUID, status string) ([]*Order, error) {
	if restaurantID == uuid.Nil {
		if !auth.IsOperator(ctx) {
			return nil, ErrForbidden
		}
	} else if !auth.CanAccess(ctx, restaurantID) {
		return nil, ErrForbidden
	}

	if status == "" {
		return s.orders.ListByRestaurant(ctx, restaurantID)
	}
	if orderstatus.ByName(status) == nil {
		return nil, newValidationError("unknown status: " + status)
	}
	return s.orders.ListByStatus(ctx, restaurantID, status)
}

// UpdateStatus overwrites the order status. With the guard enabled only the
// normal progression is accepted.
func (s *Service) UpdateStatus(ctx context.Context, id uuid.UUID, status string) (*Order, error) {
	to := orderstatus.ByName(status)
	if to == nil {
		return nil, newValidationError("unknown status: " + status)
	}

	return s.mutate(ctx, id, func(o *Order, now time.Time) (bool, error) {
		if s.guarded {
			if err := o.Advance(*to, now); err != nil {
				return false, err
			}
			return true, nil
		}
		o.SetStatus(*to, now)
		return true, nil
	})
}

// PatchItems replaces the printed-to-kitchen flag of the addressed items.
func (s *Service) PatchItems(ctx context.Context, id uuid.UUID, patches []ItemPatch) (*Order, error) {
	return s.mutate(ctx, id, func(o *Order, now time.Time) (bool, error) {
		if problems := ValidateItemPatches(ctx, o, patches); len(problems) > 0 {
			return false, newValidationError(problems...)
		}

		changed := false
		for _, p := range patches {
			if o.Items[p.Index].PrintedToKitchen != p.PrintedToKitchen {
				o.Items[p.Index].PrintedToKitchen = p.PrintedToKitchen
				changed = true
			}
		}
		if changed {
			o.BeforeUpdate(now)
		}
		return changed, nil
	})
}

// PrintKitchenTicket marks the unprinted items printed and then sends them to
// the kitchen. The ticket only goes out once the flags are saved; when sending
// fails the flags are reverted. A second call without new items returns
// ErrNothingToPrint.
func (s *Service) PrintKitchenTicket(ctx context.Context, id uuid.UUID) (*Order, []Item, error) {
	var (
		idx     []int
		printed []Item
	)

	o, err := s.mutate(ctx, id, func(o *Order, now time.Time) (bool, error) {
		idx = o.UnprintedItems()
		if len(idx) == 0 {
			return false, ErrNothingToPrint
		}

		printed = make([]Item, 0, len(idx))
		for _, i := range idx {
			printed = append(printed, o.Items[i])
			o.Items[i].PrintedToKitchen = true
		}
		o.BeforeUpdate(now)
		return true, nil
	})
	if err != nil {
		return nil, nil, err
	}

	if s.renderer != nil {
		if err := s.renderer.RenderKitchenTicket(ctx, o, printed, s.profile(ctx, o.RestaurantID)); err != nil {
			s.unmarkPrinted(ctx, id, idx)
			return nil, nil, fmt.Errorf("cannot print kitchen ticket: %w", err)
		}
	}
	return o, printed, nil
}

func (s *Service) unmarkPrinted(ctx context.Context, id uuid.UUID, idx []int) {
	_, err := s.mutate(ctx, id, func(o *Order, now time.Time) (bool, error) {
		changed := false
		for _, i := range idx {
			if i < len(o.Items) && o.Items[i].PrintedToKitchen {
				o.Items[i].PrintedToKitchen = false
				changed = true
			}
		}
		if changed {
			o.BeforeUpdate(now)
		}
		return changed, nil
	})
	if err != nil {
		s.logger.Error("cannot revert kitchen ticket flags", "order_id", id.String(), "error", err)
	}
}

// PrintReceipt hands the fully resolved order and restaurant profile to the
// renderer. Nothing is persisted.
func (s *Service) PrintReceipt(ctx context.Context, id uuid.UUID) (*Order, error) {
	if s.renderer == nil {
		return nil, ErrPrintUnavailable
	}

	o, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := s.renderer.RenderReceipt(ctx, o, s.profile(ctx, o.RestaurantID)); err != nil {
		return nil, fmt.Errorf("cannot print receipt: %w", err)
	}
	return o, nil
}

func (s *Service) profile(ctx context.Context, restaurantID uuid.UUID) *RestaurantProfile {
	if s.profiles == nil {
		return nil
	}
	p, err := s.profiles.Profile(ctx, restaurantID)
	if err != nil {
		s.logger.Error("cannot load restaurant profile", "restaurant_id", restaurantID.String(), "error", err)
		return nil
	}
	return p
}

// ClearOrder force-completes one order whatever its status.
func (s *Service) ClearOrder(ctx context.Context, id uuid.UUID) (*Order, error) {
	return s.mutate(ctx, id, func(o *Order, now time.Time) (bool, error) {
		if !o.IsActive() {
			return false, nil
		}
		o.ForceComplete(now)
		return true, nil
	})
}

// ClearTable force-completes every active order on the table and forgets the
// cached diner identity. Orders that fail to save are reported in the joined
// error and left for a manual retry.
func (s *Service) ClearTable(ctx context.Context, restaurantID uuid.UUID, tableNumber, clearedBy string) ([]*Order, error) {
	if !auth.CanAccess(ctx, restaurantID) {
		return nil, ErrForbidden
	}
	tableNumber = strings.TrimSpace(tableNumber)
	if tableNumber == "" {
		return nil, newValidationError("table_number is required")
	}

	active, err := s.orders.ListActiveDineIn(ctx, restaurantID, tableNumber)
	if err != nil {
		return nil, fmt.Errorf("cannot list table orders: %w", err)
	}

	var cleared []*Order
	var errs []error
	for _, candidate := range active {
		o, err := s.ClearOrder(ctx, candidate.ID)
		if err != nil {
			s.logger.Error("cannot clear order", "order_id", candidate.ID.String(), "table_number", tableNumber, "error", err)
			errs = append(errs, fmt.Errorf("order %s: %w", candidate.ID, err))
			continue
		}
		cleared = append(cleared, o)
	}

	s.identities.Invalidate(restaurantID, tableNumber)

	if len(cleared) > 0 {
		s.events.TableCleared(ctx, restaurantID.String(), tableNumber, clearedBy, cleared)
	}

	s.logger.Info("table cleared", "restaurant_id", restaurantID.String(), "table_number", tableNumber, "orders", len(cleared))
	return cleared, errors.Join(errs...)
}

// TableSession returns the merged view of one table. ErrNotFound means the
// table has no active orders.
func (s *Service) TableSession(ctx context.Context, restaurantID uuid.UUID, tableNumber string) (*TableSession, error) {
	if !auth.CanAccess(ctx, restaurantID) {
		return nil, ErrForbidden
	}

	active, err := s.orders.ListActiveDineIn(ctx, restaurantID, tableNumber)
	if err != nil {
		return nil, fmt.Errorf("cannot list table orders: %w", err)
	}

	sessions := AggregateTables(active)
	if len(sessions) == 0 {
		return nil, ErrNotFound
	}

	session := sessions[0]
	s.attachIdentity(&session)
	return &session, nil
}

func (s *Service) TableSessions(ctx context.Context, restaurantID uuid.UUID) ([]TableSession, error) {
	if !auth.CanAccess(ctx, restaurantID) {
		return nil, ErrForbidden
	}

	active, err := s.orders.ListActiveDineIn(ctx, restaurantID, "")
	if err != nil {
		return nil, fmt.Errorf("cannot list table orders: %w", err)
	}

	sessions := AggregateTables(active)
	for i := range sessions {
		s.attachIdentity(&sessions[i])
	}
	return sessions, nil
}

func (s *Service) attachIdentity(session *TableSession) {
	if id, ok := s.identities.Get(session.RestaurantID, session.TableNumber); ok {
		session.Identity = &id
	}
}

// History groups the restaurant's completed orders into bills.
func (s *Service) History(ctx context.Context, restaurantID uuid.UUID) ([]Bill, error) {
	if !auth.CanAccess(ctx, restaurantID) {
		return nil, ErrForbidden
	}

	completed, err := s.orders.ListByStatus(ctx, restaurantID, statuses.Completed.Name)
	if err != nil {
		return nil, fmt.Errorf("cannot list completed orders: %w", err)
	}
	return GroupCompletedForHistory(completed, s.historyWindow), nil
}

func (s *Service) Identity(ctx context.Context, restaurantID uuid.UUID, tableNumber string) (Identity, error) {
	if !auth.CanAccess(ctx, restaurantID) {
		return Identity{}, ErrForbidden
	}
	id, ok := s.identities.Get(restaurantID, tableNumber)
	if !ok {
		return Identity{}, ErrNotFound
	}
	return id, nil
}

func (s *Service) SetIdentity(ctx context.Context, restaurantID uuid.UUID, tableNumber, name, phone string) (Identity, error) {
	if !auth.CanAccess(ctx, restaurantID) {
		return Identity{}, ErrForbidden
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return Identity{}, newValidationError("name is required")
	}
	return s.identities.Set(restaurantID, tableNumber, name, strings.TrimSpace(phone)), nil
}

func (s *Service) load(ctx context.Context, id uuid.UUID) (*Order, error) {
	o, err := s.orders.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("cannot load order: %w", err)
	}
	if o == nil {
		return nil, fmt.Errorf("order %s: %w", id, ErrNotFound)
	}
	if !auth.CanAccess(ctx, o.RestaurantID) {
		return nil, ErrForbidden
	}
	return o, nil
}

// mutate loads the order under its stripe lock, applies fn and, when fn
// reports a change, saves and publishes order-updated.
func (s *Service) mutate(ctx context.Context, id uuid.UUID, fn func(o *Order, now time.Time) (bool, error)) (*Order, error) {
	unlock := s.lock(id)
	defer unlock()

	o, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	changed, err := fn(o, s.now().UTC())
	if err != nil {
		return nil, err
	}
	if !changed {
		return o, nil
	}

	if err := s.orders.Save(ctx, o); err != nil {
		if errors.Is(err, ErrVersionConflict) {
			return nil, err
		}
		return nil, fmt.Errorf("cannot save order: %w", err)
	}

	s.events.OrderUpdated(ctx, o)
	return o, nil
}
