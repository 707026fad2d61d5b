package order

import (
	"context"
	"sort"
	"sync"

	"github.com/appetiteclub/apt/events"
	"github.com/appetiteclub/orderflow/services/order/internal/discount"
	"github.com/google/uuid"
)

// MockPublisher is a mock implementation of events.Publisher for testing
type MockPublisher struct {
	mu          sync.Mutex
	Published   []PublishedMessage
	PublishFunc func(ctx context.Context, topic string, msg []byte) error
}

type PublishedMessage struct {
	Topic string
	Data  []byte
}

func NewMockPublisher() *MockPublisher {
	return &MockPublisher{}
}

func (m *MockPublisher) Publish(ctx context.Context, topic string, msg []byte) error {
	if m.PublishFunc != nil {
		return m.PublishFunc(ctx, topic, msg)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Published = append(m.Published, PublishedMessage{Topic: topic, Data: msg})
	return nil
}

func (m *MockPublisher) Topics() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	topics := make([]string, 0, len(m.Published))
	for _, p := range m.Published {
		topics = append(topics, p.Topic)
	}
	return topics
}

// MockSubscriber is a mock implementation of events.Subscriber for testing
type MockSubscriber struct {
	mu            sync.Mutex
	Handlers      map[string]events.HandlerFunc
	SubscribeFunc func(ctx context.Context, topic string, handler events.HandlerFunc) error
}

func NewMockSubscriber() *MockSubscriber {
	return &MockSubscriber{Handlers: make(map[string]events.HandlerFunc)}
}

func (m *MockSubscriber) Subscribe(ctx context.Context, topic string, handler events.HandlerFunc) error {
	if m.SubscribeFunc != nil {
		return m.SubscribeFunc(ctx, topic, handler)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Handlers[topic] = handler
	return nil
}

// MockOrderRepo is an in-memory OrderRepo with version checks. It takes
// discount usage from Discounts when set.
type MockOrderRepo struct {
	mu        sync.Mutex
	orders    map[uuid.UUID]*Order
	Discounts *MockDiscountRepo

	// SaveFunc runs before the stored save; a non-nil error aborts it.
	SaveFunc func(ctx context.Context, order *Order) error
}

func NewMockOrderRepo() *MockOrderRepo {
	return &MockOrderRepo{orders: make(map[uuid.UUID]*Order)}
}

func (m *MockOrderRepo) Create(ctx context.Context, order *Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[order.ID] = order.Clone()
	return nil
}

func (m *MockOrderRepo) CreateWithDiscount(ctx context.Context, order *Order, discountID uuid.UUID) error {
	if m.Discounts != nil {
		if err := m.Discounts.reserve(discountID); err != nil {
			return err
		}
	}
	return m.Create(ctx, order)
}

func (m *MockOrderRepo) Get(ctx context.Context, id uuid.UUID) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, nil
	}
	return o.Clone(), nil
}

func (m *MockOrderRepo) ListByRestaurant(ctx context.Context, restaurantID uuid.UUID) ([]*Order, error) {
	return m.filter(func(o *Order) bool {
		return restaurantID == uuid.Nil || o.RestaurantID == restaurantID
	}), nil
}

func (m *MockOrderRepo) ListByStatus(ctx context.Context, restaurantID uuid.UUID, status string) ([]*Order, error) {
	return m.filter(func(o *Order) bool {
		return (restaurantID == uuid.Nil || o.RestaurantID == restaurantID) && o.Status == status
	}), nil
}

func (m *MockOrderRepo) ListActiveDineIn(ctx context.Context, restaurantID uuid.UUID, tableNumber string) ([]*Order, error) {
	return m.filter(func(o *Order) bool {
		return (restaurantID == uuid.Nil || o.RestaurantID == restaurantID) &&
			o.IsDineIn() && o.IsActive() &&
			(tableNumber == "" || o.TableNumber == tableNumber)
	}), nil
}

func (m *MockOrderRepo) Save(ctx context.Context, order *Order) error {
	if m.SaveFunc != nil {
		if err := m.SaveFunc(ctx, order); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.orders[order.ID]
	if !ok || stored.Version != order.Version {
		return ErrVersionConflict
	}
	order.Version++
	m.orders[order.ID] = order.Clone()
	return nil
}

// Put stores an order as is, for test setup.
func (m *MockOrderRepo) Put(order *Order) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[order.ID] = order.Clone()
}

func (m *MockOrderRepo) filter(keep func(o *Order) bool) []*Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*Order
	for _, o := range m.orders {
		if keep(o) {
			result = append(result, o.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result
}

// MockDiscountRepo keeps discounts in insertion order.
type MockDiscountRepo struct {
	mu        sync.Mutex
	discounts []*discount.Discount
	ListFunc  func(ctx context.Context, restaurantID uuid.UUID, filter discount.Filter) ([]*discount.Discount, error)
}

func NewMockDiscountRepo(ds ...*discount.Discount) *MockDiscountRepo {
	return &MockDiscountRepo{discounts: ds}
}

func (m *MockDiscountRepo) Create(ctx context.Context, d *discount.Discount) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.discounts = append(m.discounts, d)
	return nil
}

func (m *MockDiscountRepo) Get(ctx context.Context, id uuid.UUID) (*discount.Discount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.discounts {
		if d.ID == id {
			c := *d
			return &c, nil
		}
	}
	return nil, nil
}

func (m *MockDiscountRepo) List(ctx context.Context, restaurantID uuid.UUID, filter discount.Filter) ([]*discount.Discount, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, restaurantID, filter)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*discount.Discount
	for _, d := range m.discounts {
		if d.RestaurantID == restaurantID && filter.Match(d) {
			c := *d
			result = append(result, &c)
		}
	}
	return result, nil
}

func (m *MockDiscountRepo) Save(ctx context.Context, d *discount.Discount) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, existing := range m.discounts {
		if existing.ID == d.ID {
			m.discounts[i] = d
			return nil
		}
	}
	return discount.ErrVersionConflict
}

func (m *MockDiscountRepo) Delete(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, d := range m.discounts {
		if d.ID == id {
			m.discounts = append(m.discounts[:i], m.discounts[i+1:]...)
			return nil
		}
	}
	return nil
}

// Usage returns the current usage of a discount.
func (m *MockDiscountRepo) Usage(id uuid.UUID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.discounts {
		if d.ID == id {
			return d.CurrentUsage
		}
	}
	return -1
}

func (m *MockDiscountRepo) reserve(id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.discounts {
		if d.ID != id {
			continue
		}
		if d.UsageLimit != nil && d.CurrentUsage >= *d.UsageLimit {
			return discount.ErrExhausted
		}
		d.CurrentUsage++
		return nil
	}
	return discount.ErrExhausted
}

// MockEventSink records published lifecycle events.
type MockEventSink struct {
	mu      sync.Mutex
	Created []*Order
	Updated []*Order
	Tables  []string
}

func (m *MockEventSink) OrderCreated(ctx context.Context, o *Order) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Created = append(m.Created, o.Clone())
}

func (m *MockEventSink) OrderUpdated(ctx context.Context, o *Order) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Updated = append(m.Updated, o.Clone())
}

func (m *MockEventSink) TableCleared(ctx context.Context, restaurantID, tableNumber, clearedBy string, orders []*Order) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Tables = append(m.Tables, tableNumber)
}

func (m *MockEventSink) UpdatedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Updated)
}

type MockNotifier struct {
	mu     sync.Mutex
	Orders []uuid.UUID
}

func (m *MockNotifier) NewOrder(ctx context.Context, o *Order) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Orders = append(m.Orders, o.ID)
}

type MockRenderer struct {
	mu              sync.Mutex
	KitchenTickets  [][]Item
	Receipts        []uuid.UUID
	LastProfile     *RestaurantProfile
	RenderKOTFunc   func(ctx context.Context, o *Order, items []Item) error
	RenderReceiptFn func(ctx context.Context, o *Order) error
}

func (m *MockRenderer) RenderKitchenTicket(ctx context.Context, o *Order, items []Item, profile *RestaurantProfile) error {
	if m.RenderKOTFunc != nil {
		if err := m.RenderKOTFunc(ctx, o, items); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.KitchenTickets = append(m.KitchenTickets, items)
	m.LastProfile = profile
	return nil
}

func (m *MockRenderer) RenderReceipt(ctx context.Context, o *Order, profile *RestaurantProfile) error {
	if m.RenderReceiptFn != nil {
		if err := m.RenderReceiptFn(ctx, o); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Receipts = append(m.Receipts, o.ID)
	m.LastProfile = profile
	return nil
}

type MockProfileProvider struct {
	Profiles map[uuid.UUID]*RestaurantProfile
}

func (m *MockProfileProvider) Profile(ctx context.Context, restaurantID uuid.UUID) (*RestaurantProfile, error) {
	if p, ok := m.Profiles[restaurantID]; ok {
		return p, nil
	}
	return nil, ErrNotFound
}
