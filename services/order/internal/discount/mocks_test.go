package discount

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// MockDiscountRepo is an in-memory DiscountRepo for testing
type MockDiscountRepo struct {
	mu        sync.RWMutex
	discounts map[uuid.UUID]*Discount

	CreateFunc func(ctx context.Context, d *Discount) error
	ListFunc   func(ctx context.Context, restaurantID uuid.UUID, filter Filter) ([]*Discount, error)
	SaveFunc   func(ctx context.Context, d *Discount) error
}

func NewMockDiscountRepo(seed ...*Discount) *MockDiscountRepo {
	m := &MockDiscountRepo{discounts: make(map[uuid.UUID]*Discount)}
	for _, d := range seed {
		m.discounts[d.ID] = d
	}
	return m
}

func (m *MockDiscountRepo) Create(ctx context.Context, d *Discount) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, d)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.discounts[d.ID] = d
	return nil
}

func (m *MockDiscountRepo) Get(ctx context.Context, id uuid.UUID) (*Discount, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.discounts[id]
	if !ok {
		return nil, nil
	}
	return d, nil
}

func (m *MockDiscountRepo) List(ctx context.Context, restaurantID uuid.UUID, filter Filter) ([]*Discount, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, restaurantID, filter)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*Discount
	for _, d := range m.discounts {
		if d.RestaurantID == restaurantID && filter.Match(d) {
			result = append(result, d)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

func (m *MockDiscountRepo) Save(ctx context.Context, d *Discount) error {
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, d)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	d.Version++
	m.discounts[d.ID] = d
	return nil
}

func (m *MockDiscountRepo) Delete(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.discounts, id)
	return nil
}
