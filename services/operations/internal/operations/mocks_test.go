package operations

import (
	"context"
	"errors"

	"github.com/appetiteclub/apt/events"
	"github.com/appetiteclub/orderflow/services/operations/internal/orderstream"
)

// MockSubscriber captures the handler registered per topic.
type MockSubscriber struct {
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
	m.Handlers[topic] = handler
	return nil
}

func (m *MockSubscriber) Deliver(ctx context.Context, topic string, msg []byte) error {
	h, ok := m.Handlers[topic]
	if !ok {
		return errors.New("no handler for topic " + topic)
	}
	return h(ctx, msg)
}

type MockOrderActions struct {
	UpdateStatusFunc func(ctx context.Context, id, status string) (*orderstream.Order, error)
	ClearTableFunc   func(ctx context.Context, restaurantID, table string) (*ClearTableResult, error)
}

func (m *MockOrderActions) UpdateStatus(ctx context.Context, id, status string) (*orderstream.Order, error) {
	if m.UpdateStatusFunc != nil {
		return m.UpdateStatusFunc(ctx, id, status)
	}
	return nil, errors.New("not implemented")
}

func (m *MockOrderActions) ClearTable(ctx context.Context, restaurantID, table string) (*ClearTableResult, error) {
	if m.ClearTableFunc != nil {
		return m.ClearTableFunc(ctx, restaurantID, table)
	}
	return nil, errors.New("not implemented")
}

type MockConnection struct {
	Up bool
}

func (m *MockConnection) Connected() bool {
	return m.Up
}

type MockTeardown struct {
	Calls []string
}

func (m *MockTeardown) TeardownTable(restaurantID, table string, orderIDs []string) int {
	m.Calls = append(m.Calls, restaurantID+"/"+table)
	return len(orderIDs)
}
