package orderstream

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/appetiteclub/orderflow/pkg/event"
	contract "github.com/appetiteclub/orderflow/pkg/orderstream"
)

// MockStream replays Events and then returns Err, or io.EOF when Err is nil.
// With Block set it waits for the dial context instead of ending.
type MockStream struct {
	ctx    context.Context
	Events []*event.OrderEvent
	Err    error
	Block  bool
}

func (m *MockStream) Recv() (*event.OrderEvent, error) {
	if len(m.Events) > 0 {
		evt := m.Events[0]
		m.Events = m.Events[1:]
		return evt, nil
	}
	if m.Block {
		<-m.ctx.Done()
		return nil, m.ctx.Err()
	}
	if m.Err != nil {
		return nil, m.Err
	}
	return nil, io.EOF
}

// Journal records calls from several collaborators in order.
type Journal struct {
	mu      sync.Mutex
	entries []string
}

func (j *Journal) Add(entry string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, entry)
}

func (j *Journal) Entries() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.entries...)
}

// MockDialer fails the first Failures dials and then hands out Streams in order.
// Once Streams run out every dial fails.
type MockDialer struct {
	mu       sync.Mutex
	Failures int
	Streams  []*MockStream
	Journal  *Journal
	dials    int
}

func (m *MockDialer) Dial(ctx context.Context, _ contract.SubscribeRequest) (EventStream, func() error, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.dials++
	if m.Failures > 0 {
		m.Failures--
		m.note("dial-fail")
		return nil, nil, errors.New("connection refused")
	}
	if len(m.Streams) == 0 {
		m.note("dial-fail")
		return nil, nil, errors.New("connection refused")
	}

	s := m.Streams[0]
	m.Streams = m.Streams[1:]
	s.ctx = ctx
	m.note("dial-ok")
	return s, func() error { return nil }, nil
}

func (m *MockDialer) Dials() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dials
}

func (m *MockDialer) note(entry string) {
	if m.Journal != nil {
		m.Journal.Add(entry)
	}
}

type MockRefetcher struct {
	mu          sync.Mutex
	Journal     *Journal
	RefetchFunc func(ctx context.Context) error
	calls       int
}

func (m *MockRefetcher) Refetch(ctx context.Context) error {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()

	if m.Journal != nil {
		m.Journal.Add("refetch")
	}
	if m.RefetchFunc != nil {
		return m.RefetchFunc(ctx)
	}
	return nil
}

func (m *MockRefetcher) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type MockSink struct {
	Journal *Journal
}

func (m *MockSink) Apply(evt *event.OrderEvent) bool {
	if m.Journal != nil {
		m.Journal.Add("apply:" + evt.OrderID)
	}
	return true
}

type MockSource struct {
	Orders         []Order
	ListOrdersFunc func(ctx context.Context) ([]Order, error)
}

func (m *MockSource) ListOrders(ctx context.Context) ([]Order, error) {
	if m.ListOrdersFunc != nil {
		return m.ListOrdersFunc(ctx)
	}
	return m.Orders, nil
}
