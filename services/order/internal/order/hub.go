package order

import (
	"sync"

	"github.com/appetiteclub/apt"
	"github.com/appetiteclub/orderflow/pkg/event"
	"github.com/google/uuid"
)

const subscriberBuffer = 100

// Hub fans order events out to the terminals connected to this instance.
// Delivery is at-most-once: a subscriber whose buffer is full misses the
// event and catches up through its next authoritative refetch.
type Hub struct {
	logger apt.Logger
	buffer int

	mu          sync.RWMutex
	subscribers map[string]*Subscription
}

type Subscription struct {
	ID         string
	TerminalID string

	hub      *Hub
	channels map[string]struct{}
	events   chan *event.OrderEvent
	once     sync.Once
}

func NewHub(logger apt.Logger) *Hub {
	if logger == nil {
		logger = apt.NewNoopLogger()
	}
	return &Hub{
		logger:      logger,
		buffer:      subscriberBuffer,
		subscribers: make(map[string]*Subscription),
	}
}

// Join registers a subscriber on channels.
func (h *Hub) Join(terminalID string, channels []string) *Subscription {
	sub := &Subscription{
		ID:         uuid.NewString(),
		TerminalID: terminalID,
		hub:        h,
		channels:   make(map[string]struct{}, len(channels)),
		events:     make(chan *event.OrderEvent, h.buffer),
	}
	for _, ch := range channels {
		sub.channels[ch] = struct{}{}
	}

	h.mu.Lock()
	h.subscribers[sub.ID] = sub
	h.mu.Unlock()

	h.logger.Info("terminal joined", "subscriber_id", sub.ID, "terminal_id", terminalID, "channels", channels)
	return sub
}

// Broadcast delivers evt to every subscriber of evt.Channel without blocking
// and returns how many received it.
func (h *Hub) Broadcast(evt *event.OrderEvent) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for id, sub := range h.subscribers {
		if _, ok := sub.channels[evt.Channel]; !ok {
			continue
		}
		select {
		case sub.events <- evt:
			delivered++
		default:
			h.logger.Info("subscriber channel full, dropping event", "subscriber_id", id, "event_type", evt.EventType, "order_id", evt.OrderID)
		}
	}
	return delivered
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

func (h *Hub) leave(sub *Subscription) {
	h.mu.Lock()
	delete(h.subscribers, sub.ID)
	h.mu.Unlock()
	close(sub.events)
	h.logger.Info("terminal left", "subscriber_id", sub.ID, "terminal_id", sub.TerminalID)
}

func (s *Subscription) Events() <-chan *event.OrderEvent {
	return s.events
}

// Leave unregisters the subscriber and closes its event channel. Safe to call twice.
func (s *Subscription) Leave() {
	s.once.Do(func() { s.hub.leave(s) })
}
