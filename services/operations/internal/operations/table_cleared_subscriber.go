package operations

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/appetiteclub/apt"
	"github.com/appetiteclub/apt/events"
	"github.com/appetiteclub/orderflow/pkg"
)

// Teardown removes a cleared table from the console view.
type Teardown interface {
	TeardownTable(restaurantID, table string, orderIDs []string) int
}

// TableClearedSubscriber listens to orders.tables events and tears down
// cleared table sessions.
type TableClearedSubscriber struct {
	subscriber events.Subscriber
	view       Teardown
	alerts     *AlertFeed
	logger     apt.Logger
}

func NewTableClearedSubscriber(subscriber events.Subscriber, view Teardown, alerts *AlertFeed, logger apt.Logger) *TableClearedSubscriber {
	if logger == nil {
		logger = apt.NewNoopLogger()
	}
	return &TableClearedSubscriber{
		subscriber: subscriber,
		view:       view,
		alerts:     alerts,
		logger:     logger,
	}
}

func (s *TableClearedSubscriber) Start(ctx context.Context) error {
	if s.subscriber == nil {
		s.logger.Info("event bus not configured, skipping table cleared subscription")
		return nil
	}

	if err := s.subscriber.Subscribe(ctx, pkg.OrderTableTopic, s.handleEvent); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", pkg.OrderTableTopic, err)
	}

	s.logger.Info("table cleared subscriber started")
	return nil
}

// Stop is a no-op for lifecycle compatibility.
func (s *TableClearedSubscriber) Stop(ctx context.Context) error {
	return nil
}

func (s *TableClearedSubscriber) handleEvent(ctx context.Context, msg []byte) error {
	var evt pkg.TableClearedEvent
	if err := json.Unmarshal(msg, &evt); err != nil {
		s.logger.Error("failed to unmarshal table event", "error", err)
		return nil
	}

	if evt.EventType != pkg.EventTableCleared {
		s.logger.Debug("ignoring unknown event type", "event_type", evt.EventType)
		return nil
	}

	removed := 0
	if s.view != nil {
		removed = s.view.TeardownTable(evt.RestaurantID, evt.TableNumber, evt.OrderIDs)
	}
	if s.alerts != nil {
		s.alerts.Add(Alert{
			Kind:         AlertTableCleared,
			RestaurantID: evt.RestaurantID,
			TableNumber:  evt.TableNumber,
			By:           evt.ClearedBy,
			At:           evt.OccurredAt,
		})
	}

	s.logger.Debug("table torn down", "restaurant_id", evt.RestaurantID, "table_number", evt.TableNumber, "removed", removed)
	return nil
}
