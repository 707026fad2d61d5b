package order

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/appetiteclub/apt"
	"github.com/appetiteclub/apt/events"
	"github.com/appetiteclub/orderflow/pkg"
	"github.com/appetiteclub/orderflow/pkg/event"
	"github.com/google/uuid"
)

// Notifier receives new-order signals that drive audible and visual alerts.
type Notifier interface {
	NewOrder(ctx context.Context, o *Order)
}

// ReceiptRenderer turns fully resolved orders into printed tickets.
type ReceiptRenderer interface {
	RenderKitchenTicket(ctx context.Context, o *Order, items []Item, profile *RestaurantProfile) error
	RenderReceipt(ctx context.Context, o *Order, profile *RestaurantProfile) error
}

type RestaurantProfile struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Address string `json:"address,omitempty"`
	Phone   string `json:"phone,omitempty"`
	TaxID   string `json:"tax_id,omitempty"`
}

type ProfileProvider interface {
	Profile(ctx context.Context, restaurantID uuid.UUID) (*RestaurantProfile, error)
}

// BusNotifier publishes new-order signals to the notification dispatcher.
type BusNotifier struct {
	publisher events.Publisher
	logger    apt.Logger
}

func NewBusNotifier(publisher events.Publisher, logger apt.Logger) *BusNotifier {
	if logger == nil {
		logger = apt.NewNoopLogger()
	}
	return &BusNotifier{publisher: publisher, logger: logger}
}

func (n *BusNotifier) NewOrder(ctx context.Context, o *Order) {
	if n.publisher == nil {
		return
	}

	signal := pkg.NewOrderSignal{
		EventType:    pkg.EventNewOrderSignal,
		RestaurantID: o.RestaurantID.String(),
		OrderID:      o.ID.String(),
		OrderType:    string(o.OrderType),
		Source:       string(o.Source),
		TableNumber:  o.TableNumber,
		TotalAmount:  o.TotalAmount,
		OccurredAt:   time.Now().UTC(),
	}

	data, err := json.Marshal(signal)
	if err != nil {
		n.logger.Error("cannot encode new order signal", "error", err)
		return
	}
	if err := n.publisher.Publish(ctx, pkg.NotificationTopic, data); err != nil {
		n.logger.Error("new order signal not published", "order_id", o.ID.String(), "error", err)
	}
}

// ServiceProfileProvider reads restaurant profiles from the profile service.
type ServiceProfileProvider struct {
	client *apt.ServiceClient
}

func NewServiceProfileProvider(client *apt.ServiceClient) *ServiceProfileProvider {
	return &ServiceProfileProvider{client: client}
}

func (p *ServiceProfileProvider) Profile(ctx context.Context, restaurantID uuid.UUID) (*RestaurantProfile, error) {
	if p.client == nil {
		return nil, fmt.Errorf("profile client not available")
	}

	resp, err := p.client.Get(ctx, "restaurants", restaurantID.String())
	if err != nil {
		return nil, err
	}

	var profile RestaurantProfile
	if err := decodeSuccessResponse(resp, &profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

func decodeSuccessResponse(resp *apt.SuccessResponse, target interface{}) error {
	if resp == nil {
		return fmt.Errorf("nil success response")
	}

	raw, err := json.Marshal(resp.Data)
	if err != nil {
		return fmt.Errorf("cannot encode response data: %w", err)
	}

	if err := json.Unmarshal(raw, target); err != nil {
		return fmt.Errorf("cannot decode response data: %w", err)
	}

	return nil
}

// PrintQueue hands print jobs to print stations through a durable stream.
type PrintQueue struct {
	publisher events.Publisher
}

func NewPrintQueue(publisher events.Publisher) *PrintQueue {
	return &PrintQueue{publisher: publisher}
}

func (q *PrintQueue) RenderKitchenTicket(ctx context.Context, o *Order, items []Item, profile *RestaurantProfile) error {
	lines := make([]event.PrintLine, 0, len(items))
	for _, it := range items {
		lines = append(lines, event.PrintLine{Name: it.Name, Quantity: it.Quantity})
	}

	return q.publish(ctx, event.KitchenTicketPrintEvent{
		PrintJobMetadata: printMetadata(event.EventKitchenTicketPrint, o, profile),
		Lines:            lines,
	})
}

func (q *PrintQueue) RenderReceipt(ctx context.Context, o *Order, profile *RestaurantProfile) error {
	lines := make([]event.PrintLine, 0, len(o.Items))
	for _, it := range o.Items {
		lines = append(lines, event.PrintLine{
			Name:      it.Name,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
			Subtotal:  it.Subtotal(),
		})
	}

	job := event.ReceiptPrintEvent{
		PrintJobMetadata: printMetadata(event.EventReceiptPrint, o, profile),
		Lines:            lines,
		OriginalAmount:   o.OriginalAmount,
		TotalAmount:      o.TotalAmount,
		CustomerName:     o.CustomerName,
		CustomerPhone:    o.CustomerPhone,
		CustomerEmail:    o.CustomerEmail,
		PaymentMethod:    string(o.PaymentMethod),
		PaymentStatus:    string(o.PaymentStatus),
	}
	if o.Discount != nil {
		job.DiscountName = o.Discount.Name
		job.DiscountAmount = o.Discount.Amount
	}

	return q.publish(ctx, job)
}

func (q *PrintQueue) publish(ctx context.Context, job interface{}) error {
	if q.publisher == nil {
		return fmt.Errorf("print queue not available")
	}
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("cannot encode print job: %w", err)
	}
	if err := q.publisher.Publish(ctx, event.PrintJobsTopic, data); err != nil {
		return fmt.Errorf("cannot queue print job: %w", err)
	}
	return nil
}

func printMetadata(eventType string, o *Order, profile *RestaurantProfile) event.PrintJobMetadata {
	meta := event.PrintJobMetadata{
		EventType:       eventType,
		OccurredAt:      time.Now().UTC(),
		JobID:           uuid.NewString(),
		OrderID:         o.ID.String(),
		RestaurantID:    o.RestaurantID.String(),
		OrderType:       string(o.OrderType),
		TableNumber:     o.TableNumber,
		DeliveryAddress: o.DeliveryAddress,
	}
	if profile != nil {
		meta.RestaurantName = profile.Name
	}
	return meta
}
