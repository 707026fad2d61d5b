package operations

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/appetiteclub/apt"
	"github.com/appetiteclub/apt/events"
	"github.com/appetiteclub/orderflow/pkg/event"
)

const (
	DefaultSpoolCapacity = 100

	PrintKindKitchenTicket = "kitchen-ticket"
	PrintKindReceipt       = "receipt"

	ticketWidth = 32
)

// PrintJob is a rendered job waiting at the console's print station.
type PrintJob struct {
	JobID        string    `json:"job_id"`
	Kind         string    `json:"kind"`
	OrderID      string    `json:"order_id"`
	RestaurantID string    `json:"restaurant_id"`
	TableNumber  string    `json:"table_number,omitempty"`
	Text         string    `json:"text"`
	ReceivedAt   time.Time `json:"received_at"`
}

// PrintSpool consumes the durable print job stream. Redelivered jobs are
// recognised by job id and rendered once.
type PrintSpool struct {
	subscriber events.Subscriber
	logger     apt.Logger
	now        func() time.Time

	mu       sync.RWMutex
	capacity int
	jobs     []PrintJob
	seen     map[string]struct{}
}

func NewPrintSpool(subscriber events.Subscriber, capacity int, logger apt.Logger) *PrintSpool {
	if logger == nil {
		logger = apt.NewNoopLogger()
	}
	if capacity <= 0 {
		capacity = DefaultSpoolCapacity
	}
	return &PrintSpool{
		subscriber: subscriber,
		logger:     logger,
		now:        time.Now,
		capacity:   capacity,
		seen:       make(map[string]struct{}),
	}
}

func (s *PrintSpool) Start(ctx context.Context) error {
	if s.subscriber == nil {
		s.logger.Info("print stream not configured, skipping print spool")
		return nil
	}

	if err := s.subscriber.Subscribe(ctx, event.PrintJobsTopic, s.handleJob); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", event.PrintJobsTopic, err)
	}

	s.logger.Info("print spool started")
	return nil
}

// Stop is a no-op for lifecycle compatibility.
func (s *PrintSpool) Stop(ctx context.Context) error {
	return nil
}

// Jobs returns spooled jobs newest first. A restaurantID of "" matches all.
func (s *PrintSpool) Jobs(restaurantID string) []PrintJob {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]PrintJob, 0, len(s.jobs))
	for i := len(s.jobs) - 1; i >= 0; i-- {
		if restaurantID != "" && s.jobs[i].RestaurantID != restaurantID {
			continue
		}
		out = append(out, s.jobs[i])
	}
	return out
}

func (s *PrintSpool) handleJob(ctx context.Context, msg []byte) error {
	var meta event.PrintJobMetadata
	if err := json.Unmarshal(msg, &meta); err != nil {
		s.logger.Error("failed to unmarshal print job", "error", err)
		return nil
	}

	var (
		text string
		kind string
	)
	switch meta.EventType {
	case event.EventKitchenTicketPrint:
		var job event.KitchenTicketPrintEvent
		if err := json.Unmarshal(msg, &job); err != nil {
			s.logger.Error("failed to unmarshal kitchen ticket", "error", err)
			return nil
		}
		kind, text = PrintKindKitchenTicket, renderKitchenTicket(job)
	case event.EventReceiptPrint:
		var job event.ReceiptPrintEvent
		if err := json.Unmarshal(msg, &job); err != nil {
			s.logger.Error("failed to unmarshal receipt", "error", err)
			return nil
		}
		kind, text = PrintKindReceipt, renderReceipt(job)
	default:
		s.logger.Debug("ignoring unknown print job", "event_type", meta.EventType)
		return nil
	}

	s.store(PrintJob{
		JobID:        meta.JobID,
		Kind:         kind,
		OrderID:      meta.OrderID,
		RestaurantID: meta.RestaurantID,
		TableNumber:  meta.TableNumber,
		Text:         text,
		ReceivedAt:   s.now().UTC(),
	})
	return nil
}

func (s *PrintSpool) store(job PrintJob) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if job.JobID != "" {
		if _, dup := s.seen[job.JobID]; dup {
			s.logger.Debug("duplicate print job", "job_id", job.JobID)
			return
		}
		s.seen[job.JobID] = struct{}{}
	}

	s.jobs = append(s.jobs, job)
	if len(s.jobs) > s.capacity {
		evicted := s.jobs[0]
		s.jobs = s.jobs[1:]
		delete(s.seen, evicted.JobID)
	}
}

func renderKitchenTicket(job event.KitchenTicketPrintEvent) string {
	var b strings.Builder
	header(&b, "KOT", job.PrintJobMetadata)
	for _, l := range job.Lines {
		fmt.Fprintf(&b, "%3d x %s\n", l.Quantity, l.Name)
	}
	rule(&b)
	return b.String()
}

func renderReceipt(job event.ReceiptPrintEvent) string {
	var b strings.Builder
	header(&b, "RECEIPT", job.PrintJobMetadata)
	for _, l := range job.Lines {
		fmt.Fprintf(&b, "%-*s%8.2f\n", ticketWidth-8, fmt.Sprintf("%d x %s", l.Quantity, l.Name), l.Subtotal)
	}
	rule(&b)
	amount(&b, "Subtotal", job.OriginalAmount)
	if job.DiscountAmount > 0 {
		label := "Discount"
		if job.DiscountName != "" {
			label = "Discount " + job.DiscountName
		}
		amount(&b, label, -job.DiscountAmount)
	}
	amount(&b, "TOTAL", job.TotalAmount)
	fmt.Fprintf(&b, "Paid by %s (%s)\n", job.PaymentMethod, job.PaymentStatus)
	if job.CustomerName != "" {
		fmt.Fprintf(&b, "Customer: %s\n", job.CustomerName)
	}
	return b.String()
}

func header(b *strings.Builder, title string, meta event.PrintJobMetadata) {
	if meta.RestaurantName != "" {
		fmt.Fprintf(b, "%s\n", meta.RestaurantName)
	}
	fmt.Fprintf(b, "%s %s\n", title, shortID(meta.OrderID))
	switch {
	case meta.TableNumber != "":
		fmt.Fprintf(b, "Table %s\n", meta.TableNumber)
	case meta.DeliveryAddress != "":
		fmt.Fprintf(b, "Deliver to %s\n", meta.DeliveryAddress)
	default:
		fmt.Fprintf(b, "%s\n", meta.OrderType)
	}
	fmt.Fprintf(b, "%s\n", meta.OccurredAt.UTC().Format("2006-01-02 15:04"))
	rule(b)
}

func rule(b *strings.Builder) {
	b.WriteString(strings.Repeat("-", ticketWidth))
	b.WriteByte('\n')
}

func amount(b *strings.Builder, label string, value float64) {
	fmt.Fprintf(b, "%-*s%8.2f\n", ticketWidth-8, label, value)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
