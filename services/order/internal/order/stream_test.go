package order

import (
	"bytes"
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/appetiteclub/orderflow/pkg/event"
	"github.com/appetiteclub/orderflow/pkg/orderstream"
	"github.com/appetiteclub/orderflow/services/order/internal/auth"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

type fakeEventSender struct {
	ctx    context.Context
	cancel context.CancelFunc
	mu     sync.Mutex
	sent   []*event.OrderEvent
}

func (f *fakeEventSender) Context() context.Context {
	return f.ctx
}

func (f *fakeEventSender) Joined() error {
	return nil
}

func (f *fakeEventSender) Send(evt *event.OrderEvent) error {
	f.mu.Lock()
	f.sent = append(f.sent, evt)
	f.mu.Unlock()
	f.cancel()
	return nil
}

// streamRecorder is a flushable ResponseWriter that is safe to read while
// the handler is still writing.
type streamRecorder struct {
	mu     sync.Mutex
	header http.Header
	body   bytes.Buffer
}

func newStreamRecorder() *streamRecorder {
	return &streamRecorder{header: make(http.Header)}
}

func (s *streamRecorder) Header() http.Header { return s.header }
func (s *streamRecorder) WriteHeader(int)     {}
func (s *streamRecorder) Flush()              {}

func (s *streamRecorder) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.body.Write(p)
}

func (s *streamRecorder) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.body.String()
}

func waitUntil(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestOrderEventStreamServerSubscribe(t *testing.T) {
	hub := NewHub(nil)
	srv := NewOrderEventStreamServer(hub, nil)

	ctx, cancel := context.WithCancel(context.Background())
	sender := &fakeEventSender{ctx: ctx, cancel: cancel}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Subscribe(&orderstream.SubscribeRequest{TerminalID: "console", Operator: true}, sender)
	}()

	waitUntil(t, "subscription", func() bool { return hub.Count() == 1 })
	hub.Broadcast(orderEvent(event.OperatorTopic, "o1", 3))

	if err := <-errCh; err != context.Canceled {
		t.Errorf("Subscribe() error = %v, want context.Canceled", err)
	}
	if len(sender.sent) != 1 || sender.sent[0].OrderID != "o1" {
		t.Errorf("sent = %+v", sender.sent)
	}
	if hub.Count() != 0 {
		t.Errorf("hub still holds %d subscriptions", hub.Count())
	}
}

func TestOpenReturnsAfterServerJoined(t *testing.T) {
	hub := NewHub(nil)
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	NewOrderEventStreamServer(hub, nil).RegisterGRPCService(srv)
	go func() { _ = srv.Serve(lis) }()
	defer srv.Stop()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	defer conn.Close()

	for i := 0; i < 20; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		sub, err := orderstream.Open(ctx, conn, orderstream.SubscribeRequest{TerminalID: "console", Operator: true})
		if err != nil {
			cancel()
			t.Fatalf("Open() error = %v", err)
		}
		if got := hub.Count(); got != 1 {
			cancel()
			t.Fatalf("round %d: hub.Count() = %d when Open returned, want 1", i, got)
		}

		hub.Broadcast(orderEvent(event.OperatorTopic, "o1", int64(i+1)))
		evt, err := sub.Recv()
		if err != nil || evt.OrderID != "o1" {
			cancel()
			t.Fatalf("round %d: Recv() = %+v, %v", i, evt, err)
		}

		cancel()
		waitUntil(t, "leave", func() bool { return hub.Count() == 0 })
	}
}

func TestOrderEventStreamServerRequiresChannel(t *testing.T) {
	srv := NewOrderEventStreamServer(NewHub(nil), nil)
	sender := &fakeEventSender{ctx: context.Background(), cancel: func() {}}

	err := srv.Subscribe(&orderstream.SubscribeRequest{TerminalID: "kds-1"}, sender)
	if status.Code(err) != codes.InvalidArgument {
		t.Errorf("Subscribe() code = %v, want InvalidArgument", status.Code(err))
	}
}

func TestSSEHandlerRejects(t *testing.T) {
	staff := auth.WithIdentity(context.Background(), auth.Identity{Subject: "s1", Role: auth.RoleStaff, RestaurantID: testRestaurantID})

	tests := []struct {
		name     string
		query    string
		ctx      context.Context
		wantCode int
	}{
		{name: "noChannel", query: "", ctx: context.Background(), wantCode: http.StatusBadRequest},
		{name: "badRestaurant", query: "restaurant_id=nope", ctx: context.Background(), wantCode: http.StatusBadRequest},
		{name: "badOperatorFlag", query: "operator=maybe", ctx: context.Background(), wantCode: http.StatusBadRequest},
		{name: "otherRestaurant", query: "restaurant_id=" + otherRestaurant.String(), ctx: staff, wantCode: http.StatusForbidden},
		{name: "staffAsOperator", query: "operator=true", ctx: staff, wantCode: http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewSSEHandler(NewHub(nil), nil)
			req := httptest.NewRequest(http.MethodGet, "/events?"+tt.query, nil).WithContext(tt.ctx)
			w := httptest.NewRecorder()

			h.ServeHTTP(w, req)

			if w.Code != tt.wantCode {
				t.Errorf("status = %d, want %d", w.Code, tt.wantCode)
			}
		})
	}
}

func TestSSEHandlerStreamsRestaurantEvents(t *testing.T) {
	hub := NewHub(nil)
	h := NewSSEHandler(hub, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events?restaurant_id="+testRestaurantID.String(), nil).WithContext(ctx)
	w := newStreamRecorder()

	done := make(chan struct{})
	go func() {
		h.ServeHTTP(w, req)
		close(done)
	}()

	waitUntil(t, "subscription", func() bool { return hub.Count() == 1 })
	hub.Broadcast(orderEvent(event.RestaurantTopic(testRestaurantID.String()), "o1", 2))
	waitUntil(t, "event frame", func() bool { return strings.Contains(w.String(), "event: ") })

	cancel()
	<-done

	body := w.String()
	for _, want := range []string{": connected", "retry: 2000", "id: o1:2", "event: " + event.EventOrderUpdated, `"order_id":"o1"`} {
		if !strings.Contains(body, want) {
			t.Errorf("stream missing %q:\n%s", want, body)
		}
	}
	if got := w.Header().Get("Content-Type"); got != "text/event-stream" {
		t.Errorf("Content-Type = %q", got)
	}
}
