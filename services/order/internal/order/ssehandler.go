package order

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/appetiteclub/apt"
	"github.com/appetiteclub/orderflow/pkg/event"
	"github.com/appetiteclub/orderflow/pkg/orderstream"
	"github.com/appetiteclub/orderflow/services/order/internal/auth"
	"github.com/google/uuid"
)

const sseKeepalive = 30 * time.Second

// SSEHandler streams order events to browser terminals.
type SSEHandler struct {
	hub       *Hub
	logger    apt.Logger
	keepalive time.Duration
}

func NewSSEHandler(hub *Hub, logger apt.Logger) *SSEHandler {
	if logger == nil {
		logger = apt.NewNoopLogger()
	}
	return &SSEHandler{hub: hub, logger: logger, keepalive: sseKeepalive}
}

// ServeHTTP joins restaurant_id's channel and, with operator=true, the
// operator channel.
func (h *SSEHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	req := orderstream.SubscribeRequest{TerminalID: r.URL.Query().Get("terminal_id")}

	if rid := r.URL.Query().Get("restaurant_id"); rid != "" {
		id, err := uuid.Parse(rid)
		if err != nil {
			apt.RespondError(w, http.StatusBadRequest, "Invalid restaurant_id parameter")
			return
		}
		if !auth.CanAccess(r.Context(), id) {
			apt.RespondError(w, http.StatusForbidden, "Forbidden")
			return
		}
		req.RestaurantID = id.String()
	}

	if op := r.URL.Query().Get("operator"); op != "" {
		isOperator, err := strconv.ParseBool(op)
		if err != nil {
			apt.RespondError(w, http.StatusBadRequest, "Invalid operator parameter")
			return
		}
		if isOperator && !auth.IsOperator(r.Context()) {
			apt.RespondError(w, http.StatusForbidden, "Forbidden")
			return
		}
		req.Operator = isOperator
	}

	channels := req.Channels()
	if len(channels) == 0 {
		apt.RespondError(w, http.StatusBadRequest, "restaurant_id or operator is required")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	sub := h.hub.Join(req.TerminalID, channels)
	defer sub.Leave()

	fmt.Fprintf(w, ": connected\n\n")
	// Browsers reconnect after this many milliseconds and then refetch.
	fmt.Fprintf(w, "retry: 2000\n\n")
	flush(w)

	ticker := time.NewTicker(h.keepalive)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			h.logger.Info("SSE client disconnected", "subscriber_id", sub.ID)
			return

		case <-ticker.C:
			fmt.Fprintf(w, ": keepalive\n\n")
			flush(w)

		case evt, ok := <-sub.Events():
			if !ok {
				return
			}
			if err := sendSSEEvent(w, evt); err != nil {
				h.logger.Error("failed to write SSE event", "subscriber_id", sub.ID, "error", err)
				return
			}
		}
	}
}

func sendSSEEvent(w http.ResponseWriter, evt *event.OrderEvent) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "id: %s:%d\nevent: %s\ndata: %s\n\n", evt.OrderID, evt.Version, evt.EventType, data); err != nil {
		return err
	}
	flush(w)
	return nil
}

func flush(w http.ResponseWriter) {
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}
