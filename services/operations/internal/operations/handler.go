package operations

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/appetiteclub/apt"
	"github.com/appetiteclub/apt/telemetry"
	"github.com/appetiteclub/orderflow/pkg/enums/orderstatus"
	"github.com/appetiteclub/orderflow/services/operations/internal/orderstream"
	"github.com/go-chi/chi/v5"
)

const MaxBodyBytes = 64 << 10

// OrderActions are the writes the console forwards to the order service.
type OrderActions interface {
	UpdateStatus(ctx context.Context, id, status string) (*orderstream.Order, error)
	ClearTable(ctx context.Context, restaurantID, table string) (*ClearTableResult, error)
}

// ConnectionState reports the order stream link.
type ConnectionState interface {
	Connected() bool
}

type Handler struct {
	view   *orderstream.View
	link   ConnectionState
	orders OrderActions
	alerts *AlertFeed
	prints *PrintSpool
	logger apt.Logger
	http   *telemetry.HTTP
}

type StatusResponse struct {
	Connected bool `json:"connected"`
	Primed    bool `json:"primed"`
	Orders    int  `json:"orders"`
	Tables    int  `json:"tables"`
}

type StatusRequest struct {
	Status string `json:"status"`
}

func NewHandler(view *orderstream.View, link ConnectionState, orders OrderActions, alerts *AlertFeed, prints *PrintSpool, logger apt.Logger) *Handler {
	if logger == nil {
		logger = apt.NewNoopLogger()
	}
	if alerts == nil {
		alerts = NewAlertFeed(0)
	}

	return &Handler{
		view:   view,
		link:   link,
		orders: orders,
		alerts: alerts,
		prints: prints,
		logger: logger,
		http:   telemetry.NewHTTP(),
	}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/console", func(r chi.Router) {
		r.Get("/status", h.Status)
		r.Get("/orders", h.ListOrders)
		r.Post("/orders/{id}/status", h.UpdateStatus)
		r.Get("/tables", h.ListTables)
		r.Post("/tables/{rid}/{table}/clear", h.ClearTable)
		r.Get("/alerts", h.ListAlerts)
		r.Get("/print-jobs", h.ListPrintJobs)
	})
}

func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.http.Start(w, r, "Handler.Status")
	defer finish()

	resp := StatusResponse{
		Primed: h.view.Primed(),
		Orders: h.view.Len(),
		Tables: len(h.view.Tables("")),
	}
	if h.link != nil {
		resp.Connected = h.link.Connected()
	}

	apt.RespondSuccess(w, resp)
}

func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.http.Start(w, r, "Handler.ListOrders")
	defer finish()

	q := r.URL.Query()
	status := q.Get("status")
	if status != "" && orderstatus.ByName(status) == nil {
		apt.RespondError(w, http.StatusBadRequest, "Unknown status: "+status)
		return
	}

	apt.RespondCollection(w, h.view.Orders(q.Get("restaurant_id"), status), "orders")
}

func (h *Handler) ListTables(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.http.Start(w, r, "Handler.ListTables")
	defer finish()

	apt.RespondCollection(w, h.view.Tables(r.URL.Query().Get("restaurant_id")), "tables")
}

func (h *Handler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.http.Start(w, r, "Handler.ListAlerts")
	defer finish()

	q := r.URL.Query()
	limit := 50
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			apt.RespondError(w, http.StatusBadRequest, "Invalid limit parameter")
			return
		}
		limit = n
	}

	apt.RespondCollection(w, h.alerts.Recent(q.Get("restaurant_id"), limit), "alerts")
}

func (h *Handler) ListPrintJobs(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.http.Start(w, r, "Handler.ListPrintJobs")
	defer finish()

	if h.prints == nil {
		apt.RespondError(w, http.StatusServiceUnavailable, "Print spool is not enabled")
		return
	}

	apt.RespondCollection(w, h.prints.Jobs(r.URL.Query().Get("restaurant_id")), "print-jobs")
}

func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.http.Start(w, r, "Handler.UpdateStatus")
	defer finish()

	log := h.log(r)
	id := chi.URLParam(r, "id")

	var req StatusRequest
	if !h.decode(w, r, log, &req) {
		return
	}
	status := strings.TrimSpace(req.Status)
	if orderstatus.ByName(status) == nil {
		apt.RespondError(w, http.StatusBadRequest, "Unknown status: "+status)
		return
	}

	if h.orders == nil {
		apt.RespondError(w, http.StatusServiceUnavailable, "Order service is not configured")
		return
	}

	order, err := h.orders.UpdateStatus(r.Context(), id, status)
	if err != nil {
		log.Error("order status update failed", "order_id", id, "error", err)
		apt.RespondError(w, http.StatusBadGateway, "Could not update order status")
		return
	}

	h.view.Upsert(*order)
	apt.RespondSuccess(w, order)
}

func (h *Handler) ClearTable(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.http.Start(w, r, "Handler.ClearTable")
	defer finish()

	log := h.log(r)
	rid := chi.URLParam(r, "rid")
	table := chi.URLParam(r, "table")

	if h.orders == nil {
		apt.RespondError(w, http.StatusServiceUnavailable, "Order service is not configured")
		return
	}

	result, err := h.orders.ClearTable(r.Context(), rid, table)
	if err != nil {
		log.Error("table clear failed", "restaurant_id", rid, "table_number", table, "error", err)
		apt.RespondError(w, http.StatusBadGateway, "Could not clear table")
		return
	}

	ids := make([]string, 0, len(result.Orders))
	for _, o := range result.Orders {
		ids = append(ids, o.ID)
	}
	h.view.TeardownTable(rid, table, ids)

	apt.RespondSuccess(w, result)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, log apt.Logger, target interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	defer r.Body.Close()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		log.Debug("failed to read request body", "error", err)
		apt.RespondError(w, http.StatusBadRequest, "Failed to read request body")
		return false
	}

	if err := json.Unmarshal(body, target); err != nil {
		log.Debug("invalid request body", "error", err)
		apt.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

func (h *Handler) log(r *http.Request) apt.Logger {
	return h.logger.With("request_id", r.Context().Value("request_id"))
}
