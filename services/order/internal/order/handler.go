package order

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/appetiteclub/apt"
	"github.com/appetiteclub/apt/middleware"
	"github.com/appetiteclub/apt/telemetry"
	"github.com/appetiteclub/orderflow/services/order/internal/auth"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const MaxBodyBytes = 1 << 20

type Handler struct {
	logger   apt.Logger
	tlm      *telemetry.HTTP
	service  *Service
	sse      *SSEHandler
	verifier *auth.Verifier
}

func NewHandler(service *Service, sse *SSEHandler, verifier *auth.Verifier, logger apt.Logger) *Handler {
	if logger == nil {
		logger = apt.NewNoopLogger()
	}
	if verifier == nil {
		verifier = auth.NewVerifier("", logger)
	}

	return &Handler{
		logger:   logger,
		tlm:      telemetry.NewHTTP(),
		service:  service,
		sse:      sse,
		verifier: verifier,
	}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/orders", func(r chi.Router) {
		r.Post("/", h.CreateOrder)

		r.Group(func(r chi.Router) {
			r.Use(h.verifier.Middleware)
			r.Get("/", h.ListOrders)
			r.Get("/history", h.ListHistory)
			r.Get("/{id}", h.GetOrder)
			r.Patch("/{id}/status", h.UpdateStatus)
			r.Patch("/{id}/items", h.PatchItems)
			r.Post("/{id}/kot", h.PrintKitchenTicket)
			r.Post("/{id}/receipt", h.PrintReceipt)
			r.Post("/{id}/clear", h.ClearOrder)
		})
	})

	r.Route("/restaurants/{rid}/tables", func(r chi.Router) {
		r.Get("/{table}/identity", h.GetIdentity)
		r.Put("/{table}/identity", h.PutIdentity)

		r.Group(func(r chi.Router) {
			r.Use(h.verifier.Middleware)
			r.Get("/", h.ListTables)
			r.Get("/{table}", h.GetTable)
			r.Post("/{table}/clear", h.ClearTable)
		})
	})

	// Service-to-service calls from the operations console carry no bearer
	// token and are limited to internal networks instead.
	r.Route("/internal", func(r chi.Router) {
		r.Use(middleware.InternalOnly())
		r.Get("/orders", h.ListOrders)
		r.Patch("/orders/{id}/status", h.UpdateStatus)
		r.Post("/restaurants/{rid}/tables/{table}/clear", h.ClearTable)
	})

	if h.sse != nil {
		r.With(h.verifier.Middleware).Get("/events", h.sse.ServeHTTP)
	}
}

type StatusRequest struct {
	Status string `json:"status"`
}

type ItemsRequest struct {
	Items []ItemPatch `json:"items"`
}

type IdentityRequest struct {
	Name  string `json:"name"`
	Phone string `json:"phone,omitempty"`
}

type KitchenTicketResponse struct {
	Order *Order `json:"order"`
	Items []Item `json:"items"`
}

type ClearTableResponse struct {
	TableNumber string   `json:"table_number"`
	Orders      []*Order `json:"orders"`
}

func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.CreateOrder")
	defer finish()

	log := h.log(r)

	var req CreateOrderRequest
	if !h.decode(w, r, log, &req) {
		return
	}

	order, err := h.service.CreateOrder(r.Context(), req)
	if err != nil {
		h.respondError(w, log, err, "Could not create order")
		return
	}

	links := apt.RESTfulLinksFor(order)
	w.WriteHeader(http.StatusCreated)
	apt.RespondSuccess(w, order, links...)
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.GetOrder")
	defer finish()

	log := h.log(r)

	id, ok := h.parseIDParam(w, r, log)
	if !ok {
		return
	}

	order, err := h.service.GetOrder(r.Context(), id)
	if err != nil {
		h.respondError(w, log, err, "Could not retrieve order")
		return
	}

	links := apt.RESTfulLinksFor(order)
	apt.RespondSuccess(w, order, links...)
}

func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.ListOrders")
	defer finish()

	log := h.log(r)

	restaurantID, ok := h.parseRestaurantQuery(w, r, log, false)
	if !ok {
		return
	}

	orders, err := h.service.ListOrders(r.Context(), restaurantID, r.URL.Query().Get("status"))
	if err != nil {
		h.respondError(w, log, err, "Could not list orders")
		return
	}

	apt.RespondCollection(w, orders, "orders")
}

func (h *Handler) ListHistory(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.ListHistory")
	defer finish()

	log := h.log(r)

	restaurantID, ok := h.parseRestaurantQuery(w, r, log, true)
	if !ok {
		return
	}

	bills, err := h.service.History(r.Context(), restaurantID)
	if err != nil {
		h.respondError(w, log, err, "Could not load order history")
		return
	}

	apt.RespondCollection(w, bills, "bills")
}

func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.UpdateStatus")
	defer finish()

	log := h.log(r)

	id, ok := h.parseIDParam(w, r, log)
	if !ok {
		return
	}

	var req StatusRequest
	if !h.decode(w, r, log, &req) {
		return
	}

	order, err := h.service.UpdateStatus(r.Context(), id, strings.TrimSpace(req.Status))
	if err != nil {
		h.respondError(w, log, err, "Could not update order status")
		return
	}

	apt.RespondSuccess(w, order, apt.RESTfulLinksFor(order)...)
}

func (h *Handler) PatchItems(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.PatchItems")
	defer finish()

	log := h.log(r)

	id, ok := h.parseIDParam(w, r, log)
	if !ok {
		return
	}

	var req ItemsRequest
	if !h.decode(w, r, log, &req) {
		return
	}

	order, err := h.service.PatchItems(r.Context(), id, req.Items)
	if err != nil {
		h.respondError(w, log, err, "Could not update order items")
		return
	}

	apt.RespondSuccess(w, order, apt.RESTfulLinksFor(order)...)
}

func (h *Handler) PrintKitchenTicket(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.PrintKitchenTicket")
	defer finish()

	log := h.log(r)

	id, ok := h.parseIDParam(w, r, log)
	if !ok {
		return
	}

	order, items, err := h.service.PrintKitchenTicket(r.Context(), id)
	if err != nil {
		h.respondError(w, log, err, "Could not print kitchen ticket")
		return
	}

	apt.RespondSuccess(w, KitchenTicketResponse{Order: order, Items: items})
}

func (h *Handler) PrintReceipt(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.PrintReceipt")
	defer finish()

	log := h.log(r)

	id, ok := h.parseIDParam(w, r, log)
	if !ok {
		return
	}

	order, err := h.service.PrintReceipt(r.Context(), id)
	if err != nil {
		h.respondError(w, log, err, "Could not print receipt")
		return
	}

	w.WriteHeader(http.StatusAccepted)
	apt.RespondSuccess(w, order)
}

func (h *Handler) ClearOrder(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.ClearOrder")
	defer finish()

	log := h.log(r)

	id, ok := h.parseIDParam(w, r, log)
	if !ok {
		return
	}

	order, err := h.service.ClearOrder(r.Context(), id)
	if err != nil {
		h.respondError(w, log, err, "Could not clear order")
		return
	}

	apt.RespondSuccess(w, order, apt.RESTfulLinksFor(order)...)
}

func (h *Handler) ListTables(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.ListTables")
	defer finish()

	log := h.log(r)

	restaurantID, ok := h.parseRestaurantParam(w, r, log)
	if !ok {
		return
	}

	sessions, err := h.service.TableSessions(r.Context(), restaurantID)
	if err != nil {
		h.respondError(w, log, err, "Could not list tables")
		return
	}

	apt.RespondCollection(w, sessions, "tables")
}

func (h *Handler) GetTable(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.GetTable")
	defer finish()

	log := h.log(r)

	restaurantID, ok := h.parseRestaurantParam(w, r, log)
	if !ok {
		return
	}

	session, err := h.service.TableSession(r.Context(), restaurantID, chi.URLParam(r, "table"))
	if err != nil {
		h.respondError(w, log, err, "Could not load table")
		return
	}

	apt.RespondSuccess(w, session)
}

func (h *Handler) ClearTable(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.ClearTable")
	defer finish()

	log := h.log(r)

	restaurantID, ok := h.parseRestaurantParam(w, r, log)
	if !ok {
		return
	}

	table := chi.URLParam(r, "table")
	clearedBy := "anonymous"
	if id, ok := auth.FromContext(r.Context()); ok && id.Subject != "" {
		clearedBy = id.Subject
	}

	cleared, err := h.service.ClearTable(r.Context(), restaurantID, table, clearedBy)
	if err != nil && len(cleared) == 0 {
		h.respondError(w, log, err, "Could not clear table")
		return
	}
	if err != nil {
		log.Error("table partially cleared", "table_number", table, "error", err)
		w.WriteHeader(http.StatusMultiStatus)
	}

	apt.RespondSuccess(w, ClearTableResponse{TableNumber: table, Orders: cleared})
}

func (h *Handler) GetIdentity(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.GetIdentity")
	defer finish()

	log := h.log(r)

	restaurantID, ok := h.parseRestaurantParam(w, r, log)
	if !ok {
		return
	}

	id, err := h.service.Identity(r.Context(), restaurantID, chi.URLParam(r, "table"))
	if err != nil {
		h.respondError(w, log, err, "Could not load identity")
		return
	}

	apt.RespondSuccess(w, id)
}

func (h *Handler) PutIdentity(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.PutIdentity")
	defer finish()

	log := h.log(r)

	restaurantID, ok := h.parseRestaurantParam(w, r, log)
	if !ok {
		return
	}

	var req IdentityRequest
	if !h.decode(w, r, log, &req) {
		return
	}

	id, err := h.service.SetIdentity(r.Context(), restaurantID, chi.URLParam(r, "table"), req.Name, req.Phone)
	if err != nil {
		h.respondError(w, log, err, "Could not store identity")
		return
	}

	apt.RespondSuccess(w, id)
}

// Helper functions

func (h *Handler) respondError(w http.ResponseWriter, log apt.Logger, err error, fallback string) {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		log.Debug("validation failed", "errors", verr.Problems)
		apt.RespondError(w, http.StatusBadRequest, "Validation failed: "+strings.Join(verr.Problems, "; "))
	case errors.Is(err, ErrNotFound):
		apt.RespondError(w, http.StatusNotFound, "Not found")
	case errors.Is(err, ErrForbidden):
		apt.RespondError(w, http.StatusForbidden, "Forbidden")
	case errors.Is(err, ErrVersionConflict):
		log.Info("order version conflict", "error", err)
		apt.RespondError(w, http.StatusConflict, "Order was modified concurrently, reload and retry")
	case errors.Is(err, ErrInvalidTransition):
		apt.RespondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, ErrNothingToPrint):
		apt.RespondError(w, http.StatusConflict, "No new items to print")
	case errors.Is(err, ErrPrintUnavailable):
		apt.RespondError(w, http.StatusServiceUnavailable, "Printing is not available")
	default:
		log.Error(fallback, "error", err)
		apt.RespondError(w, http.StatusInternalServerError, fallback)
	}
}

func (h *Handler) parseIDParam(w http.ResponseWriter, r *http.Request, log apt.Logger) (uuid.UUID, bool) {
	idStr := chi.URLParam(r, "id")
	id, err := uuid.Parse(idStr)
	if err != nil {
		log.Debug("invalid id parameter", "id", idStr)
		apt.RespondError(w, http.StatusBadRequest, "Invalid id parameter")
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) parseRestaurantParam(w http.ResponseWriter, r *http.Request, log apt.Logger) (uuid.UUID, bool) {
	ridStr := chi.URLParam(r, "rid")
	rid, err := uuid.Parse(ridStr)
	if err != nil {
		log.Debug("invalid restaurant id parameter", "rid", ridStr)
		apt.RespondError(w, http.StatusBadRequest, "Invalid restaurant id parameter")
		return uuid.Nil, false
	}
	return rid, true
}

func (h *Handler) parseRestaurantQuery(w http.ResponseWriter, r *http.Request, log apt.Logger, required bool) (uuid.UUID, bool) {
	ridStr := r.URL.Query().Get("restaurant_id")
	if ridStr == "" {
		if required {
			apt.RespondError(w, http.StatusBadRequest, "restaurant_id is required")
			return uuid.Nil, false
		}
		return uuid.Nil, true
	}

	rid, err := uuid.Parse(ridStr)
	if err != nil {
		log.Debug("invalid restaurant_id parameter", "restaurant_id", ridStr)
		apt.RespondError(w, http.StatusBadRequest, "Invalid restaurant_id parameter")
		return uuid.Nil, false
	}
	return rid, true
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
		log.Debug("failed to decode request body", "error", err)
		apt.RespondError(w, http.StatusBadRequest, "Invalid JSON in request body")
		return false
	}

	return true
}

func (h *Handler) log(r *http.Request) apt.Logger {
	return h.logger.With("request_id", r.Context().Value("request_id"))
}
