package discount

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/appetiteclub/apt"
	"github.com/appetiteclub/apt/telemetry"
	"github.com/appetiteclub/orderflow/services/order/internal/auth"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const MaxBodyBytes = 1 << 20

type Handler struct {
	logger   apt.Logger
	tlm      *telemetry.HTTP
	repo     DiscountRepo
	verifier *auth.Verifier
	now      func() time.Time
}

func NewHandler(repo DiscountRepo, verifier *auth.Verifier, logger apt.Logger) *Handler {
	if logger == nil {
		logger = apt.NewNoopLogger()
	}
	if verifier == nil {
		verifier = auth.NewVerifier("", logger)
	}

	return &Handler{
		logger:   logger,
		tlm:      telemetry.NewHTTP(),
		repo:     repo,
		verifier: verifier,
		now:      time.Now,
	}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/discounts", func(r chi.Router) {
		r.Get("/", h.ListDiscounts)
		r.Post("/best", h.SelectBest)
		r.Get("/{id}", h.GetDiscount)
		r.Post("/{id}/apply", h.ApplyDiscount)

		r.Group(func(r chi.Router) {
			r.Use(h.verifier.Middleware)
			r.Post("/", h.CreateDiscount)
			r.Put("/{id}", h.UpdateDiscount)
			r.Delete("/{id}", h.DeleteDiscount)
		})
	})
}

type DiscountRequest struct {
	RestaurantID         uuid.UUID  `json:"restaurant_id"`
	Name                 string     `json:"name"`
	Description          string     `json:"description,omitempty"`
	Type                 Type       `json:"type"`
	Value                float64    `json:"value"`
	MinOrderAmount       float64    `json:"min_order_amount"`
	MaxDiscountAmount    *float64   `json:"max_discount_amount,omitempty"`
	ApplicableCategories []string   `json:"applicable_categories,omitempty"`
	QRExclusive          bool       `json:"qr_exclusive"`
	UsageLimit           *int       `json:"usage_limit,omitempty"`
	StartDate            *time.Time `json:"start_date,omitempty"`
	EndDate              *time.Time `json:"end_date,omitempty"`
	Active               bool       `json:"active"`
	Banner               *Banner    `json:"banner,omitempty"`
}

func (req DiscountRequest) applyTo(d *Discount) {
	d.RestaurantID = req.RestaurantID
	d.Name = req.Name
	d.Description = req.Description
	d.Type = req.Type
	d.Value = req.Value
	d.MinOrderAmount = req.MinOrderAmount
	d.MaxDiscountAmount = req.MaxDiscountAmount
	d.ApplicableCategories = req.ApplicableCategories
	d.QRExclusive = req.QRExclusive
	d.UsageLimit = req.UsageLimit
	d.StartDate = req.StartDate
	d.EndDate = req.EndDate
	d.Active = req.Active
	d.Banner = req.Banner
}

type CartRequest struct {
	RestaurantID uuid.UUID  `json:"restaurant_id,omitempty"`
	CartTotal    float64    `json:"cart_total"`
	Items        []CartItem `json:"items,omitempty"`
	Channel      string     `json:"channel"`
}

// total prefers the priced lines over a client supplied total.
func (req CartRequest) total() float64 {
	if len(req.Items) > 0 {
		return CartTotal(req.Items)
	}
	return req.CartTotal
}

type BestResponse struct {
	Selection    Selection     `json:"selection"`
	Quote        Quote         `json:"quote"`
	ItemPreviews []ItemPreview `json:"item_previews"`
}

func (h *Handler) ListDiscounts(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.ListDiscounts")
	defer finish()

	log := h.log(r)
	ctx := r.Context()

	restaurantID, err := uuid.Parse(r.URL.Query().Get("restaurant_id"))
	if err != nil {
		log.Debug("invalid restaurant_id parameter", "restaurant_id", r.URL.Query().Get("restaurant_id"))
		apt.RespondError(w, http.StatusBadRequest, "Invalid restaurant_id parameter")
		return
	}

	filter := Filter{Channel: r.URL.Query().Get("channel")}
	if active := r.URL.Query().Get("active"); active != "" {
		filter.ActiveOnly, err = strconv.ParseBool(active)
		if err != nil {
			apt.RespondError(w, http.StatusBadRequest, "Invalid active parameter")
			return
		}
	}

	discounts, err := h.repo.List(ctx, restaurantID, filter)
	if err != nil {
		log.Error("error retrieving discounts", "error", err)
		apt.RespondError(w, http.StatusInternalServerError, "Could not retrieve discounts")
		return
	}

	apt.RespondCollection(w, discounts, "discount")
}

func (h *Handler) GetDiscount(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.GetDiscount")
	defer finish()

	log := h.log(r)

	d, ok := h.loadDiscount(w, r, log)
	if !ok {
		return
	}

	apt.RespondSuccess(w, d, apt.RESTfulLinksFor(d)...)
}

func (h *Handler) CreateDiscount(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.CreateDiscount")
	defer finish()

	log := h.log(r)
	ctx := r.Context()

	var req DiscountRequest
	if !h.decode(w, r, log, &req) {
		return
	}

	if !auth.CanAccess(ctx, req.RestaurantID) {
		apt.RespondError(w, http.StatusForbidden, "Forbidden")
		return
	}

	d := &Discount{}
	req.applyTo(d)

	if validationErrors := ValidateDiscount(ctx, d); len(validationErrors) > 0 {
		log.Debug("validation failed", "errors", validationErrors)
		apt.RespondError(w, http.StatusBadRequest, "Validation failed")
		return
	}

	d.BeforeCreate()
	if err := h.repo.Create(ctx, d); err != nil {
		log.Error("cannot create discount", "error", err)
		apt.RespondError(w, http.StatusInternalServerError, "Could not create discount")
		return
	}

	w.WriteHeader(http.StatusCreated)
	apt.RespondSuccess(w, d, apt.RESTfulLinksFor(d)...)
}

func (h *Handler) UpdateDiscount(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.UpdateDiscount")
	defer finish()

	log := h.log(r)
	ctx := r.Context()

	d, ok := h.loadDiscount(w, r, log)
	if !ok {
		return
	}

	if !auth.CanAccess(ctx, d.RestaurantID) {
		apt.RespondError(w, http.StatusForbidden, "Forbidden")
		return
	}

	var req DiscountRequest
	if !h.decode(w, r, log, &req) {
		return
	}
	if req.RestaurantID == uuid.Nil {
		req.RestaurantID = d.RestaurantID
	}
	if req.RestaurantID != d.RestaurantID {
		apt.RespondError(w, http.StatusBadRequest, "restaurant_id cannot change")
		return
	}

	req.applyTo(d)
	if validationErrors := ValidateDiscount(ctx, d); len(validationErrors) > 0 {
		log.Debug("validation failed", "errors", validationErrors)
		apt.RespondError(w, http.StatusBadRequest, "Validation failed")
		return
	}

	d.BeforeUpdate()
	if err := h.repo.Save(ctx, d); err != nil {
		if errors.Is(err, ErrVersionConflict) {
			apt.RespondError(w, http.StatusConflict, "Discount was modified concurrently")
			return
		}
		log.Error("cannot update discount", "error", err)
		apt.RespondError(w, http.StatusInternalServerError, "Could not update discount")
		return
	}

	apt.RespondSuccess(w, d, apt.RESTfulLinksFor(d)...)
}

func (h *Handler) DeleteDiscount(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.DeleteDiscount")
	defer finish()

	log := h.log(r)
	ctx := r.Context()

	d, ok := h.loadDiscount(w, r, log)
	if !ok {
		return
	}

	if !auth.CanAccess(ctx, d.RestaurantID) {
		apt.RespondError(w, http.StatusForbidden, "Forbidden")
		return
	}

	if err := h.repo.Delete(ctx, d.ID); err != nil {
		log.Error("cannot delete discount", "error", err)
		apt.RespondError(w, http.StatusInternalServerError, "Could not delete discount")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ApplyDiscount(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.ApplyDiscount")
	defer finish()

	log := h.log(r)

	d, ok := h.loadDiscount(w, r, log)
	if !ok {
		return
	}

	var req CartRequest
	if !h.decode(w, r, log, &req) {
		return
	}

	quote, err := Apply(d, req.total(), req.Channel, h.now())
	if err != nil {
		var ineligible *IneligibleError
		if errors.As(err, &ineligible) {
			log.Debug("discount ineligible", "discount_id", d.ID.String(), "reason", ineligible.Reason)
			apt.RespondError(w, http.StatusUnprocessableEntity, "Discount not applicable: "+string(ineligible.Reason))
			return
		}
		log.Error("cannot apply discount", "error", err)
		apt.RespondError(w, http.StatusInternalServerError, "Could not apply discount")
		return
	}

	apt.RespondSuccess(w, quote)
}

func (h *Handler) SelectBest(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.SelectBest")
	defer finish()

	log := h.log(r)
	ctx := r.Context()

	var req CartRequest
	if !h.decode(w, r, log, &req) {
		return
	}
	if req.RestaurantID == uuid.Nil {
		apt.RespondError(w, http.StatusBadRequest, "restaurant_id is required")
		return
	}

	catalog, err := h.repo.List(ctx, req.RestaurantID, Filter{ActiveOnly: true})
	if err != nil {
		log.Error("error retrieving discounts", "error", err)
		apt.RespondError(w, http.StatusInternalServerError, "Could not retrieve discounts")
		return
	}

	now := h.now()
	total := req.total()
	sel := SelectBest(catalog, total, req.Channel, now)

	apt.RespondSuccess(w, BestResponse{
		Selection: sel,
		Quote: Quote{
			DiscountID:     sel.ID(),
			CartTotal:      total,
			DiscountAmount: sel.Result.Savings,
			FinalAmount:    FinalAmount(total, sel.Result.Savings),
			Savings:        sel.Result.Savings,
		},
		ItemPreviews: PreviewItems(catalog, req.Items, req.Channel, now),
	})
}

func (h *Handler) loadDiscount(w http.ResponseWriter, r *http.Request, log apt.Logger) (*Discount, bool) {
	idStr := chi.URLParam(r, "id")
	id, err := uuid.Parse(idStr)
	if err != nil {
		log.Debug("invalid id parameter", "id", idStr)
		apt.RespondError(w, http.StatusBadRequest, "Invalid id parameter")
		return nil, false
	}

	d, err := h.repo.Get(r.Context(), id)
	if err != nil {
		log.Error("error loading discount", "error", err, "id", idStr)
		apt.RespondError(w, http.StatusInternalServerError, "Could not load discount")
		return nil, false
	}
	if d == nil {
		apt.RespondError(w, http.StatusNotFound, "Discount not found")
		return nil, false
	}

	return d, true
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
