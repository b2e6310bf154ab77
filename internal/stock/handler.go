package stock

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/saffron-pos/saffron-pos/internal/platform/httpx"
)

// Handler wires HTTP endpoints for the stock ledger.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		validator: validator.New(),
	}
}

// MountRoutes registers stock routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/ingredients", h.listIngredients)
	r.Post("/ingredients", h.createIngredient)
	r.Get("/ingredients/{id}", h.showIngredient)
	r.Get("/ingredients/{id}/transactions", h.listIngredientTransactions)

	r.Get("/transactions", h.listTransactions)
	r.Post("/movements", h.recordMovement)
	r.Post("/purchases", h.receivePurchase)
	r.Post("/consumptions", h.consumeForSale)
	r.Post("/adjustments", h.postAdjustment)
	r.Post("/damages", h.writeOffDamage)
}

func (h *Handler) listIngredients(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.ListIngredients(r.Context())
	if err != nil {
		h.logger.Error("list ingredients", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"ingredients": items})
}

func (h *Handler) createIngredient(w http.ResponseWriter, r *http.Request) {
	var req CreateIngredientRequest
	if !h.decode(w, r, &req) {
		return
	}
	ing, err := h.service.CreateIngredient(r.Context(), CreateIngredientInput{
		Name:         req.Name,
		Unit:         req.Unit,
		InitialStock: req.InitialStock,
		UnitCost:     req.UnitCost,
		ReorderLevel: req.ReorderLevel,
		PerformedBy:  req.PerformedBy,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, ing)
}

func (h *Handler) showIngredient(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	ing, err := h.service.GetIngredient(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, ing)
}

func (h *Handler) listIngredientTransactions(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	filter := parseLedgerFilter(r)
	filter.IngredientID = id
	entries, err := h.service.ListTransactions(r.Context(), filter)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"transactions": entries})
}

func (h *Handler) listTransactions(w http.ResponseWriter, r *http.Request) {
	entries, err := h.service.ListTransactions(r.Context(), parseLedgerFilter(r))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"transactions": entries})
}

func (h *Handler) recordMovement(w http.ResponseWriter, r *http.Request) {
	var req MovementRequest
	if !h.decode(w, r, &req) {
		return
	}
	entry, err := h.service.RecordMovement(r.Context(), MovementInput{
		IngredientID: req.IngredientID,
		Quantity:     req.Quantity,
		Type:         TransactionType(req.Type),
		UnitCost:     req.UnitCost,
		FromLocation: req.FromLocation,
		ToLocation:   req.ToLocation,
		Ref:          Reference{Kind: ReferenceKind(req.ReferenceKind), ID: req.ReferenceID},
		Note:         req.Note,
		PerformedBy:  req.PerformedBy,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, entry)
}

func (h *Handler) receivePurchase(w http.ResponseWriter, r *http.Request) {
	var req PurchaseRequest
	if !h.decode(w, r, &req) {
		return
	}
	entry, err := h.service.ReceivePurchase(r.Context(), PurchaseInput{
		IngredientID: req.IngredientID,
		Quantity:     req.Quantity,
		UnitCost:     req.UnitCost,
		SupplierRef:  req.SupplierRef,
		PurchaseID:   req.PurchaseID,
		PerformedBy:  req.PerformedBy,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, entry)
}

func (h *Handler) consumeForSale(w http.ResponseWriter, r *http.Request) {
	var req SaleConsumptionRequest
	if !h.decode(w, r, &req) {
		return
	}
	lines := make([]SaleLine, len(req.Lines))
	for i, l := range req.Lines {
		lines[i] = SaleLine{IngredientID: l.IngredientID, Quantity: l.Quantity}
	}
	entries, err := h.service.ConsumeForSale(r.Context(), SaleConsumptionInput{
		SaleID:      req.SaleID,
		Lines:       lines,
		PerformedBy: req.PerformedBy,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"transactions": entries})
}

func (h *Handler) postAdjustment(w http.ResponseWriter, r *http.Request) {
	var req AdjustmentRequest
	if !h.decode(w, r, &req) {
		return
	}
	entry, err := h.service.PostAdjustment(r.Context(), AdjustmentInput{
		IngredientID: req.IngredientID,
		Quantity:     req.Quantity,
		Reason:       req.Reason,
		PerformedBy:  req.PerformedBy,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, entry)
}

func (h *Handler) writeOffDamage(w http.ResponseWriter, r *http.Request) {
	var req DamageRequest
	if !h.decode(w, r, &req) {
		return
	}
	entry, err := h.service.WriteOffDamage(r.Context(), DamageInput{
		IngredientID: req.IngredientID,
		Quantity:     req.Quantity,
		Reason:       req.Reason,
		PerformedBy:  req.PerformedBy,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, entry)
}

// decode parses and validates a JSON payload, writing a problem response
// on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := httpx.DecodeJSON(r, target); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", "request body is not valid JSON")
		return false
	}
	if err := h.validator.Struct(target); err != nil {
		fields := map[string]any{}
		if errs, ok := err.(validator.ValidationErrors); ok {
			for _, fieldErr := range errs {
				fields[fieldErr.Field()] = fieldErr.Tag()
			}
		}
		httpx.ProblemWithMeta(w, http.StatusBadRequest, "Validation Failed", "one or more fields are invalid", fields)
		return false
	}
	return true
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", "id must be a positive integer")
		return 0, false
	}
	return id, true
}

func parseLedgerFilter(r *http.Request) LedgerFilter {
	q := r.URL.Query()
	filter := LedgerFilter{}
	if v := q.Get("ingredient_id"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			filter.IngredientID = id
		}
	}
	if v := q.Get("types"); v != "" {
		for _, raw := range strings.Split(v, ",") {
			t := TransactionType(strings.TrimSpace(raw))
			if t.Valid() {
				filter.Types = append(filter.Types, t)
			}
		}
	}
	if v := q.Get("from"); v != "" {
		if t, err := time.Parse("2006-01-02", v); err == nil {
			filter.From = t
		}
	}
	if v := q.Get("to"); v != "" {
		if t, err := time.Parse("2006-01-02", v); err == nil {
			filter.To = t
		}
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Limit = n
		}
	}
	return filter
}
