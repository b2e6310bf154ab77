package transfers

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/saffron-pos/saffron-pos/internal/platform/httpx"
)

// Handler wires HTTP endpoints for stock transfers.
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

// MountRoutes registers transfer routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.listTransfers)
	r.Post("/", h.initiateTransfer)
	r.Get("/{id}", h.showTransfer)
	r.Post("/{id}/transit", h.markInTransit)
	r.Post("/{id}/receive", h.receiveTransfer)
	r.Post("/{id}/cancel", h.cancelTransfer)
}

func (h *Handler) listTransfers(w http.ResponseWriter, r *http.Request) {
	status := TransferStatus(r.URL.Query().Get("status"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	transfers, err := h.service.ListTransfers(r.Context(), status, limit)
	if err != nil {
		h.logger.Error("list transfers", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"transfers": transfers})
}

func (h *Handler) initiateTransfer(w http.ResponseWriter, r *http.Request) {
	var req InitiateTransferRequest
	if !h.decode(w, r, &req) {
		return
	}
	items := make([]TransferItem, len(req.Items))
	for i, item := range req.Items {
		items[i] = TransferItem{IngredientID: item.IngredientID, QuantitySent: item.Quantity}
	}
	t, err := h.service.Initiate(r.Context(), InitiateInput{
		FromLocation: req.FromLocation,
		ToLocation:   req.ToLocation,
		Items:        items,
		Note:         req.Note,
		CreatedBy:    req.PerformedBy,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, t)
}

func (h *Handler) showTransfer(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	t, err := h.service.GetTransfer(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, t)
}

func (h *Handler) markInTransit(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req ActionRequest
	if !h.decode(w, r, &req) {
		return
	}
	t, err := h.service.MarkInTransit(r.Context(), id, req.PerformedBy)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, t)
}

func (h *Handler) receiveTransfer(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req ReceiveTransferRequest
	if !h.decode(w, r, &req) {
		return
	}
	lines := make([]ReceiptLine, len(req.Lines))
	for i, l := range req.Lines {
		lines[i] = ReceiptLine{IngredientID: l.IngredientID, ReceivedQty: l.ReceivedQty, DamagedQty: l.DamagedQty, DamageReason: l.DamageReason}
	}
	t, err := h.service.Receive(r.Context(), id, req.PerformedBy, lines)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, t)
}

func (h *Handler) cancelTransfer(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req ActionRequest
	if !h.decode(w, r, &req) {
		return
	}
	t, err := h.service.Cancel(r.Context(), id, req.PerformedBy, req.Reason)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, t)
}

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
