package reconciliation

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/saffron-pos/saffron-pos/internal/platform/httpx"
)

// Handler wires HTTP endpoints for stock reconciliations.
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

// MountRoutes registers reconciliation routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.listReconciliations)
	r.Post("/", h.startReconciliation)
	r.Get("/{id}", h.showReconciliation)
	r.Put("/{id}/items", h.updateItems)
	r.Post("/{id}/submit", h.submitReconciliation)
	r.Post("/{id}/approve", h.approveReconciliation)
}

func (h *Handler) listReconciliations(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	recs, err := h.service.ListReconciliations(r.Context(), limit)
	if err != nil {
		h.logger.Error("list reconciliations", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"reconciliations": recs})
}

func (h *Handler) startReconciliation(w http.ResponseWriter, r *http.Request) {
	var req StartReconciliationRequest
	if !h.decode(w, r, &req) {
		return
	}
	rec, err := h.service.Start(r.Context(), req.Location, req.Note, req.PerformedBy)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, rec)
}

func (h *Handler) showReconciliation(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	rec, err := h.service.GetReconciliation(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rec)
}

func (h *Handler) updateItems(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req UpdateItemsRequest
	if !h.decode(w, r, &req) {
		return
	}
	lines := make([]CountLine, len(req.Items))
	for i, item := range req.Items {
		lines[i] = CountLine{ItemID: item.ItemID, PhysicalStock: item.PhysicalStock, Note: item.Note}
	}
	rec, err := h.service.UpdateItems(r.Context(), id, req.PerformedBy, lines)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rec)
}

func (h *Handler) submitReconciliation(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req ActionRequest
	if !h.decode(w, r, &req) {
		return
	}
	rec, err := h.service.Submit(r.Context(), id, req.PerformedBy)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rec)
}

func (h *Handler) approveReconciliation(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req ActionRequest
	if !h.decode(w, r, &req) {
		return
	}
	rec, err := h.service.Approve(r.Context(), id, req.PerformedBy)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rec)
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
