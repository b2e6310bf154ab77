package returns

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/saffron-pos/saffron-pos/internal/platform/httpx"
)

// Handler wires HTTP endpoints for supplier returns.
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

// MountRoutes registers return routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.listReturns)
	r.Post("/", h.createReturn)
	r.Get("/{id}", h.showReturn)
	r.Post("/{id}/approve", h.action((*Service).Approve))
	r.Post("/{id}/ship", h.action((*Service).Ship))
	r.Post("/{id}/complete", h.action((*Service).Complete))
	r.Post("/{id}/reject", h.rejectReturn)
	r.Post("/{id}/refund/approve", h.action((*Service).ApproveRefund))
	r.Post("/{id}/refund/settle", h.action((*Service).MarkRefunded))
}

func (h *Handler) listReturns(w http.ResponseWriter, r *http.Request) {
	status := ReturnStatus(r.URL.Query().Get("status"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	rets, err := h.service.ListReturns(r.Context(), status, limit)
	if err != nil {
		h.logger.Error("list returns", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"returns": rets})
}

func (h *Handler) createReturn(w http.ResponseWriter, r *http.Request) {
	var req CreateReturnRequest
	if !h.decode(w, r, &req) {
		return
	}
	ret, err := h.service.Create(r.Context(), CreateInput{
		IngredientID: req.IngredientID,
		Quantity:     req.Quantity,
		Supplier:     req.Supplier,
		Reason:       req.Reason,
		CreatedBy:    req.PerformedBy,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, ret)
}

func (h *Handler) showReturn(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	ret, err := h.service.GetReturn(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, ret)
}

// action builds a handler for transitions that only need the actor.
func (h *Handler) action(fn func(*Service, context.Context, int64, int64) (StockReturn, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := h.pathID(w, r)
		if !ok {
			return
		}
		var req ActionRequest
		if !h.decode(w, r, &req) {
			return
		}
		ret, err := fn(h.service, r.Context(), id, req.PerformedBy)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, ret)
	}
}

func (h *Handler) rejectReturn(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req ActionRequest
	if !h.decode(w, r, &req) {
		return
	}
	ret, err := h.service.Reject(r.Context(), id, req.PerformedBy, req.Reason)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, ret)
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
