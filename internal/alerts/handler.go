package alerts

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/saffron-pos/saffron-pos/internal/platform/httpx"
)

// Handler wires HTTP endpoints for low-stock alerts.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers alert routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.listAlerts)
	r.Post("/scan", h.scan)
	r.Post("/{id}/acknowledge", h.acknowledge)
	r.Post("/{id}/resolve", h.resolve)
}

func (h *Handler) listAlerts(w http.ResponseWriter, r *http.Request) {
	out, err := h.service.ListActive(r.Context())
	if err != nil {
		h.logger.Error("list alerts", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"alerts": out})
}

func (h *Handler) scan(w http.ResponseWriter, r *http.Request) {
	active, err := h.service.Scan(r.Context())
	if err != nil {
		h.logger.Error("alert scan", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"active": active})
}

func (h *Handler) acknowledge(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if err := h.service.Acknowledge(r.Context(), id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) resolve(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if err := h.service.Resolve(r.Context(), id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", "id must be a positive integer")
		return 0, false
	}
	return id, true
}
