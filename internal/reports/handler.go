package reports

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/saffron-pos/saffron-pos/internal/platform/httpx"
	"github.com/saffron-pos/saffron-pos/internal/shared"
)

// Handler wires HTTP endpoints for stock reports.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers report routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/daily", h.daily)
	r.Get("/usage", h.usage)
}

func (h *Handler) daily(w http.ResponseWriter, r *http.Request) {
	day := time.Now().UTC()
	if v := r.URL.Query().Get("date"); v != "" {
		parsed, err := time.Parse("2006-01-02", v)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "date must be YYYY-MM-DD")
			return
		}
		day = parsed
	}
	report, err := h.service.Daily(r.Context(), day)
	if err != nil {
		h.logger.Error("daily report", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

func (h *Handler) usage(w http.ResponseWriter, r *http.Request) {
	from, err1 := time.Parse("2006-01-02", r.URL.Query().Get("from"))
	to, err2 := time.Parse("2006-01-02", r.URL.Query().Get("to"))
	if err1 != nil || err2 != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "from and to must be YYYY-MM-DD")
		return
	}
	lines, err := h.service.Range(r.Context(), from, to.AddDate(0, 0, 1))
	if err != nil {
		if !shared.IsValidation(err) {
			h.logger.Error("usage report", slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"usage": lines})
}
