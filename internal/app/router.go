package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/saffron-pos/saffron-pos/internal/alerts"
	"github.com/saffron-pos/saffron-pos/internal/observability"
	"github.com/saffron-pos/saffron-pos/internal/reconciliation"
	"github.com/saffron-pos/saffron-pos/internal/reports"
	"github.com/saffron-pos/saffron-pos/internal/returns"
	"github.com/saffron-pos/saffron-pos/internal/stock"
	"github.com/saffron-pos/saffron-pos/internal/transfers"
	"github.com/saffron-pos/saffron-pos/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger *slog.Logger
	Config *Config

	StockHandler          *stock.Handler
	TransferHandler       *transfers.Handler
	ReconciliationHandler *reconciliation.Handler
	ReturnHandler         *returns.Handler
	AlertHandler          *alerts.Handler
	ReportHandler         *reports.Handler
	JobHandler            *jobs.Handler

	Metrics *observability.Metrics
}

// NewRouter constructs the chi.Router with the default middleware chain
// and all module routes mounted.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/stock", params.StockHandler.MountRoutes)
		r.Route("/transfers", params.TransferHandler.MountRoutes)
		r.Route("/reconciliations", params.ReconciliationHandler.MountRoutes)
		r.Route("/returns", params.ReturnHandler.MountRoutes)
		r.Route("/alerts", params.AlertHandler.MountRoutes)
		r.Route("/reports", params.ReportHandler.MountRoutes)
	})

	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
