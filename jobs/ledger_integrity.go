package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/saffron-pos/saffron-pos/internal/jobs"
	"github.com/saffron-pos/saffron-pos/internal/stock"
)

// LedgerPort is the slice of the stock repository the integrity check needs.
type LedgerPort interface {
	FindLedgerDrift(ctx context.Context, tolerance float64) ([]stock.LedgerDrift, error)
}

// NewLedgerIntegrityHandler returns the Asynq handler for TaskLedgerIntegrity.
// Drift between the stored stock projection and the replayed ledger means a
// write bypassed the ledger; every offending ingredient is logged.
func NewLedgerIntegrityHandler(ledger LedgerPort, logger *slog.Logger, metrics *jobmetrics.Metrics) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload ScheduledPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		tracker := metrics.Track(TaskLedgerIntegrity)
		drift, err := ledger.FindLedgerDrift(ctx, stock.Epsilon)
		if err != nil {
			logger.Error("ledger integrity check failed", slog.Any("error", err))
			return tracker.End(err)
		}
		for _, d := range drift {
			logger.Warn("ledger drift detected",
				slog.Int64("ingredient_id", d.IngredientID),
				slog.String("name", d.Name),
				slog.Float64("projected", d.ProjectedStock),
				slog.Float64("ledger", d.LedgerStock))
		}
		metrics.AddDrift(len(drift))
		if len(drift) == 0 {
			logger.Info("ledger integrity check clean")
		}
		return tracker.End(nil)
	}
}
