package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/saffron-pos/saffron-pos/internal/alerts"
	jobmetrics "github.com/saffron-pos/saffron-pos/internal/jobs"
)

// NewAlertScanHandler returns the Asynq handler for TaskAlertScan. Each run
// upserts alerts for low-stock ingredients and resolves recovered ones.
func NewAlertScanHandler(service *alerts.Service, logger *slog.Logger, metrics *jobmetrics.Metrics) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload ScheduledPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		tracker := metrics.Track(TaskAlertScan)
		active, err := service.Scan(ctx)
		if err != nil {
			logger.Error("alert scan failed", slog.Any("error", err))
			return tracker.End(err)
		}
		logger.Info("alert scan completed", slog.Int("active", active))
		return tracker.End(nil)
	}
}
