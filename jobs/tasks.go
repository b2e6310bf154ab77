// Package jobs defines the background task types and the Asynq worker
// that runs them.
package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskAlertScan sweeps ingredient stock levels for reorder alerts.
	TaskAlertScan = "stock:alert_scan"
	// TaskLedgerIntegrity replays the ledger and flags drift against the
	// stored stock projection.
	TaskLedgerIntegrity = "stock:ledger_integrity"
)

// ScheduledPayload carries scheduling metadata for periodic tasks.
type ScheduledPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewAlertScanTask constructs an alert-scan task.
func NewAlertScanTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(ScheduledPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAlertScan, body, asynq.Queue(QueueDefault)), nil
}

// NewLedgerIntegrityTask constructs a ledger-integrity task.
func NewLedgerIntegrityTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(ScheduledPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLedgerIntegrity, body, asynq.Queue(QueueDefault)), nil
}
