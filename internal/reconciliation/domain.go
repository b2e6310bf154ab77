package reconciliation

import (
	"fmt"
	"time"

	"github.com/saffron-pos/saffron-pos/internal/shared"
)

// ReconciliationStatus tracks a physical-count exercise. The machine is
// linear: in_progress, completed, approved. There are no back-transitions
// and no cancellation path.
type ReconciliationStatus string

const (
	// StatusInProgress means counts are being entered. At most one
	// reconciliation may be in this state system-wide.
	StatusInProgress ReconciliationStatus = "in_progress"
	// StatusCompleted means counting is done and totals are frozen.
	StatusCompleted ReconciliationStatus = "completed"
	// StatusApproved is terminal; variances have been posted to the ledger.
	StatusApproved ReconciliationStatus = "approved"
)

// StockReconciliation is one physical-count exercise over every ingredient.
type StockReconciliation struct {
	ID                   int64                `json:"id"`
	ReconciliationNumber string               `json:"reconciliation_number"`
	Location             string               `json:"location,omitempty"`
	Status               ReconciliationStatus `json:"status"`
	Note                 string               `json:"note,omitempty"`
	StartedBy            int64                `json:"started_by"`
	ApprovedBy           int64                `json:"approved_by,omitempty"`
	ItemsCounted         int                  `json:"items_counted"`
	DiscrepancyCount     int                  `json:"discrepancy_count"`
	TotalValueDifference float64              `json:"total_value_difference"`
	CreatedAt            time.Time            `json:"created_at"`
	CompletedAt          *time.Time           `json:"completed_at,omitempty"`
	ApprovedAt           *time.Time           `json:"approved_at,omitempty"`
	Items                []ReconciliationItem `json:"items,omitempty"`
}

// ReconciliationItem snapshots one ingredient at start time. SystemStock
// is frozen at the snapshot; PhysicalStock defaults equal to it until a
// count is entered. Items become immutable once the parent is approved.
type ReconciliationItem struct {
	ID               int64   `json:"id"`
	ReconciliationID int64   `json:"reconciliation_id"`
	IngredientID     int64   `json:"ingredient_id"`
	IngredientName   string  `json:"ingredient_name"`
	Unit             string  `json:"unit"`
	SystemStock      float64 `json:"system_stock"`
	PhysicalStock    float64 `json:"physical_stock"`
	UnitCost         float64 `json:"unit_cost"`
	Difference       float64 `json:"difference"`
	ValueDifference  float64 `json:"value_difference"`
	Note             string  `json:"note,omitempty"`
	Counted          bool    `json:"counted"`
	AdjustmentTxID   int64   `json:"adjustment_tx_id,omitempty"`
}

// CountLine is one physical count entered by the user.
type CountLine struct {
	ItemID        int64
	PhysicalStock float64
	Note          string
}

// Sentinel errors for the reconciliation module.
var (
	ErrReconciliationNotFound = fmt.Errorf("reconciliation: exercise %w", shared.ErrNotFound)
	ErrItemNotFound           = fmt.Errorf("reconciliation: item %w", shared.ErrNotFound)
	ErrAlreadyInProgress      = fmt.Errorf("%w: a reconciliation is already in progress", shared.ErrConflict)
	ErrNoIngredients          = fmt.Errorf("%w: no ingredients to reconcile", shared.ErrValidation)
)

func invalidTransition(from ReconciliationStatus, action string) error {
	return fmt.Errorf("%w: cannot %s a %s reconciliation", shared.ErrConflict, action, from)
}
