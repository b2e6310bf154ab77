package alerts

import (
	"fmt"
	"time"

	"github.com/saffron-pos/saffron-pos/internal/shared"
)

// Severity grades how far below its reorder level an ingredient sits.
type Severity string

const (
	// SeverityLow means stock is at or below the reorder level.
	SeverityLow Severity = "low"
	// SeverityCritical means stock is at or below half the reorder level.
	SeverityCritical Severity = "critical"
)

// StockAlert is a derived fact about current stock versus its threshold.
// Only the acknowledge/resolve workflow fields are stored; quantities are
// recomputed from the projection on every scan.
type StockAlert struct {
	ID           int64      `json:"id"`
	IngredientID int64      `json:"ingredient_id"`
	Name         string     `json:"name"`
	Unit         string     `json:"unit"`
	CurrentStock float64    `json:"current_stock"`
	ReorderLevel float64    `json:"reorder_level"`
	Severity     Severity   `json:"severity"`
	Acknowledged bool       `json:"acknowledged"`
	Resolved     bool       `json:"resolved"`
	FirstSeenAt  time.Time  `json:"first_seen_at"`
	LastSeenAt   time.Time  `json:"last_seen_at"`
	ResolvedAt   *time.Time `json:"resolved_at,omitempty"`
}

// GradeSeverity classifies stock against the reorder level.
func GradeSeverity(currentStock, reorderLevel float64) Severity {
	if reorderLevel > 0 && currentStock <= reorderLevel/2 {
		return SeverityCritical
	}
	return SeverityLow
}

// ErrAlertNotFound marks a missing alert row.
var ErrAlertNotFound = fmt.Errorf("alerts: alert %w", shared.ErrNotFound)
