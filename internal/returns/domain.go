package returns

import (
	"fmt"
	"time"

	"github.com/saffron-pos/saffron-pos/internal/shared"
)

// ReturnStatus tracks a supplier return document.
type ReturnStatus string

const (
	// StatusPending means the return is recorded and stock already left.
	StatusPending ReturnStatus = "pending"
	// StatusApproved means a manager signed off on the return.
	StatusApproved ReturnStatus = "approved"
	// StatusShipped means the goods went back to the supplier.
	StatusShipped ReturnStatus = "shipped"
	// StatusCompleted is terminal.
	StatusCompleted ReturnStatus = "completed"
	// StatusRejected is terminal; the deduction was reversed.
	StatusRejected ReturnStatus = "rejected"
)

// Terminal reports whether no further transition is allowed.
func (s ReturnStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusRejected
}

// RefundStatus tracks the supplier refund independently from the goods.
type RefundStatus string

const (
	RefundPending  RefundStatus = "pending"
	RefundApproved RefundStatus = "approved"
	RefundRefunded RefundStatus = "refunded"
	RefundRejected RefundStatus = "rejected"
)

// StockReturn sends one ingredient back to a supplier. The ledger
// deduction is posted when the return is created; rejection reverses it
// with a new offsetting entry.
type StockReturn struct {
	ID           int64        `json:"id"`
	ReturnNumber string       `json:"return_number"`
	IngredientID int64        `json:"ingredient_id"`
	Quantity     float64      `json:"quantity"`
	UnitCost     float64      `json:"unit_cost"`
	Supplier     string       `json:"supplier"`
	Reason       string       `json:"reason,omitempty"`
	Status       ReturnStatus `json:"status"`
	RefundStatus RefundStatus `json:"refund_status"`
	RefundAmount float64      `json:"refund_amount"`
	LedgerTxID   int64        `json:"ledger_tx_id,omitempty"`
	CreatedBy    int64        `json:"created_by"`
	CreatedAt    time.Time    `json:"created_at"`
	ClosedAt     *time.Time   `json:"closed_at,omitempty"`
}

// Sentinel errors for the returns module.
var (
	ErrReturnNotFound = fmt.Errorf("returns: return %w", shared.ErrNotFound)
)

func invalidTransition(from ReturnStatus, action string) error {
	return fmt.Errorf("%w: cannot %s a %s return", shared.ErrConflict, action, from)
}

func invalidRefundTransition(from RefundStatus, action string) error {
	return fmt.Errorf("%w: cannot %s a refund in %s state", shared.ErrConflict, action, from)
}
