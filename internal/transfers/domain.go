package transfers

import (
	"fmt"
	"time"

	"github.com/saffron-pos/saffron-pos/internal/shared"
)

// TransferStatus tracks a stock transfer through its lifecycle.
type TransferStatus string

const (
	// StatusPending means the outbound deduction has been posted and the
	// goods await pickup. Stock leaves the source at initiation.
	StatusPending TransferStatus = "pending"
	// StatusInTransit marks the goods as on the way. No stock moves on
	// this transition.
	StatusInTransit TransferStatus = "in_transit"
	// StatusReceived is terminal; the inbound addition has been posted.
	StatusReceived TransferStatus = "received"
	// StatusCancelled is terminal; the outbound deduction was reversed.
	StatusCancelled TransferStatus = "cancelled"
)

// Terminal reports whether no further transition is allowed.
func (s TransferStatus) Terminal() bool {
	return s == StatusReceived || s == StatusCancelled
}

// StockTransfer moves ingredients between two named locations.
type StockTransfer struct {
	ID             int64          `json:"id"`
	TransferNumber string         `json:"transfer_number"`
	FromLocation   string         `json:"from_location"`
	ToLocation     string         `json:"to_location"`
	Status         TransferStatus `json:"status"`
	Note           string         `json:"note,omitempty"`
	CreatedBy      int64          `json:"created_by"`
	DispatchedBy   int64          `json:"dispatched_by,omitempty"`
	ReceivedBy     int64          `json:"received_by,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	DispatchedAt   *time.Time     `json:"dispatched_at,omitempty"`
	ClosedAt       *time.Time     `json:"closed_at,omitempty"`
	Items          []TransferItem `json:"items,omitempty"`
}

// TransferItem is one ingredient line of a transfer. ReceivedQty and
// DamagedQty stay zero until the receiving side counts the goods; any
// shortfall against QuantitySent is shrinkage. OutTxID links the outbound
// deduction posted at initiation; InTxID links the inbound addition posted
// at receipt (zero when nothing intact arrived).
type TransferItem struct {
	ID           int64   `json:"id"`
	TransferID   int64   `json:"transfer_id"`
	IngredientID int64   `json:"ingredient_id"`
	QuantitySent float64 `json:"quantity_sent"`
	ReceivedQty  float64 `json:"received_qty"`
	DamagedQty   float64 `json:"damaged_qty"`
	DamageReason string  `json:"damage_reason,omitempty"`
	OutTxID      int64   `json:"out_tx_id,omitempty"`
	InTxID       int64   `json:"in_tx_id,omitempty"`
}

// ReceiptLine reports counted quantities for one item at receiving time.
type ReceiptLine struct {
	IngredientID int64
	ReceivedQty  float64
	DamagedQty   float64
	DamageReason string
}

// Sentinel errors for the transfers module.
var (
	ErrTransferNotFound = fmt.Errorf("transfers: transfer %w", shared.ErrNotFound)
	ErrSameLocation     = fmt.Errorf("%w: from and to locations must differ", shared.ErrValidation)
	ErrNoItems          = fmt.Errorf("%w: transfer requires at least one item", shared.ErrValidation)
	ErrDuplicateItem    = fmt.Errorf("%w: transfer lists an ingredient twice", shared.ErrValidation)
	ErrOverReceipt      = fmt.Errorf("%w: received plus damaged exceeds quantity sent", shared.ErrValidation)
	ErrIncompleteCount  = fmt.Errorf("%w: receipt must count every transfer item", shared.ErrValidation)
)

func invalidTransition(from TransferStatus, action string) error {
	return fmt.Errorf("%w: cannot %s a %s transfer", shared.ErrConflict, action, from)
}
