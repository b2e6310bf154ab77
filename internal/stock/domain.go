package stock

import (
	"fmt"
	"time"

	"github.com/saffron-pos/saffron-pos/internal/shared"
)

// TransactionType enumerates supported stock movements.
type TransactionType string

const (
	// TypePurchase represents goods received from a supplier.
	TypePurchase TransactionType = "purchase"
	// TypeSaleConsumption represents ingredients consumed by a finalised sale.
	TypeSaleConsumption TransactionType = "sale_consumption"
	// TypeAdjustment represents a manual or reconciliation correction.
	TypeAdjustment TransactionType = "adjustment"
	// TypeTransferOut represents the outbound leg of a location transfer.
	TypeTransferOut TransactionType = "transfer_out"
	// TypeTransferIn represents the inbound leg of a location transfer.
	TypeTransferIn TransactionType = "transfer_in"
	// TypeDamage represents a damage or waste write-off.
	TypeDamage TransactionType = "damage"
	// TypeReturn represents stock sent back to a supplier.
	TypeReturn TransactionType = "return"
	// TypeReconciliation is reserved for count snapshots recorded verbatim.
	TypeReconciliation TransactionType = "reconciliation"
)

// Valid reports whether the type is one of the known movement kinds.
func (t TransactionType) Valid() bool {
	switch t {
	case TypePurchase, TypeSaleConsumption, TypeAdjustment, TypeTransferOut,
		TypeTransferIn, TypeDamage, TypeReturn, TypeReconciliation:
		return true
	}
	return false
}

// deduction reports whether the type only ever removes stock.
func (t TransactionType) deduction() bool {
	switch t {
	case TypeSaleConsumption, TypeTransferOut, TypeDamage, TypeReturn:
		return true
	}
	return false
}

// addition reports whether the type only ever adds stock.
func (t TransactionType) addition() bool {
	switch t {
	case TypePurchase, TypeTransferIn:
		return true
	}
	return false
}

// DocumentType selects the reference-number series a document draws from.
type DocumentType string

const (
	// DocTransaction numbers ledger entries (TXN-2025-0001).
	DocTransaction DocumentType = "TXN"
	// DocTransfer numbers transfer documents.
	DocTransfer DocumentType = "TRF"
	// DocReturn numbers supplier returns.
	DocReturn DocumentType = "RET"
	// DocReconciliation numbers reconciliation exercises.
	DocReconciliation DocumentType = "REC"
)

// FormatDocumentNumber renders a year-scoped sequential reference number.
func FormatDocumentNumber(doc DocumentType, year int, seq int64) string {
	return fmt.Sprintf("%s-%d-%04d", doc, year, seq)
}

// ReferenceKind tags the document a ledger entry originates from.
type ReferenceKind string

const (
	RefNone           ReferenceKind = ""
	RefSale           ReferenceKind = "sale"
	RefPurchase       ReferenceKind = "purchase"
	RefTransfer       ReferenceKind = "transfer"
	RefReconciliation ReferenceKind = "reconciliation"
	RefReturn         ReferenceKind = "return"
)

// Reference links a ledger entry to its originating document. The kind is
// a closed enumeration rather than a free-form string so every linkage is
// checked at the boundary.
type Reference struct {
	Kind ReferenceKind
	ID   int64
}

// SaleRef builds a reference to a finalised sale.
func SaleRef(id int64) Reference { return Reference{Kind: RefSale, ID: id} }

// PurchaseRef builds a reference to a purchase receipt.
func PurchaseRef(id int64) Reference { return Reference{Kind: RefPurchase, ID: id} }

// TransferRef builds a reference to a stock transfer.
func TransferRef(id int64) Reference { return Reference{Kind: RefTransfer, ID: id} }

// ReconciliationRef builds a reference to a reconciliation.
func ReconciliationRef(id int64) Reference { return Reference{Kind: RefReconciliation, ID: id} }

// ReturnRef builds a reference to a supplier return.
func ReturnRef(id int64) Reference { return Reference{Kind: RefReturn, ID: id} }

func (r Reference) valid() bool {
	if r.Kind == RefNone {
		return r.ID == 0
	}
	switch r.Kind {
	case RefSale, RefPurchase, RefTransfer, RefReconciliation, RefReturn:
		return r.ID > 0
	}
	return false
}

// Epsilon below which a stock quantity is treated as zero. Differences
// inside this band are not significant for reconciliation either.
const Epsilon = 0.0001

// Ingredient is an inventory item tracked by quantity. CurrentStock is a
// projection of the ledger and is mutated exclusively through PostMovement.
type Ingredient struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Unit         string    `json:"unit"`
	CurrentStock float64   `json:"current_stock"`
	UnitCost     float64   `json:"unit_cost"`
	ReorderLevel float64   `json:"reorder_level"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TransactionStatus marks ledger entry state. Entries are immutable; the
// only status ever written is posted.
type TransactionStatus string

// StatusPosted is the terminal (and only) ledger entry status.
const StatusPosted TransactionStatus = "posted"

// StockTransaction is one immutable ledger entry. Corrections are new
// offsetting entries, never edits.
type StockTransaction struct {
	ID                int64             `json:"id"`
	TransactionNumber string            `json:"transaction_number"`
	IngredientID      int64             `json:"ingredient_id"`
	Type              TransactionType   `json:"transaction_type"`
	Quantity          float64           `json:"quantity"`
	PreviousStock     float64           `json:"previous_stock"`
	NewStock          float64           `json:"new_stock"`
	Unit              string            `json:"unit"`
	UnitCost          float64           `json:"unit_cost"`
	FromLocation      string            `json:"from_location,omitempty"`
	ToLocation        string            `json:"to_location,omitempty"`
	Ref               Reference         `json:"-"`
	ReferenceKind     ReferenceKind     `json:"reference_kind,omitempty"`
	ReferenceID       int64             `json:"reference_id,omitempty"`
	Note              string            `json:"note,omitempty"`
	PerformedBy       int64             `json:"performed_by"`
	Status            TransactionStatus `json:"status"`
	CreatedAt         time.Time         `json:"created_at"`
}

// MovementInput describes one quantity change. Quantity is a signed delta:
// negative for deductions, positive for additions.
type MovementInput struct {
	IngredientID int64
	Quantity     float64
	Type         TransactionType
	UnitCost     float64
	FromLocation string
	ToLocation   string
	Ref          Reference
	Note         string
	PerformedBy  int64
}

// LedgerFilter narrows ledger reads for reporting.
type LedgerFilter struct {
	IngredientID int64
	Types        []TransactionType
	From         time.Time
	To           time.Time
	Limit        int
}

// Sentinel errors for the stock core.
var (
	ErrIngredientNotFound = fmt.Errorf("stock: ingredient %w", shared.ErrNotFound)
	ErrInvalidQuantity    = fmt.Errorf("%w: quantity must be a non-zero delta", shared.ErrValidation)
	ErrInvalidType        = fmt.Errorf("%w: unknown transaction type", shared.ErrValidation)
	ErrInvalidReference   = fmt.Errorf("%w: reference kind and id do not agree", shared.ErrValidation)
	ErrWrongSign          = fmt.Errorf("%w: quantity sign does not match transaction type", shared.ErrValidation)
)

// Validate checks the input against the type's sign discipline.
func (m MovementInput) Validate() error {
	if m.IngredientID <= 0 {
		return fmt.Errorf("%w: ingredient id required", shared.ErrValidation)
	}
	if !m.Type.Valid() {
		return ErrInvalidType
	}
	if m.Quantity == 0 {
		return ErrInvalidQuantity
	}
	if m.Type.deduction() && m.Quantity > 0 {
		return ErrWrongSign
	}
	if m.Type.addition() && m.Quantity < 0 {
		return ErrWrongSign
	}
	if m.UnitCost < 0 {
		return fmt.Errorf("%w: unit cost must be >= 0", shared.ErrValidation)
	}
	if !m.Ref.valid() {
		return ErrInvalidReference
	}
	return nil
}
