package transfers

// InitiateTransferRequest is the payload for creating a transfer.
type InitiateTransferRequest struct {
	FromLocation string                `json:"from_location" validate:"required,min=1,max=64"`
	ToLocation   string                `json:"to_location" validate:"required,min=1,max=64"`
	Items        []TransferItemRequest `json:"items" validate:"required,min=1,dive"`
	Note         string                `json:"note,omitempty" validate:"max=500"`
	PerformedBy  int64                 `json:"performed_by" validate:"required,gt=0"`
}

// TransferItemRequest is one line of a new transfer.
type TransferItemRequest struct {
	IngredientID int64   `json:"ingredient_id" validate:"required,gt=0"`
	Quantity     float64 `json:"quantity" validate:"required,gt=0"`
}

// ActionRequest carries the acting user for a bare state transition.
type ActionRequest struct {
	PerformedBy int64  `json:"performed_by" validate:"required,gt=0"`
	Reason      string `json:"reason,omitempty" validate:"max=500"`
}

// ReceiveTransferRequest is the payload for closing an in-transit transfer.
type ReceiveTransferRequest struct {
	Lines       []ReceiptLineRequest `json:"lines" validate:"required,min=1,dive"`
	PerformedBy int64                `json:"performed_by" validate:"required,gt=0"`
}

// ReceiptLineRequest reports counted quantities for one item.
type ReceiptLineRequest struct {
	IngredientID int64   `json:"ingredient_id" validate:"required,gt=0"`
	ReceivedQty  float64 `json:"received_qty" validate:"gte=0"`
	DamagedQty   float64 `json:"damaged_qty" validate:"gte=0"`
	DamageReason string  `json:"damage_reason,omitempty" validate:"max=500"`
}
