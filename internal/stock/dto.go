package stock

// CreateIngredientRequest is the payload for registering an ingredient.
type CreateIngredientRequest struct {
	Name         string  `json:"name" validate:"required,min=2,max=120"`
	Unit         string  `json:"unit" validate:"required,min=1,max=16"`
	InitialStock float64 `json:"initial_stock" validate:"gte=0"`
	UnitCost     float64 `json:"unit_cost" validate:"gte=0"`
	ReorderLevel float64 `json:"reorder_level" validate:"gte=0"`
	PerformedBy  int64   `json:"performed_by" validate:"required,gt=0"`
}

// MovementRequest is the payload for a raw ledger movement.
type MovementRequest struct {
	IngredientID  int64   `json:"ingredient_id" validate:"required,gt=0"`
	Quantity      float64 `json:"quantity" validate:"required"`
	Type          string  `json:"transaction_type" validate:"required"`
	UnitCost      float64 `json:"unit_cost" validate:"gte=0"`
	FromLocation  string  `json:"from_location,omitempty"`
	ToLocation    string  `json:"to_location,omitempty"`
	ReferenceKind string  `json:"reference_kind,omitempty"`
	ReferenceID   int64   `json:"reference_id,omitempty" validate:"gte=0"`
	Note          string  `json:"note,omitempty" validate:"max=500"`
	PerformedBy   int64   `json:"performed_by" validate:"required,gt=0"`
}

// PurchaseRequest is the payload for receiving supplier goods.
type PurchaseRequest struct {
	IngredientID int64   `json:"ingredient_id" validate:"required,gt=0"`
	Quantity     float64 `json:"quantity" validate:"required,gt=0"`
	UnitCost     float64 `json:"unit_cost" validate:"gte=0"`
	SupplierRef  string  `json:"supplier_ref,omitempty" validate:"max=64"`
	PurchaseID   int64   `json:"purchase_id,omitempty" validate:"gte=0"`
	PerformedBy  int64   `json:"performed_by" validate:"required,gt=0"`
}

// SaleConsumptionRequest is the payload for a finalised sale's consumption.
type SaleConsumptionRequest struct {
	SaleID      int64             `json:"sale_id" validate:"required,gt=0"`
	Lines       []SaleLineRequest `json:"lines" validate:"required,min=1,dive"`
	PerformedBy int64             `json:"performed_by" validate:"required,gt=0"`
}

// SaleLineRequest is one consumed line of a sale.
type SaleLineRequest struct {
	IngredientID int64   `json:"ingredient_id" validate:"required,gt=0"`
	Quantity     float64 `json:"quantity" validate:"required,gt=0"`
}

// AdjustmentRequest is the payload for a manual correction.
type AdjustmentRequest struct {
	IngredientID int64   `json:"ingredient_id" validate:"required,gt=0"`
	Quantity     float64 `json:"quantity" validate:"required"`
	Reason       string  `json:"reason" validate:"required,max=500"`
	PerformedBy  int64   `json:"performed_by" validate:"required,gt=0"`
}

// DamageRequest is the payload for a damage or waste write-off.
type DamageRequest struct {
	IngredientID int64   `json:"ingredient_id" validate:"required,gt=0"`
	Quantity     float64 `json:"quantity" validate:"required,gt=0"`
	Reason       string  `json:"reason" validate:"required,max=500"`
	PerformedBy  int64   `json:"performed_by" validate:"required,gt=0"`
}
