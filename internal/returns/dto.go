package returns

// CreateReturnRequest is the payload for recording a supplier return.
type CreateReturnRequest struct {
	IngredientID int64   `json:"ingredient_id" validate:"required,gt=0"`
	Quantity     float64 `json:"quantity" validate:"required,gt=0"`
	Supplier     string  `json:"supplier" validate:"required,min=1,max=120"`
	Reason       string  `json:"reason,omitempty" validate:"max=500"`
	PerformedBy  int64   `json:"performed_by" validate:"required,gt=0"`
}

// ActionRequest carries the acting user for a bare state transition.
type ActionRequest struct {
	PerformedBy int64  `json:"performed_by" validate:"required,gt=0"`
	Reason      string `json:"reason,omitempty" validate:"max=500"`
}
