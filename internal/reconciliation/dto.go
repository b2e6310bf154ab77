package reconciliation

// StartReconciliationRequest is the payload for opening an exercise.
type StartReconciliationRequest struct {
	Location    string `json:"location,omitempty" validate:"max=64"`
	Note        string `json:"note,omitempty" validate:"max=500"`
	PerformedBy int64  `json:"performed_by" validate:"required,gt=0"`
}

// UpdateItemsRequest is the payload for entering physical counts.
type UpdateItemsRequest struct {
	Items       []CountLineRequest `json:"items" validate:"required,min=1,dive"`
	PerformedBy int64              `json:"performed_by" validate:"required,gt=0"`
}

// CountLineRequest is one entered count.
type CountLineRequest struct {
	ItemID        int64   `json:"item_id" validate:"required,gt=0"`
	PhysicalStock float64 `json:"physical_stock" validate:"gte=0"`
	Note          string  `json:"note,omitempty" validate:"max=500"`
}

// ActionRequest carries the acting user for a bare state transition.
type ActionRequest struct {
	PerformedBy int64 `json:"performed_by" validate:"required,gt=0"`
}
