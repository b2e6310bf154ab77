package httpx

import (
	"net/http"

	"github.com/saffron-pos/saffron-pos/internal/shared"
)

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	var insufficient *shared.InsufficientStockError
	switch {
	case shared.AsInsufficientStock(err, &insufficient):
		ProblemWithMeta(w, http.StatusUnprocessableEntity, "Insufficient Stock", err.Error(), map[string]any{
			"ingredient_id": insufficient.IngredientID,
			"available":     insufficient.Available,
			"requested":     insufficient.Requested,
		})
	case shared.IsNotFound(err):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case shared.IsConflict(err):
		Problem(w, http.StatusConflict, "Conflict", err.Error())
	case shared.IsValidation(err):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
