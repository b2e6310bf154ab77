package shared

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by the stock subsystems. Services wrap these
// sentinels so HTTP handlers can map failures without knowing module
// internals.
var (
	// ErrValidation indicates malformed input; no state change occurred.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound indicates a referenced record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict indicates the record is in the wrong state for the
	// requested transition, or a singleton constraint was violated.
	ErrConflict = errors.New("conflict")
)

// InsufficientStockError is returned when a deduction would drive the
// ingredient projection negative. It carries the numbers the caller needs
// to display.
type InsufficientStockError struct {
	IngredientID int64
	Available    float64
	Requested    float64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for ingredient %d: available %.4f, requested %.4f",
		e.IngredientID, e.Available, e.Requested)
}

// IsValidation reports whether err belongs to the validation class.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsNotFound reports whether err belongs to the not-found class.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflict reports whether err belongs to the conflict class.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// AsInsufficientStock unwraps err into target when it is an
// InsufficientStockError.
func AsInsufficientStock(err error, target **InsufficientStockError) bool {
	return errors.As(err, target)
}

// UserSafeMessage returns a message safe to surface to API clients.
// Internal failures collapse to a generic message.
func UserSafeMessage(err error) string {
	var insufficient *InsufficientStockError
	switch {
	case errors.As(err, &insufficient):
		return insufficient.Error()
	case IsValidation(err), IsNotFound(err), IsConflict(err):
		return err.Error()
	default:
		return "internal error, please retry"
	}
}
