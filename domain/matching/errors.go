package matching

import (
	"github.com/cockroachdb/errors"

	"ladder/domain/orderbook"
)

var (
	ErrNonPositiveQuantity = errors.New("quantity must be positive")
	ErrNonPositivePrice    = errors.New("limit price must be positive")
	ErrQuantityTooLarge    = errors.New("quantity above the order size limit")
	// ErrLevelFull rejects an order whose remainder could push its price
	// level aggregate past the int64 range.
	ErrLevelFull = errors.New("price level quantity limit reached")
	ErrUnknownSide         = orderbook.ErrUnknownSide

	// ErrOrderNotFound is returned by Cancel for ids that were never
	// issued, are fully filled or already canceled.
	ErrOrderNotFound = orderbook.ErrOrderNotFound
)

// ValidationError rejects an intent before it touches the book.
type ValidationError struct {
	Reason error
}

func (e *ValidationError) Error() string {
	return "order rejected: " + e.Reason.Error()
}

func (e *ValidationError) Unwrap() error {
	return e.Reason
}

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsInvariantViolation reports corrupted book state. It is a bug, never
// a user error.
func IsInvariantViolation(err error) bool {
	return errors.IsAssertionFailure(err)
}
