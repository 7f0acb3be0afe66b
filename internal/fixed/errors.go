package fixed

import (
	"errors"
	"fmt"
)

var (
	// ErrMultiplierTooLarge is returned when an integer multiplier does not fit the
	// integer part of the format.
	ErrMultiplierTooLarge = errors.New("integer multiplier too large for format")

	// ErrValueTooLarge is returned when a value's integer part exceeds the format.
	ErrValueTooLarge = errors.New("value too large for format")
)

// ErrFormatMismatch matches any *FormatMismatchError with errors.Is.
var ErrFormatMismatch = &FormatMismatchError{}

// FormatMismatchError reports operands that do not share a format.
type FormatMismatchError struct {
	Op       string
	Field    string
	Expected int
	Actual   int
}

func (e *FormatMismatchError) Error() string {
	if e.Op == "" {
		return "fixed-point format mismatch"
	}
	return fmt.Sprintf("%s: %s mismatch (expected %d, got %d)", e.Op, e.Field, e.Expected, e.Actual)
}

func (e *FormatMismatchError) Is(target error) bool {
	_, ok := target.(*FormatMismatchError)
	return ok
}
