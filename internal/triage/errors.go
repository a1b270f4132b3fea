package triage

import (
	"errors"
	"fmt"
)

// ErrInvalidInput matches any *InvalidInputError via errors.Is.
var ErrInvalidInput = errors.New("invalid input")

// InvalidInputError reports a malformed item or configuration value. It
// aborts the whole pass.
type InvalidInputError struct {
	Field  string
	Index  int // item index, -1 when not applicable
	Reason string
}

func (e *InvalidInputError) Error() string {
	if e.Index >= 0 {
		return fmt.Sprintf("invalid input: %s[%d]: %s", e.Field, e.Index, e.Reason)
	}
	return fmt.Sprintf("invalid input: %s: %s", e.Field, e.Reason)
}

// Is lets errors.Is(err, ErrInvalidInput) succeed.
func (e *InvalidInputError) Is(target error) bool {
	return target == ErrInvalidInput
}

func invalidField(field, format string, args ...any) *InvalidInputError {
	return &InvalidInputError{Field: field, Index: -1, Reason: fmt.Sprintf(format, args...)}
}
