package models

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by candidate stores when a referenced record does not exist.
var ErrNotFound = errors.New("not found")

// ValidationError reports malformed geometry or an out-of-bounds parameter.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Reason
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
}

// IsValidation reports whether err wraps a *ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
