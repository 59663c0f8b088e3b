package store

import (
	"errors"
	"fmt"
)

// ErrPageNotFound is returned for operations on a page id that does not exist.
var ErrPageNotFound = errors.New("tracked page not found")

// ValidationError is a rejected input, Reason is meant to be shown to the admin as is.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func invalid(field, reason string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(reason, args...)}
}

// IsValidation reports whether err is a *ValidationError.
func IsValidation(err error) bool {
	var verr *ValidationError
	return errors.As(err, &verr)
}
