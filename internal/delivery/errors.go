package delivery

import (
	"errors"
	"fmt"
	"time"
)

type Kind int

const (
	KIND_RATE_LIMITED Kind = iota
	KIND_UNREACHABLE
	KIND_MALFORMED
	KIND_OTHER
)

func (k Kind) String() string {
	switch k {
	case KIND_RATE_LIMITED:
		return "rate limited"
	case KIND_UNREACHABLE:
		return "recipient unreachable"
	case KIND_MALFORMED:
		return "malformed content"
	default:
		return "other"
	}
}

// Error is a failure reported by a Transport.
type Error struct {
	Kind Kind
	// RetryAfter is how long the transport asked us to wait, set when Kind is KIND_RATE_LIMITED.
	RetryAfter  time.Duration
	Description string
}

func (e *Error) Error() string {
	if e.Kind == KIND_RATE_LIMITED {
		return fmt.Sprintf("%s (retry after %s): %s", e.Kind, e.RetryAfter, e.Description)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Description)
}

// AsError extracts a *Error from err.
func AsError(err error) (*Error, bool) {
	var derr *Error
	if errors.As(err, &derr) {
		return derr, true
	}
	return nil, false
}
