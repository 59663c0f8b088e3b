package fetch

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"syscall"
)

type Kind int

const (
	KIND_TIMEOUT Kind = iota
	KIND_CONNECTION
	KIND_HTTP
	KIND_OTHER
)

func (k Kind) String() string {
	switch k {
	case KIND_TIMEOUT:
		return "timeout"
	case KIND_CONNECTION:
		return "connection error"
	case KIND_HTTP:
		return "http error"
	default:
		return "other"
	}
}

// Error is the only error Fetcher.Get returns.
type Error struct {
	Kind Kind
	Url  string
	// StatusCode is set when Kind is KIND_HTTP.
	StatusCode int
	Cause      error
}

func (e *Error) Error() string {
	if e.Kind == KIND_HTTP {
		return fmt.Sprintf("fetch %s: %s: status %d", e.Url, e.Kind, e.StatusCode)
	}
	if e.Cause == nil {
		return fmt.Sprintf("fetch %s: %s", e.Url, e.Kind)
	}
	return fmt.Sprintf("fetch %s: %s: %v", e.Url, e.Kind, e.Cause)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// AsError extracts a *Error from err.
func AsError(err error) (*Error, bool) {
	var ferr *Error
	if errors.As(err, &ferr) {
		return ferr, true
	}
	return nil, false
}

func classify(target string, err error) *Error {
	kind := KIND_OTHER

	var netErr net.Error
	var opErr *net.OpError
	var dnsErr *net.DNSError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		kind = KIND_TIMEOUT
	case errors.As(err, &netErr) && netErr.Timeout():
		kind = KIND_TIMEOUT
	case errors.Is(err, context.Canceled):
		kind = KIND_OTHER
	case errors.As(err, &dnsErr),
		errors.As(err, &opErr),
		errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ECONNRESET):
		kind = KIND_CONNECTION
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != nil {
		err = urlErr.Err
	}
	return &Error{Kind: kind, Url: target, Cause: err}
}
