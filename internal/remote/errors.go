package remote

import (
	"errors"
	"fmt"
)

// Sentinel errors for remote API operations.
var (
	ErrUnauthorized = errors.New("remote: unauthorized")
	ErrNotFound     = errors.New("remote: not found")
	ErrRateLimited  = errors.New("remote: rate limited by server")
	ErrBadRequest   = errors.New("remote: bad request")
	ErrServer       = errors.New("remote: server error")
	ErrDisabled     = errors.New("remote: no base url configured")
)

// Error wraps an underlying error with request context.
type Error struct {
	Op     string // Operation: "createProduct", "patchProduct", ...
	Method string
	Path   string
	Status int // Zero when no response was received
	Err    error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("remote %s %s %s [%d]: %v", e.Op, e.Method, e.Path, e.Status, e.Err)
	}
	return fmt.Sprintf("remote %s %s %s: %v", e.Op, e.Method, e.Path, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}
