package proxy

import (
	"errors"
	"fmt"
)

// Sentinel errors for proxy operations.
var (
	// ErrUnknownTransport indicates the requested transport is not registered.
	ErrUnknownTransport = errors.New("unknown transport")

	// ErrInvalidConfig indicates a proxy could not be built from its Config.
	ErrInvalidConfig = errors.New("invalid proxy config")

	// ErrNotConnected indicates the connection to a remote client is gone.
	ErrNotConnected = errors.New("client not connected")

	// ErrTimeout indicates a call to a remote client timed out.
	ErrTimeout = errors.New("request timed out")

	// ErrEmptyResult indicates a client returned neither a result nor an error.
	ErrEmptyResult = errors.New("empty client result")
)

// Error wraps transport failures with the client and operation involved.
//
// Only networked proxies produce Error. The in-memory proxy returns the
// client's own errors untouched.
type Error struct {
	CID       string // Client identifier
	Op        string // Operation that failed ("fit", "evaluate", ...)
	Err       error  // Underlying error
	Retryable bool   // Whether the error is likely transient
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.CID != "" {
		return fmt.Sprintf("client %s %s: %v", e.CID, e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a new proxy error.
func NewError(cid, op string, err error, retryable bool) *Error {
	return &Error{
		CID:       cid,
		Op:        op,
		Err:       err,
		Retryable: retryable,
	}
}

// IsRetryable checks if an error is likely transient and worth retrying.
func IsRetryable(err error) bool {
	var pErr *Error
	if errors.As(err, &pErr) {
		return pErr.Retryable
	}
	return errors.Is(err, ErrTimeout) || errors.Is(err, ErrNotConnected)
}
