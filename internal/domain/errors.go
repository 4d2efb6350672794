package domain

import (
	"errors"
	"fmt"
)

// ErrNotFound is the root of every "target does not exist" condition.
// Callers match with errors.Is.
var ErrNotFound = errors.New("not found")

// Errors returned by queue and pool operations.
var (
	ErrPoolNotFound         = fmt.Errorf("distribution pool %w", ErrNotFound)
	ErrMessageNotFound      = fmt.Errorf("message %w", ErrNotFound)
	ErrInvalidPool          = errors.New("invalid distribution pool")
	ErrInvalidDelay         = errors.New("delay must not be negative")
	ErrInvalidPayload       = errors.New("payload must be valid JSON")
	ErrEmptyMessageID       = errors.New("message id is required")
	ErrRequeueLimitExceeded = errors.New("requeue limit exceeded")
	ErrSegmentMismatch      = errors.New("message belongs to another segment")
)

// ConnectivityError reports a store failure or an aborted atomic operation.
// No partial state change is observable when it is returned.
type ConnectivityError struct {
	Operation string
	Err       error
}

func (e *ConnectivityError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("store error operation=%s", e.Operation)
	}
	return fmt.Sprintf("store error operation=%s: %v", e.Operation, e.Err)
}

func (e *ConnectivityError) Unwrap() error { return e.Err }

// NewConnectivityError wraps err for operation. A nil err yields nil.
func NewConnectivityError(operation string, err error) error {
	if err == nil {
		return nil
	}
	return &ConnectivityError{Operation: operation, Err: err}
}

// IsConnectivity reports whether err is (or wraps) a ConnectivityError.
func IsConnectivity(err error) bool {
	var ce *ConnectivityError
	return errors.As(err, &ce)
}
