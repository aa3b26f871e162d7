package filescan

import (
	"errors"
	"fmt"
)

// Common pipeline errors
var (
	ErrInspectorFailure  = errors.New("inspector failed")
	ErrInspectorTimeout  = errors.New("inspector timed out")
	ErrBudgetExceeded    = errors.New("extraction budget exceeded")
	ErrDeadlineExceeded  = errors.New("submission deadline exceeded")
	ErrStoreUnavailable  = errors.New("coordination store unavailable")
	ErrQueueEmpty        = errors.New("queue empty")
	ErrNotSupported      = errors.New("operation not supported")
	ErrUnknownInspector  = errors.New("unknown inspector")
	ErrPayloadNotFound   = errors.New("payload not found")
	ErrPayloadCorrupt    = errors.New("payload checksum mismatch")
	ErrInvalidSubmission = errors.New("invalid submission")
)

// NodeError records an error and the operation and node that caused it
type NodeError struct {
	Op   string
	Node NodeID
	Err  error
}

// Error implements the error interface
func (e *NodeError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Node, e.Err)
}

// Unwrap returns the underlying error
func (e *NodeError) Unwrap() error {
	return e.Err
}

// StoreError records a failed coordination or payload store round-trip
type StoreError struct {
	Op       string
	Key      string
	Attempts int
	Err      error
}

// Error implements the error interface
func (e *StoreError) Error() string {
	if e.Attempts > 1 {
		return fmt.Sprintf("store %s %s (after %d attempts): %v", e.Op, e.Key, e.Attempts, e.Err)
	}
	return fmt.Sprintf("store %s %s: %v", e.Op, e.Key, e.Err)
}

// Unwrap returns the underlying error
func (e *StoreError) Unwrap() error {
	return e.Err
}

// Unavailable wraps err so that it classifies as ErrStoreUnavailable.
// Drivers use it for transport faults that are worth retrying.
func Unavailable(op, key string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Op: op, Key: key, Err: fmt.Errorf("%w: %w", ErrStoreUnavailable, err)}
}

// IsStoreUnavailable reports whether an error means the coordination store
// could not be reached
func IsStoreUnavailable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable)
}

// IsDeadlineExceeded reports whether an error means the submission-wide
// deadline elapsed
func IsDeadlineExceeded(err error) bool {
	return errors.Is(err, ErrDeadlineExceeded)
}

// IsBudgetExceeded reports whether an error means an extraction was rejected
// by the submission budget
func IsBudgetExceeded(err error) bool {
	return errors.Is(err, ErrBudgetExceeded)
}
