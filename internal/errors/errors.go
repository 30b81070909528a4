package errors

import (
	"errors"
	"fmt"
	"time"
)

var (
	Is     = errors.Is
	As     = errors.As
	New    = errors.New
	Unwrap = errors.Unwrap
)

type ErrorCategory string

const (
	CategoryIO       ErrorCategory = "IO"       // File system issues
	CategoryResource ErrorCategory = "RESOURCE" // Buffer pool exhaustion, etc.
	CategoryContract ErrorCategory = "CONTRACT" // Caller misuse of a component
)

// DiskError represents an error that occurred in the disk staging subsystem.
// It carries enough context (path, slot, underlying OS error) for the caller
// to decide between retry and abort; the subsystem never retries internally.
type DiskError struct {
	Err       error         // Original error
	Category  ErrorCategory // General category
	Retryable bool          // Whether retry is recommended
	Timestamp time.Time     // When the error occurred
	Path      string        // File the operation was touching, if any
	Slot      int           // Part-file slot involved, -1 when not applicable
	Details   map[string]interface{}
}

// Error implements the error interface.
func (e *DiskError) Error() string {
	if e.Slot >= 0 {
		return fmt.Sprintf("[%s] %s (slot %d): %v", e.Category, e.Path, e.Slot, e.Err)
	}

	if e.Path != "" {
		return fmt.Sprintf("[%s] %s: %v", e.Category, e.Path, e.Err)
	}

	return fmt.Sprintf("[%s] %v", e.Category, e.Err)
}

// Unwrap provides the underlying cause for error unwrapping (compatible with errors.As)
func (e *DiskError) Unwrap() error {
	return e.Err
}

// Common sentinel errors
var (
	ErrBufferExhausted = New("buffer pool exhausted")
)

// NewIOError creates an I/O related error for a file operation.
func NewIOError(err error, path string) *DiskError {
	return &DiskError{
		Err:       err,
		Category:  CategoryIO,
		Retryable: false, // I/O errors are generally not retryable
		Timestamp: time.Now(),
		Path:      path,
		Slot:      -1,
	}
}

// NewSlotError creates an I/O error tied to a specific part-file slot.
func NewSlotError(err error, path string, slot int) *DiskError {
	return &DiskError{
		Err:       err,
		Category:  CategoryIO,
		Retryable: false,
		Timestamp: time.Now(),
		Path:      path,
		Slot:      slot,
	}
}

// NewContractError marks caller misuse of a component's API, e.g. a write
// that does not fit the slot it targets. Never retryable.
func NewContractError(err error, path string) *DiskError {
	return &DiskError{
		Err:       err,
		Category:  CategoryContract,
		Retryable: false,
		Timestamp: time.Now(),
		Path:      path,
		Slot:      -1,
	}
}

// NewResourceError creates a resource-exhaustion error. These are retryable by
// the producer's own flow control, never inside this subsystem.
func NewResourceError(err error) *DiskError {
	return &DiskError{
		Err:       err,
		Category:  CategoryResource,
		Retryable: true,
		Timestamp: time.Now(),
		Slot:      -1,
	}
}

// IsRetryable determines if an error should be retried by the caller.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var diskErr *DiskError
	if As(err, &diskErr) {
		return diskErr.Retryable
	}

	return false
}

// IsIOError determines if the error is I/O related.
func IsIOError(err error) bool {
	var diskErr *DiskError
	return As(err, &diskErr) && diskErr.Category == CategoryIO
}

// IsResourceError determines if the error is resource-exhaustion related.
func IsResourceError(err error) bool {
	var diskErr *DiskError
	return As(err, &diskErr) && diskErr.Category == CategoryResource
}

// WithDetails adds additional context to a DiskError.
func WithDetails(err error, details map[string]interface{}) error {
	var diskErr *DiskError
	if !As(err, &diskErr) {
		return err
	}

	if diskErr.Details == nil {
		diskErr.Details = make(map[string]interface{})
	}

	for k, v := range details {
		diskErr.Details[k] = v
	}

	return diskErr
}
