package transfer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
)

// ErrorCategory represents where a transfer failure originated
type ErrorCategory int

const (
	// CategoryUnknown is used for errors that carry no category
	CategoryUnknown ErrorCategory = iota
	// CategoryValidation covers bad local input, detected before any network activity
	CategoryValidation
	// CategoryTransport covers connection, stream and deadline failures
	CategoryTransport
	// CategoryRemote covers failures reported by the processing service itself
	CategoryRemote
	// CategoryIO covers local source and destination file failures
	CategoryIO
)

// String returns a string representation of ErrorCategory
func (c ErrorCategory) String() string {
	switch c {
	case CategoryValidation:
		return "validation"
	case CategoryTransport:
		return "transport"
	case CategoryRemote:
		return "remote"
	case CategoryIO:
		return "io"
	default:
		return "unknown"
	}
}

// Error attaches a category and the failing step to an underlying error.
type Error struct {
	Category ErrorCategory
	Op       string
	Err      error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Validationf builds a validation error.
func Validationf(op, format string, args ...any) *Error {
	return &Error{Category: CategoryValidation, Op: op, Err: fmt.Errorf(format, args...)}
}

// CategoryOf finds the category of err. Uncategorised filesystem errors count
// as I/O and context errors as transport failures.
func CategoryOf(err error) ErrorCategory {
	if err == nil {
		return CategoryUnknown
	}
	var te *Error
	if errors.As(err, &te) {
		return te.Category
	}
	var pathErr *fs.PathError
	if errors.As(err, &pathErr) {
		return CategoryIO
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return CategoryTransport
	}
	return CategoryUnknown
}
