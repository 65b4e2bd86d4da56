package rpc

import (
	"context"
	"errors"
	"fmt"
)

// Code classifies the outcome of a call. Values match the gRPC status codes
// so logs read the same way.
type Code uint32

const (
	OK                 Code = 0
	Canceled           Code = 1
	Unknown            Code = 2
	InvalidArgument    Code = 3
	DeadlineExceeded   Code = 4
	NotFound           Code = 5
	FailedPrecondition Code = 9
	Unimplemented      Code = 12
	Internal           Code = 13
	Unavailable        Code = 14
)

func (c Code) String() string {
	switch c {
	case OK:
		return "OK"
	case Canceled:
		return "Canceled"
	case Unknown:
		return "Unknown"
	case InvalidArgument:
		return "InvalidArgument"
	case DeadlineExceeded:
		return "DeadlineExceeded"
	case NotFound:
		return "NotFound"
	case FailedPrecondition:
		return "FailedPrecondition"
	case Unimplemented:
		return "Unimplemented"
	case Internal:
		return "Internal"
	case Unavailable:
		return "Unavailable"
	default:
		return fmt.Sprintf("Code(%d)", uint32(c))
	}
}

// Status is the final outcome of a call. A non-OK Status is also an error.
type Status struct {
	Code    Code   `cbor:"code"`
	Message string `cbor:"message,omitempty"`
}

func (s *Status) Error() string {
	return fmt.Sprintf("rpc error: code = %s desc = %s", s.Code, s.Message)
}

// Errorf returns a *Status error with code and a formatted message.
func Errorf(code Code, format string, args ...any) error {
	return &Status{Code: code, Message: fmt.Sprintf(format, args...)}
}

// FromError extracts the status carried by err. A nil error is OK, context
// errors map to Canceled and DeadlineExceeded, anything else is Unknown.
func FromError(err error) *Status {
	if err == nil {
		return &Status{Code: OK}
	}
	var st *Status
	if errors.As(err, &st) {
		return st
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &Status{Code: DeadlineExceeded, Message: err.Error()}
	}
	if errors.Is(err, context.Canceled) {
		return &Status{Code: Canceled, Message: err.Error()}
	}
	return &Status{Code: Unknown, Message: err.Error()}
}

// CodeOf returns the code of err, or OK for nil.
func CodeOf(err error) Code {
	return FromError(err).Code
}

func fromContextError(err error) *Status {
	if errors.Is(err, context.DeadlineExceeded) {
		return &Status{Code: DeadlineExceeded, Message: "deadline exceeded"}
	}
	return &Status{Code: Canceled, Message: "call canceled"}
}
