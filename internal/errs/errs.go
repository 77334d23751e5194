// Package errs defines the coded error type surfaced by every public
// operation. Codes are stable strings callers can switch on; messages are for
// humans.
package errs

import (
	"errors"
	"fmt"
)

// Code is a stable error tag.
type Code string

const (
	InvalidInput      Code = "InvalidInput"
	UnknownFeature    Code = "UnknownFeature"
	UnknownVolumeType Code = "UnknownVolumeType"
	VolumeMismatch    Code = "VolumeMismatch"
	MissingAttribute  Code = "MissingAttribute"
	IOError           Code = "IOError"
	NumericDegenerate Code = "NumericDegenerate"
	Cancelled         Code = "Cancelled"
)

// Error carries a Code, a message and an optional cause.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether target is an *Error with the same code. This lets
// errors.Is(err, errs.ErrUnknownFeature) match any UnknownFeature error.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// Sentinels for errors.Is checks.
var (
	ErrInvalidInput      = &Error{Code: InvalidInput, Message: "invalid input"}
	ErrUnknownFeature    = &Error{Code: UnknownFeature, Message: "unknown feature"}
	ErrUnknownVolumeType = &Error{Code: UnknownVolumeType, Message: "unknown volume type"}
	ErrVolumeMismatch    = &Error{Code: VolumeMismatch, Message: "volume mismatch"}
	ErrMissingAttribute  = &Error{Code: MissingAttribute, Message: "missing attribute"}
	ErrIO                = &Error{Code: IOError, Message: "i/o error"}
	ErrNumericDegenerate = &Error{Code: NumericDegenerate, Message: "numeric degenerate"}
	ErrCancelled         = &Error{Code: Cancelled, Message: "cancelled"}
)

// New creates a coded error with a formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to err. When err already carries a code
// and code is empty, the inner code is kept. Wrap returns nil for a nil err.
func Wrap(err error, code Code, format string, args ...any) error {
	if err == nil {
		return nil
	}
	if code == "" {
		code = CodeOf(err)
	}
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Cause: err}
}

// CodeOf returns the code of the first *Error in err's chain, or InvalidInput
// for uncoded errors. A nil err has no code.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return InvalidInput
}

// Has reports whether err carries code anywhere in its chain.
func Has(err error, code Code) bool {
	for err != nil {
		if e, ok := err.(*Error); ok && e.Code == code {
			return true
		}
		err = errors.Unwrap(err)
	}
	return false
}
