package errors

import (
	"errors"
	"fmt"
)

// Code identifies a category of activation failure. Codes are stable
// strings surfaced in diagnostics and log output so operators can tell
// which precondition failed without parsing wrapped error text.
type Code string

const (
	// Interface resolution
	CodeInterfaceNotFound = Code("INTERFACE_NOT_FOUND")
	CodeNoDefaultRoute    = Code("NO_DEFAULT_ROUTE")

	// Configuration validation
	CodeInvalidSubnet = Code("INVALID_SUBNET")
	CodeInvalidConfig = Code("INVALID_CONFIG")

	// Rule engine
	CodeRuleEngineUnavailable = Code("RULE_ENGINE_UNAVAILABLE")
	CodeRuleApplyFailed       = Code("RULE_APPLY_FAILED")

	// Host preconditions
	CodeForwardingDisabled = Code("FORWARDING_DISABLED")

	// General
	CodeInternal = Code("INTERNAL_ERROR")
)

// CodedError attaches a Code to an underlying error.
type CodedError struct {
	Code Code
	Err  error
}

func (e *CodedError) Error() string {
	return fmt.Sprintf("%s: %v", e.Code, e.Err)
}

func (e *CodedError) Unwrap() error { return e.Err }

// WithCode wraps err with the given code. Returns nil for a nil err.
func WithCode(code Code, err error) error {
	if err == nil {
		return nil
	}
	return &CodedError{Code: code, Err: err}
}

// Errorf builds a coded error from a format string.
func Errorf(code Code, format string, args ...any) error {
	return &CodedError{Code: code, Err: fmt.Errorf(format, args...)}
}

// CodeOf extracts the Code from an error chain. Errors without a code
// report CodeInternal.
func CodeOf(err error) Code {
	var ce *CodedError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return CodeInternal
}

// HasCode reports whether the error chain carries the given code.
func HasCode(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}
