package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode standardizes workflow failure semantics across entity kinds.
type ErrorCode string

const (
	CodeValidation         ErrorCode = "validation"
	CodeNotFound           ErrorCode = "not_found"
	CodeConflict           ErrorCode = "conflict"
	CodeInvariantViolation ErrorCode = "invariant_violation"
	// CodeAlreadyApplied marks an idempotency short-circuit. It is normal
	// control flow, never surfaced to callers as a failure.
	CodeAlreadyApplied ErrorCode = "already_applied"
	CodeUnavailable    ErrorCode = "unavailable"
	CodePartialCascade ErrorCode = "partial_cascade"
	CodeInternal       ErrorCode = "internal"
)

// Error is the canonical workflow error wrapper.
type Error struct {
	Code    ErrorCode
	Op      string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	op := strings.TrimSpace(e.Op)
	msg := strings.TrimSpace(e.Message)
	switch {
	case op != "" && msg != "":
		return fmt.Sprintf("%s: %s (%s)", op, msg, e.Code)
	case op != "":
		return fmt.Sprintf("%s (%s)", op, e.Code)
	case msg != "":
		return fmt.Sprintf("%s (%s)", msg, e.Code)
	default:
		return string(e.Code)
	}
}

func (e *Error) Unwrap() error { return e.Cause }

// NewError builds a workflow error with explicit code + operation.
func NewError(code ErrorCode, op, message string, cause error) error {
	return &Error{
		Code:    code,
		Op:      strings.TrimSpace(op),
		Message: strings.TrimSpace(message),
		Cause:   cause,
	}
}

// Wrap annotates an existing error with workflow error semantics.
func Wrap(code ErrorCode, op string, err error) error {
	if err == nil {
		return nil
	}
	return NewError(code, op, err.Error(), err)
}

// IsCode checks whether err (or a wrapped err) carries the given code.
func IsCode(err error, code ErrorCode) bool {
	var wErr *Error
	if !errors.As(err, &wErr) {
		return false
	}
	return wErr.Code == code
}

// CodeOf extracts the workflow error code when available.
func CodeOf(err error) ErrorCode {
	var wErr *Error
	if !errors.As(err, &wErr) {
		return ""
	}
	return wErr.Code
}
