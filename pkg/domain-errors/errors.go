// Package pkgerrors carries coded domain errors across service boundaries.
// Services translate store sentinels into these; transport maps codes onto
// HTTP statuses. Codes classify the failure, the message explains it, and
// the optional entity id says what it happened to.
package pkgerrors

import (
	"errors"
	"fmt"
)

// Code classifies a domain failure. Every error surfaced by a service
// carries exactly one code.
type Code string

const (
	CodeValidation             Code = "validation"
	CodeNotFound               Code = "not_found"
	CodeIllegalTransition      Code = "illegal_transition"
	CodeRecordImmutable        Code = "record_immutable"
	CodeAlreadyWithdrawn       Code = "already_withdrawn"
	CodeWithdrawalNotAllowed   Code = "withdrawal_not_allowed"
	CodeConcurrentModification Code = "concurrent_modification"
	CodeKeyNotFound            Code = "key_not_found"
	CodeComplianceEvaluation   Code = "compliance_evaluation"
	CodeConflict               Code = "conflict"
	// CodeUnavailable marks transient infrastructure failures (storage
	// down, commit failed). Callers may retry; all other codes are final.
	CodeUnavailable Code = "unavailable"
	CodeInternal    Code = "internal"
)

// Error is a coded domain error. EntityID is the id of the record, key, or
// withdrawal the failure refers to, when one exists.
type Error struct {
	Code     Code
	Message  string
	EntityID string
	cause    error
}

func (e *Error) Error() string {
	if e.EntityID != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.EntityID)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New builds a coded error with no underlying cause.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf builds a coded error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, cause: err}
}

// WithEntity returns a copy of the error bound to an entity id.
func (e *Error) WithEntity(id string) *Error {
	clone := *e
	clone.EntityID = id
	return &clone
}

// HasCode reports whether err (or anything it wraps) carries the code.
func HasCode(err error, code Code) bool {
	var domainErr *Error
	if errors.As(err, &domainErr) {
		return domainErr.Code == code
	}
	return false
}

// CodeOf extracts the code from err, or CodeInternal when err is not coded.
func CodeOf(err error) Code {
	var domainErr *Error
	if errors.As(err, &domainErr) {
		return domainErr.Code
	}
	return CodeInternal
}
