package service

import (
	"errors"
	"fmt"
)

// Code identifies an error class with a stable, client-facing name.
type Code string

const (
	CodeBadRequest        Code = "bad_request"
	CodeNotFound          Code = "not_found"
	CodeInvalidState      Code = "invalid_state"
	CodeInvalidTransition Code = "invalid_transition"
	CodeConflict          Code = "conflict"
	CodeAlreadyVoted      Code = "already_voted"
	CodeUnauthorized      Code = "unauthorized"
	CodeForbidden         Code = "forbidden"
	CodeInvalidChallenge  Code = "invalid_challenge"
	CodeSignatureMismatch Code = "signature_mismatch"
	CodeLedgerSubmission  Code = "ledger_submission_failed"
	CodeLedgerTimeout     Code = "ledger_timeout"
	CodeInternal          Code = "internal"
)

// Error carries a taxonomy code, a human-readable message, and optionally
// the ledger transaction hash when a failure happened after a successful
// ledger submission, so the client can verify independently.
type Error struct {
	Code    Code
	Message string
	TxHash  string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// E builds a new taxonomy error.
func E(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a cause to a taxonomy error.
func Wrap(code Code, cause error, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), cause: cause}
}

// CodeOf extracts the taxonomy code from any error, defaulting to internal.
func CodeOf(err error) Code {
	var se *Error
	if errors.As(err, &se) {
		return se.Code
	}
	return CodeInternal
}

// TxHashOf returns the transaction hash attached to an error, if any.
func TxHashOf(err error) string {
	var se *Error
	if errors.As(err, &se) {
		return se.TxHash
	}
	return ""
}
