// Package errors provides standardized error handling for the reconciliation run.
package errors

import (
	"errors"
	"fmt"
	"time"
)

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	ErrCodeCollectorFailed     ErrorCode = "COLLECTOR_FAILED"
	ErrCodeNonActionableRecord ErrorCode = "NON_ACTIONABLE_RECORD"
	ErrCodeDeliveryFailed      ErrorCode = "DELIVERY_FAILED"
	ErrCodeMutationFailed      ErrorCode = "MUTATION_FAILED"
	ErrCodeFatalConfig         ErrorCode = "FATAL_CONFIG"
)

// ErrRecipientUnreachable marks a delivery failure caused by the recipient
// (DMs closed, mailbox rejected) rather than by the transport. Adapters wrap
// it so the dispatcher can log it once and move on.
var ErrRecipientUnreachable = errors.New("recipient unreachable")

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	Details   string    `json:"details,omitempty"`
	Retryable bool      `json:"retryable"`
	Timestamp time.Time `json:"timestamp"`
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// NewCollectorFailedError wraps a failed fact-source read. Retryable: the
// run skips that server's iteration and the next run tries again.
func NewCollectorFailedError(source string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeCollectorFailed,
		Message:   fmt.Sprintf("Fact source '%s' unavailable", source),
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewNonActionableRecordError marks a record that cannot be acted upon
// (missing email or chat id). Never retryable.
func NewNonActionableRecordError(reason string) *StandardError {
	return &StandardError{
		Code:      ErrCodeNonActionableRecord,
		Message:   "Record is not actionable",
		Details:   reason,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewDeliveryFailedError wraps a notification channel failure for one recipient.
func NewDeliveryFailedError(channel string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeDeliveryFailed,
		Message:   fmt.Sprintf("Delivery via '%s' failed", channel),
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewMutationFailedError wraps a failed external mutation with enough
// context to retry manually.
func NewMutationFailedError(operation, server, subject string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeMutationFailed,
		Message:   fmt.Sprintf("Mutation '%s' failed", operation),
		Details:   fmt.Sprintf("server: %s, subject: %s, error: %s", server, subject, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewFatalConfigError marks the only error class that terminates a run early.
func NewFatalConfigError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeFatalConfig,
		Message:   "Fatal configuration error",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// IsFatal reports whether err should terminate the run with a non-zero exit.
func IsFatal(err error) bool {
	var se *StandardError
	if errors.As(err, &se) {
		return se.Code == ErrCodeFatalConfig
	}
	return false
}
