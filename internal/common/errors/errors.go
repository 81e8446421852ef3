// Package errors provides the structured error type shared by detectors,
// channels, stores and the orchestrator.
package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	ErrCodeUpstreamFetchFailed   ErrorCode = "UPSTREAM_FETCH_FAILED"
	ErrCodeInvalidFeedPayload    ErrorCode = "INVALID_FEED_PAYLOAD"
	ErrCodeChannelDeliveryFailed ErrorCode = "CHANNEL_DELIVERY_FAILED"
	ErrCodeChannelNotConfigured  ErrorCode = "CHANNEL_NOT_CONFIGURED"
	ErrCodeStateStoreFailed      ErrorCode = "STATE_STORE_FAILED"
	ErrCodeAuditStoreFailed      ErrorCode = "AUDIT_STORE_FAILED"
	ErrCodeRunInProgress         ErrorCode = "RUN_IN_PROGRESS"
	ErrCodeConfigurationInvalid  ErrorCode = "CONFIGURATION_INVALID"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`

	cause error
}

func (e *StandardError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("StandardError[%s]: %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

func (e *StandardError) Unwrap() error {
	return e.cause
}

// IsCode reports whether any error in err's chain is a StandardError with code.
func IsCode(err error, code ErrorCode) bool {
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr.Code == code
	}
	return false
}

// CodeOf returns the code of the first StandardError in err's chain, or "".
func CodeOf(err error) ErrorCode {
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr.Code
	}
	return ""
}

func details(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// NewUpstreamFetchFailedError wraps a network or HTTP status failure from a feed.
func NewUpstreamFetchFailedError(feed string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeUpstreamFetchFailed,
		Message:   fmt.Sprintf("Upstream feed '%s' fetch failed", feed),
		Details:   details(err),
		Retryable: true,
		Metadata:  map[string]interface{}{"feed": feed},
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// NewInvalidFeedPayloadError is returned when a feed payload fails schema validation.
func NewInvalidFeedPayloadError(feed, reason string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInvalidFeedPayload,
		Message:   fmt.Sprintf("Upstream feed '%s' returned an invalid payload", feed),
		Details:   reason,
		Retryable: false,
		Metadata:  map[string]interface{}{"feed": feed},
		Timestamp: time.Now().UTC(),
	}
}

func NewChannelDeliveryFailedError(channel string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeChannelDeliveryFailed,
		Message:   fmt.Sprintf("Delivery over '%s' failed", channel),
		Details:   details(err),
		Retryable: true,
		Metadata:  map[string]interface{}{"channel": channel},
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

func NewChannelNotConfiguredError(channel string) *StandardError {
	return &StandardError{
		Code:      ErrCodeChannelNotConfigured,
		Message:   fmt.Sprintf("Channel '%s' is not configured", channel),
		Retryable: false,
		Metadata:  map[string]interface{}{"channel": channel},
		Timestamp: time.Now().UTC(),
	}
}

// NewStateStoreFailedError marks a persistence failure in the state table.
// The orchestrator aborts the run on this code.
func NewStateStoreFailedError(op string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeStateStoreFailed,
		Message:   "State store operation failed",
		Details:   fmt.Sprintf("op: %s, error: %s", op, details(err)),
		Retryable: true,
		Metadata:  map[string]interface{}{"op": op},
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

func NewAuditStoreFailedError(op string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeAuditStoreFailed,
		Message:   "Audit store operation failed",
		Details:   fmt.Sprintf("op: %s, error: %s", op, details(err)),
		Retryable: true,
		Metadata:  map[string]interface{}{"op": op},
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

func NewRunInProgressError() *StandardError {
	return &StandardError{
		Code:      ErrCodeRunInProgress,
		Message:   "Another notification run holds the lock",
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

func NewConfigurationInvalidError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeConfigurationInvalid,
		Message:   "Invalid configuration",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}
