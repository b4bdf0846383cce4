// Package errors provides standardized error codes for layoutsync.
//
// Error codes follow the format {domain}.{error} where:
//   - domain: The subsystem that generated the error (storage, network, codec, layout)
//   - error: The specific error type within that domain
//
// The layout failure taxonomy maps onto four codes:
//   - network.transient: REST or socket unavailable, recovered by the next mutation
//   - server.rejected: the backend refused a write (4xx), not retried
//   - codec.decode_failed: a wire payload could not be decoded, dropped whole
//   - layout.bootstrap_failed: the initial snapshot fetch failed entirely
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Error codes by domain.
// These are stable identifiers that HTTP clients can rely on for error handling.
const (
	// Storage domain - database and persistence errors
	CodeStorageNotFound    = "storage.not_found"    // Session or entity not found
	CodeStorageOpenFailed  = "storage.open_failed"  // Database open failed
	CodeStorageQueryFailed = "storage.query_failed" // Database query failed
	CodeStorageSaveFailed  = "storage.save_failed"  // Failed to save data

	// Validation domain - rejected payloads
	CodeValidationFailed = "validation.failed" // Payload failed validation
	CodeConflictDetected = "conflict.detected" // Payload conflicts with stored state

	// Network domain - transport failures seen by the client
	CodeNetworkTransient = "network.transient" // REST or socket unavailable

	// Server domain - backend responses
	CodeServerRejected       = "server.rejected"        // Backend refused a write
	CodeServerInvalidMessage = "server.invalid_message" // Malformed or invalid message
	CodeServerUpgradeFailed  = "server.upgrade_failed"  // WebSocket upgrade failed

	// Codec domain - wire translation
	CodeDecodeFailed = "codec.decode_failed" // Malformed wire payload

	// Layout domain - engine lifecycle
	CodeBootstrapFailed = "layout.bootstrap_failed" // Initial snapshot fetch failed
	CodeUnknownEntity   = "layout.unknown_entity"   // Entity not tracked by the session

	// Auth domain
	CodeAuthRequired = "auth.required" // Authentication required
	CodeAuthInvalid  = "auth.invalid"  // Invalid token

	// General domain - catch-all errors
	CodeUnknown  = "error.unknown"  // Unknown error
	CodeInternal = "error.internal" // Internal server error
)

// CodedError wraps an error with a stable error code.
// This allows errors to carry both a code for programmatic handling
// and a message for human consumption.
type CodedError struct {
	Code    string // Stable error code (e.g., "storage.not_found")
	Message string // Human-readable error message
	Cause   error  // Underlying error (may be nil)
}

// Error implements the error interface.
func (e *CodedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *CodedError) Unwrap() error {
	return e.Cause
}

// New creates a new CodedError with the given code and message.
func New(code, message string) *CodedError {
	return &CodedError{
		Code:    code,
		Message: message,
	}
}

// Wrap creates a new CodedError wrapping an existing error.
func Wrap(code, message string, cause error) *CodedError {
	return &CodedError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// GetCode extracts the error code from an error.
// Falls back to CodeUnknown for errors that carry no code.
func GetCode(err error) string {
	if err == nil {
		return ""
	}

	var coded *CodedError
	if errors.As(err, &coded) {
		return coded.Code
	}

	return CodeUnknown
}

// GetMessage extracts a human-readable message from an error.
func GetMessage(err error) string {
	if err == nil {
		return ""
	}

	var coded *CodedError
	if errors.As(err, &coded) {
		return coded.Message
	}

	return err.Error()
}

// ToCodeAndMessage extracts both code and message from an error.
// This is the primary function for converting errors to HTTP responses.
func ToCodeAndMessage(err error) (code, message string) {
	if err == nil {
		return "", ""
	}

	var coded *CodedError
	if errors.As(err, &coded) {
		return coded.Code, coded.Message
	}

	return CodeUnknown, err.Error()
}

// IsCode checks if an error has a specific error code.
func IsCode(err error, code string) bool {
	return GetCode(err) == code
}

// IsTransient reports whether err is a network.transient failure.
// Transient failures are never retried eagerly; the next mutation re-pushes.
func IsTransient(err error) bool {
	return IsCode(err, CodeNetworkTransient)
}

// Common error constructors for frequently used error types.

// NotFound creates a "storage.not_found" error.
func NotFound(resource string) *CodedError {
	return New(CodeStorageNotFound, fmt.Sprintf("%s not found", resource))
}

// Internal creates an "error.internal" error.
func Internal(message string, cause error) *CodedError {
	return Wrap(CodeInternal, message, cause)
}

// InvalidMessage creates a "server.invalid_message" error.
func InvalidMessage(reason string) *CodedError {
	return New(CodeServerInvalidMessage, reason)
}

// ValidationFailed creates a "validation.failed" error.
// This indicates the payload was rejected and no changes were applied.
func ValidationFailed(message string) *CodedError {
	msg := "validation failed"
	if message != "" {
		msg = fmt.Sprintf("%s: %s", msg, message)
	}
	return New(CodeValidationFailed, msg)
}

// ConflictDetected creates a "conflict.detected" error.
func ConflictDetected(message string) *CodedError {
	msg := "conflict detected"
	if message != "" {
		msg = fmt.Sprintf("%s: %s", msg, message)
	}
	return New(CodeConflictDetected, msg)
}

// TransientNetwork creates a "network.transient" error for the given operation.
func TransientNetwork(operation string, cause error) *CodedError {
	return Wrap(CodeNetworkTransient, fmt.Sprintf("%s: backend unavailable", operation), cause)
}

// ServerRejection creates a "server.rejected" error.
// status is the HTTP status code and detail is the server's explanation, if any.
func ServerRejection(operation string, status int, detail string) *CodedError {
	msg := fmt.Sprintf("%s rejected with status %d", operation, status)
	if detail = strings.TrimSpace(detail); detail != "" {
		msg = fmt.Sprintf("%s: %s", msg, detail)
	}
	return New(CodeServerRejected, msg)
}

// DecodeFailed creates a "codec.decode_failed" error.
func DecodeFailed(what string, cause error) *CodedError {
	return Wrap(CodeDecodeFailed, fmt.Sprintf("malformed %s", what), cause)
}

// BootstrapFailed creates a "layout.bootstrap_failed" error.
// The owning shell shows a "layout unavailable" state and keeps working
// with the local layout.
func BootstrapFailed(sessionID string, cause error) *CodedError {
	return Wrap(CodeBootstrapFailed, fmt.Sprintf("layout unavailable for session %s", sessionID), cause)
}

// UnknownEntity creates a "layout.unknown_entity" error.
func UnknownEntity(kind, id string) *CodedError {
	return New(CodeUnknownEntity, fmt.Sprintf("%s %s is not tracked by this session", kind, id))
}
