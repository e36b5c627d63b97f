// Package errors provides the structured error taxonomy shared by jobs,
// assignment transitions, the AI judge and the issue-tracker sync.
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	ErrCodeAIUnavailable     ErrorCode = "AI_UNAVAILABLE"
	ErrCodeAIRateLimited     ErrorCode = "AI_RATE_LIMITED"
	ErrCodeAIMalformedOutput ErrorCode = "AI_MALFORMED_OUTPUT"
	ErrCodeAITimeout         ErrorCode = "AI_TIMEOUT"

	ErrCodeDoubleBooking        ErrorCode = "DOUBLE_BOOKING"
	ErrCodeCandidateUnavailable ErrorCode = "CANDIDATE_UNAVAILABLE"
	ErrCodeInvalidTransition    ErrorCode = "INVALID_TRANSITION"

	ErrCodeDatabaseConnectionFailed ErrorCode = "DATABASE_CONNECTION_FAILED"
	ErrCodeQueryExecutionFailed     ErrorCode = "QUERY_EXECUTION_FAILED"
	ErrCodeRecordNotFound           ErrorCode = "RECORD_NOT_FOUND"

	ErrCodeSearchIndexFailed ErrorCode = "SEARCH_INDEX_FAILED"

	ErrCodeJobPayloadInvalid ErrorCode = "JOB_PAYLOAD_INVALID"
	ErrCodeJobHandlerFailed  ErrorCode = "JOB_HANDLER_FAILED"
	ErrCodeJobHandlerMissing ErrorCode = "JOB_HANDLER_MISSING"

	ErrCodeSyncNetwork   ErrorCode = "SYNC_NETWORK"
	ErrCodeSyncRateLimit ErrorCode = "SYNC_RATE_LIMIT"
	ErrCodeSyncAuth      ErrorCode = "SYNC_AUTH"
	ErrCodeSyncNotFound  ErrorCode = "SYNC_NOT_FOUND"
	ErrCodeSyncServer    ErrorCode = "SYNC_SERVER"
	ErrCodeSyncClient    ErrorCode = "SYNC_CLIENT"
	ErrCodeSyncUnknown   ErrorCode = "SYNC_UNKNOWN"

	ErrCodeNotificationSendFailed ErrorCode = "NOTIFICATION_SEND_FAILED"

	ErrCodeConfigInvalid ErrorCode = "CONFIG_INVALID"
	ErrCodeEncryptionKey ErrorCode = "ENCRYPTION_KEY_INVALID"
	ErrCodeInternal      ErrorCode = "INTERNAL_ERROR"
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

// WithMetadata adds a metadata entry and returns the receiver.
func (e *StandardError) WithMetadata(key string, value interface{}) *StandardError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

// ==========================
// 2. Error Constructors
// ==========================

func newError(code ErrorCode, message, details string, retryable bool, cause error) *StandardError {
	return &StandardError{
		Code:      code,
		Message:   message,
		Details:   details,
		Retryable: retryable,
		Timestamp: time.Now().UTC(),
		cause:     cause,
	}
}

// NewAIUnavailableError marks an AI judge failure that the caller recovers from via fallback.
func NewAIUnavailableError(operation string, cause error) *StandardError {
	details := ""
	if cause != nil {
		details = cause.Error()
	}
	return newError(ErrCodeAIUnavailable, "AI judge unavailable", details, true, cause).
		WithMetadata("operation", operation)
}

// NewAIMalformedOutputError is returned when the judge answers with unparsable content.
func NewAIMalformedOutputError(operation, details string) *StandardError {
	return newError(ErrCodeAIMalformedOutput, "AI judge returned malformed output", details, false, nil).
		WithMetadata("operation", operation)
}

// NewDoubleBookingError names the projects the candidate is already committed to.
func NewDoubleBookingError(candidateID string, projects []string) *StandardError {
	return newError(ErrCodeDoubleBooking, "Candidate is already assigned",
		strings.Join(projects, ", "), false, nil).
		WithMetadata("candidateId", candidateID)
}

func NewInvalidTransitionError(track, from, to string) *StandardError {
	return newError(ErrCodeInvalidTransition, "Invalid assignment transition",
		fmt.Sprintf("%s: %s -> %s", track, from, to), false, nil)
}

func NewRecordNotFoundError(entity, id string) *StandardError {
	return newError(ErrCodeRecordNotFound, entity+" not found", id, false, nil)
}

func NewQueryExecutionError(operation string, cause error) *StandardError {
	return newError(ErrCodeQueryExecutionFailed, "Query execution failed", operation, true, cause)
}

func NewJobPayloadError(jobType, details string) *StandardError {
	return newError(ErrCodeJobPayloadInvalid, "Invalid job payload", details, false, nil).
		WithMetadata("jobType", jobType)
}

func NewJobFailedError(jobType string, cause error) *StandardError {
	details := ""
	if cause != nil {
		details = cause.Error()
	}
	return newError(ErrCodeJobHandlerFailed, "Job handler failed", details, true, cause).
		WithMetadata("jobType", jobType)
}

func NewNotificationError(channel string, cause error) *StandardError {
	return newError(ErrCodeNotificationSendFailed, "Notification delivery failed", channel, true, cause)
}

// NewConfigError is used for startup failures that must stop the process.
func NewConfigError(details string) *StandardError {
	return newError(ErrCodeConfigInvalid, "Invalid configuration", details, false, nil)
}

func NewEncryptionKeyError(details string) *StandardError {
	return newError(ErrCodeEncryptionKey, "Encryption key material invalid", details, false, nil)
}

// ==========================
// 3. Utility Functions
// ==========================

// AsStandardError extracts a StandardError from the chain, if any.
func AsStandardError(err error) (*StandardError, bool) {
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr, true
	}
	return nil, false
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code ErrorCode) bool {
	stdErr, ok := AsStandardError(err)
	return ok && stdErr.Code == code
}

// GetRetryCount returns the recommended retry count for a code.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeDatabaseConnectionFailed,
		ErrCodeQueryExecutionFailed,
		ErrCodeJobHandlerFailed,
		ErrCodeNotificationSendFailed,
		ErrCodeSyncServer,
		ErrCodeSyncNetwork,
		ErrCodeSyncUnknown:
		return 3

	case ErrCodeAIRateLimited, ErrCodeSyncRateLimit:
		return 5

	case ErrCodeAIUnavailable, ErrCodeAITimeout:
		return 1

	default:
		return 0
	}
}

// IsRetryableErrorCode checks if an error code is retryable.
func IsRetryableErrorCode(code ErrorCode) bool {
	return GetRetryCount(code) > 0
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.HasPrefix(codeStr, "AI_"):
		return "AI"
	case code == ErrCodeDoubleBooking || code == ErrCodeCandidateUnavailable || code == ErrCodeInvalidTransition:
		return "ASSIGNMENT"
	case strings.Contains(codeStr, "DATABASE") || strings.Contains(codeStr, "QUERY") || strings.Contains(codeStr, "RECORD"):
		return "DATABASE"
	case strings.HasPrefix(codeStr, "SEARCH"):
		return "SEARCH"
	case strings.HasPrefix(codeStr, "JOB_"):
		return "JOB"
	case strings.HasPrefix(codeStr, "SYNC_"):
		return "SYNC"
	case strings.Contains(codeStr, "NOTIFICATION"):
		return "NOTIFICATION"
	case strings.Contains(codeStr, "CONFIG") || strings.Contains(codeStr, "ENCRYPTION"):
		return "CONFIG"
	default:
		return "OTHER"
	}
}
