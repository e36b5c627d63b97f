package errors

import (
	"time"
)

// Logger is the subset of logger.Logger the handler needs.
type Logger interface {
	Error(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
}

// ErrorHandler normalizes job errors and decides whether a job goes back to pending.
type ErrorHandler struct {
	logger Logger
}

func NewErrorHandler(logger Logger) *ErrorHandler {
	return &ErrorHandler{logger: logger}
}

// JobFailure describes one failed attempt of a background job.
type JobFailure struct {
	JobID       string
	JobType     string
	Attempts    int
	MaxAttempts int
}

// HandleJobError normalizes err, logs it and reports whether the job should be retried.
// Retry is decided by the attempt budget only; the job queue applies no backoff of its own.
func (h *ErrorHandler) HandleJobError(f JobFailure, err error) (*StandardError, bool) {
	stdErr := h.normalizeError(f.JobType, err)
	retry := f.Attempts < f.MaxAttempts

	fields := map[string]interface{}{
		"jobId":         f.JobID,
		"jobType":       f.JobType,
		"attempts":      f.Attempts,
		"maxAttempts":   f.MaxAttempts,
		"errorCode":     string(stdErr.Code),
		"message":       stdErr.Message,
		"details":       stdErr.Details,
		"errorCategory": GetErrorCategory(stdErr.Code),
	}
	if retry {
		h.logger.Warn("job attempt failed, returning to pending", fields)
	} else {
		h.logger.Error("job failed", fields)
	}

	return stdErr, retry
}

func (h *ErrorHandler) normalizeError(jobType string, err error) *StandardError {
	if stdErr, ok := AsStandardError(err); ok {
		return stdErr
	}
	if err == nil {
		return &StandardError{
			Code:      ErrCodeInternal,
			Message:   "Unexpected error",
			Timestamp: time.Now().UTC(),
		}
	}
	return NewJobFailedError(jobType, err)
}
