package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"syscall"

	crdb "github.com/cockroachdb/errors"
)

// SyncErrorType is the category persisted on a JiraSyncLog.
type SyncErrorType string

const (
	SyncErrorNetwork   SyncErrorType = "network"
	SyncErrorRateLimit SyncErrorType = "rate_limit"
	SyncErrorAuth      SyncErrorType = "auth"
	SyncErrorNotFound  SyncErrorType = "not_found"
	SyncErrorServer    SyncErrorType = "server"
	SyncErrorClient    SyncErrorType = "client"
	SyncErrorUnknown   SyncErrorType = "unknown"
)

// HTTPStatusError is implemented by transport errors that carry a response status.
type HTTPStatusError interface {
	error
	HTTPStatus() int
}

// SyncErrorInfo is the structured form of a failed sync attempt.
type SyncErrorInfo struct {
	Type       SyncErrorType `json:"type"`
	StatusCode int           `json:"statusCode,omitempty"`
	Message    string        `json:"message"`
	Retryable  bool          `json:"-"`
	Stack      string        `json:"stack,omitempty"`
}

var networkMarkers = []string{
	"connection refused",
	"connection reset",
	"no such host",
	"network is unreachable",
	"i/o timeout",
	"econnrefused",
	"enotfound",
	"etimedout",
	"econnreset",
}

// CategorizeSyncError maps an issue-tracker failure onto the retry taxonomy.
// Network, rate-limit, 5xx and unknown failures are retryable; auth, not-found and
// other 4xx failures are not.
func CategorizeSyncError(err error) SyncErrorInfo {
	if err == nil {
		return SyncErrorInfo{Type: SyncErrorUnknown, Retryable: true}
	}

	info := SyncErrorInfo{
		Message: err.Error(),
		Stack:   stackOf(err),
	}

	var statusErr HTTPStatusError
	if stderrors.As(err, &statusErr) {
		info.StatusCode = statusErr.HTTPStatus()
	}

	switch {
	case info.StatusCode == http.StatusTooManyRequests:
		info.Type = SyncErrorRateLimit
	case info.StatusCode == http.StatusUnauthorized || info.StatusCode == http.StatusForbidden:
		info.Type = SyncErrorAuth
	case info.StatusCode == http.StatusNotFound:
		info.Type = SyncErrorNotFound
	case info.StatusCode >= 500:
		info.Type = SyncErrorServer
	case info.StatusCode >= 400:
		info.Type = SyncErrorClient
	case isNetworkError(err):
		info.Type = SyncErrorNetwork
	default:
		info.Type = SyncErrorUnknown
	}

	switch info.Type {
	case SyncErrorNetwork, SyncErrorRateLimit, SyncErrorServer, SyncErrorUnknown:
		info.Retryable = true
	}

	return info
}

// Code maps the category onto an ErrorCode.
func (i SyncErrorInfo) Code() ErrorCode {
	switch i.Type {
	case SyncErrorNetwork:
		return ErrCodeSyncNetwork
	case SyncErrorRateLimit:
		return ErrCodeSyncRateLimit
	case SyncErrorAuth:
		return ErrCodeSyncAuth
	case SyncErrorNotFound:
		return ErrCodeSyncNotFound
	case SyncErrorServer:
		return ErrCodeSyncServer
	case SyncErrorClient:
		return ErrCodeSyncClient
	default:
		return ErrCodeSyncUnknown
	}
}

// NewSyncError converts categorized sync failure info into a StandardError.
func NewSyncError(info SyncErrorInfo, cause error) *StandardError {
	e := newError(info.Code(), "Issue tracker sync failed", info.Message, info.Retryable, cause)
	e.WithMetadata("type", string(info.Type))
	if info.StatusCode != 0 {
		e.WithMetadata("statusCode", info.StatusCode)
	}
	return e
}

func isNetworkError(err error) bool {
	if stderrors.Is(err, context.DeadlineExceeded) ||
		stderrors.Is(err, syscall.ECONNREFUSED) ||
		stderrors.Is(err, syscall.ECONNRESET) {
		return true
	}

	var netErr net.Error
	if stderrors.As(err, &netErr) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range networkMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

func stackOf(err error) string {
	trace := crdb.GetReportableStackTrace(err)
	if trace == nil {
		trace = crdb.GetReportableStackTrace(crdb.WithStackDepth(err, 2))
	}
	if trace == nil {
		return ""
	}

	var b strings.Builder
	// sentry frames are ordered oldest call first
	for i := len(trace.Frames) - 1; i >= 0; i-- {
		f := trace.Frames[i]
		fmt.Fprintf(&b, "%s\n\t%s:%d\n", f.Function, f.AbsPath, f.Lineno)
	}
	return strings.TrimRight(b.String(), "\n")
}
