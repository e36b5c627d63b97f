package models

import "time"

type SyncStatus string

const (
	SyncSuccess SyncStatus = "success"
	SyncFailed  SyncStatus = "failed"
	SyncPartial SyncStatus = "partial"
)

type SyncErrorDetails struct {
	Type       string `json:"type"`
	StatusCode int    `json:"statusCode,omitempty"`
	Stack      string `json:"stack,omitempty"`
}

// JiraSyncLog is an audit record of one sync attempt. It is finalized once.
type JiraSyncLog struct {
	ID                string            `json:"id"`
	ProjectID         string            `json:"projectId"`
	SyncType          string            `json:"syncType"`
	Status            *SyncStatus       `json:"status,omitempty"`
	Error             *string           `json:"error,omitempty"`
	ErrorDetails      *SyncErrorDetails `json:"errorDetails,omitempty"`
	CanRetry          bool              `json:"canRetry"`
	MilestonesCreated int               `json:"milestonesCreated"`
	MilestonesUpdated int               `json:"milestonesUpdated"`
	StartedAt         time.Time         `json:"startedAt"`
	CompletedAt       *time.Time        `json:"completedAt,omitempty"`
}
