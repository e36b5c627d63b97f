package models

import (
	"encoding/json"
	"time"
)

type JobType string

const (
	JobCVProcessing        JobType = "cv_processing"
	JobFitScoreCalculation JobType = "fit_score_calculation"
	JobSkillMapGeneration  JobType = "skill_map_generation"
)

type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

// DefaultMaxAttempts applies when a job is enqueued without an explicit budget.
const DefaultMaxAttempts = 3

type BackgroundJob struct {
	ID          string          `json:"id"`
	JobType     JobType         `json:"jobType"`
	Status      JobStatus       `json:"status"`
	Payload     json.RawMessage `json:"payload"`
	Result      json.RawMessage `json:"result,omitempty"`
	Error       *string         `json:"error,omitempty"`
	Progress    int             `json:"progress"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"maxAttempts"`
	UserEmail   *string         `json:"userEmail,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	StartedAt   *time.Time      `json:"startedAt,omitempty"`
	CompletedAt *time.Time      `json:"completedAt,omitempty"`
}
