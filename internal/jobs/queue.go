// internal/jobs/queue.go
package jobs

import (
	"context"
	"encoding/json"
	"fmt"

	"talentmatch/internal/common/errors"
	"talentmatch/internal/common/logger"
	"talentmatch/internal/common/validation"
	"talentmatch/internal/models"
)

// QueueStore is the persistence the queue needs.
type QueueStore interface {
	CreateJob(ctx context.Context, j *models.BackgroundJob) error
	GetJob(ctx context.Context, id string) (*models.BackgroundJob, error)
}

type Queue struct {
	store       QueueStore
	maxAttempts int
	logger      logger.Logger
}

func NewQueue(store QueueStore, maxAttempts int, log logger.Logger) *Queue {
	if maxAttempts <= 0 {
		maxAttempts = models.DefaultMaxAttempts
	}
	return &Queue{
		store:       store,
		maxAttempts: maxAttempts,
		logger:      log.WithFields(map[string]interface{}{"component": "job_queue"}),
	}
}

// Enqueue validates payload against the job type's schema and stores a
// pending job. payload may be a struct, a map or raw JSON bytes.
func (q *Queue) Enqueue(ctx context.Context, jobType models.JobType, payload interface{}, userEmail string) (string, error) {
	raw, err := encodePayload(payload)
	if err != nil {
		return "", errors.NewJobPayloadError(string(jobType), err.Error())
	}

	if !validation.Has(string(jobType)) {
		return "", errors.NewJobPayloadError(string(jobType), "unknown job type")
	}
	result, err := validation.ValidateJSON(string(jobType), raw)
	if err != nil {
		return "", fmt.Errorf("validate %s payload: %w", jobType, err)
	}
	if !result.Valid {
		return "", errors.NewJobPayloadError(string(jobType), result.Error())
	}

	job := &models.BackgroundJob{
		JobType:     jobType,
		Payload:     raw,
		MaxAttempts: q.maxAttempts,
	}
	if userEmail != "" {
		job.UserEmail = &userEmail
	}
	if err := q.store.CreateJob(ctx, job); err != nil {
		return "", err
	}

	q.logger.Info("job enqueued", map[string]interface{}{"jobId": job.ID, "jobType": string(jobType)})
	return job.ID, nil
}

func (q *Queue) Get(ctx context.Context, id string) (*models.BackgroundJob, error) {
	return q.store.GetJob(ctx, id)
}

func encodePayload(payload interface{}) (json.RawMessage, error) {
	switch p := payload.(type) {
	case json.RawMessage:
		return p, nil
	case []byte:
		return json.RawMessage(p), nil
	default:
		return json.Marshal(payload)
	}
}
