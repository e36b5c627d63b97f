// internal/store/jobs.go
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"talentmatch/internal/models"

	"github.com/lib/pq"
)

const jobColumns = `id, job_type, status, payload, result, error, progress, attempts, max_attempts,
	user_email, created_at, started_at, completed_at`

func scanJob(row scanner) (*models.BackgroundJob, error) {
	var (
		j                      models.BackgroundJob
		jobType, status        string
		payload, result        []byte
		errMsg, userEmail      sql.NullString
		startedAt, completedAt sql.NullTime
	)
	err := row.Scan(&j.ID, &jobType, &status, &payload, &result, &errMsg, &j.Progress, &j.Attempts,
		&j.MaxAttempts, &userEmail, &j.CreatedAt, &startedAt, &completedAt)
	if err != nil {
		return nil, err
	}

	j.JobType = models.JobType(jobType)
	j.Status = models.JobStatus(status)
	j.Payload = json.RawMessage(payload)
	if len(result) > 0 {
		j.Result = json.RawMessage(result)
	}
	j.Error = stringPtr(errMsg)
	j.UserEmail = stringPtr(userEmail)
	j.StartedAt = timePtr(startedAt)
	j.CompletedAt = timePtr(completedAt)
	return &j, nil
}

func (s *Store) CreateJob(ctx context.Context, j *models.BackgroundJob) error {
	if j.ID == "" {
		j.ID = s.newID()
	}
	if j.MaxAttempts <= 0 {
		j.MaxAttempts = models.DefaultMaxAttempts
	}
	j.Status = models.JobPending

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO background_jobs (id, job_type, status, payload, max_attempts, user_email)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`,
		j.ID, string(j.JobType), string(j.Status), []byte(j.Payload), j.MaxAttempts, nullString(j.UserEmail),
	).Scan(&j.CreatedAt)
	if err != nil {
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

func (s *Store) GetJob(ctx context.Context, id string) (*models.BackgroundJob, error) {
	j, err := scanJob(s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM background_jobs WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, "job", id)
	}
	return j, nil
}

// ClaimPendingJobs moves up to limit pending jobs of the given types to
// processing, oldest first. Jobs of any other type stay pending.
// SKIP LOCKED lets several workers poll the same table without double claims.
func (s *Store) ClaimPendingJobs(ctx context.Context, limit int, jobTypes []models.JobType) ([]models.BackgroundJob, error) {
	if limit <= 0 || len(jobTypes) == 0 {
		return nil, nil
	}
	types := make([]string, len(jobTypes))
	for i, t := range jobTypes {
		types[i] = string(t)
	}

	rows, err := s.db.QueryContext(ctx, `
		UPDATE background_jobs SET
			status = 'processing',
			started_at = now(),
			attempts = attempts + 1
		WHERE id IN (
			SELECT id FROM background_jobs
			WHERE status = 'pending' AND job_type = ANY($2)
			ORDER BY created_at
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+jobColumns, limit, pq.Array(types))
	if err != nil {
		return nil, fmt.Errorf("claim pending jobs: %w", err)
	}
	defer rows.Close()

	var out []models.BackgroundJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		out = append(out, *j)
	}
	return out, rows.Err()
}

func (s *Store) UpdateJobProgress(ctx context.Context, id string, progress int) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE background_jobs SET progress = $2 WHERE id = $1 AND status = 'processing'`, id, progress)
	if err != nil {
		return fmt.Errorf("update job progress: %w", err)
	}
	return nil
}

func (s *Store) CompleteJob(ctx context.Context, id string, result json.RawMessage) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE background_jobs
		SET status = 'completed', result = $2, error = NULL, progress = 100, completed_at = now()
		WHERE id = $1`, id, []byte(result))
	if err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	return expectOne(res, "job", id)
}

// RequeueJob returns a failed attempt to pending. The next poll picks it up.
func (s *Store) RequeueJob(ctx context.Context, id, errMsg string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE background_jobs
		SET status = 'pending', error = $2, progress = 0, started_at = NULL
		WHERE id = $1`, id, errMsg)
	if err != nil {
		return fmt.Errorf("requeue job: %w", err)
	}
	return expectOne(res, "job", id)
}

func (s *Store) FailJob(ctx context.Context, id, errMsg string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE background_jobs
		SET status = 'failed', error = $2, completed_at = now()
		WHERE id = $1`, id, errMsg)
	if err != nil {
		return fmt.Errorf("fail job: %w", err)
	}
	return expectOne(res, "job", id)
}
