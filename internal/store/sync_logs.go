// internal/store/sync_logs.go
package store

import (
	"context"
	"encoding/json"
	"fmt"

	"talentmatch/internal/models"
)

func (s *Store) CreateSyncLog(ctx context.Context, projectID, syncType string) (*models.JiraSyncLog, error) {
	log := &models.JiraSyncLog{ID: s.newID(), ProjectID: projectID, SyncType: syncType}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO jira_sync_logs (id, project_id, sync_type)
		VALUES ($1, $2, $3)
		RETURNING started_at`, log.ID, projectID, syncType,
	).Scan(&log.StartedAt)
	if err != nil {
		return nil, fmt.Errorf("create sync log: %w", err)
	}
	return log, nil
}

// SyncOutcome is everything written when a sync log is closed.
type SyncOutcome struct {
	Status            models.SyncStatus
	Error             *string
	ErrorDetails      *models.SyncErrorDetails
	CanRetry          bool
	MilestonesCreated int
	MilestonesUpdated int
}

// FinalizeSyncLog closes a log exactly once. A second call returns
// ErrAlreadyFinished and leaves the stored outcome untouched.
func (s *Store) FinalizeSyncLog(ctx context.Context, id string, out SyncOutcome) error {
	var details interface{}
	if out.ErrorDetails != nil {
		raw, err := json.Marshal(out.ErrorDetails)
		if err != nil {
			return fmt.Errorf("encode sync error details: %w", err)
		}
		details = raw
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE jira_sync_logs
		SET status = $2, error = $3, error_details = $4, can_retry = $5,
			milestones_created = $6, milestones_updated = $7, completed_at = now()
		WHERE id = $1 AND completed_at IS NULL`,
		id, string(out.Status), nullString(out.Error), details, out.CanRetry,
		out.MilestonesCreated, out.MilestonesUpdated,
	)
	if err != nil {
		return fmt.Errorf("finalize sync log: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrAlreadyFinished, id)
	}
	return nil
}
