package jira

import (
	"context"
	stderrors "errors"
	"fmt"
	"math"
	"strings"

	apperrors "talentmatch/internal/common/errors"
	"talentmatch/internal/common/logger"
	"talentmatch/internal/common/metrics"
	"talentmatch/internal/models"
	"talentmatch/internal/store"
)

const SyncTypeFull = "full"

var ErrProjectNotLinked = stderrors.New("PROJECT_NOT_LINKED_TO_JIRA")

type Store interface {
	GetProject(ctx context.Context, id string) (*models.Project, error)
	SetJiraCredentials(ctx context.Context, projectID, projectKey string, tokenEnc []byte) error
	CreateSyncLog(ctx context.Context, projectID, syncType string) (*models.JiraSyncLog, error)
	UpsertMilestoneByIssueKey(ctx context.Context, in store.IssueMilestone) (string, bool, error)
	FinalizeSyncLog(ctx context.Context, id string, out store.SyncOutcome) error
}

type Source interface {
	SearchIssues(ctx context.Context, projectKey string) ([]Issue, error)
}

// Enqueuer queues follow-up work for newly created milestones.
type Enqueuer interface {
	Enqueue(ctx context.Context, jobType models.JobType, payload interface{}, userEmail string) (string, error)
}

// Sealer encrypts stored API tokens.
type Sealer interface {
	Encrypt(plaintext []byte) ([]byte, error)
	Decrypt(ciphertext []byte) ([]byte, error)
}

type Result struct {
	LogID   string            `json:"logId"`
	Status  models.SyncStatus `json:"status"`
	Created int               `json:"created"`
	Updated int               `json:"updated"`
	Failed  int               `json:"failed"`
}

type Syncer struct {
	store     Store
	source    Source
	withToken func(token string) Source
	queue     Enqueuer
	sealer    Sealer
	logger    logger.Logger
}

// NewSyncer builds a syncer on client. queue may be nil, in which case new
// milestones get no skill map job.
func NewSyncer(st Store, client *Client, queue Enqueuer, sealer Sealer, log logger.Logger) *Syncer {
	return &Syncer{
		store:     st,
		source:    client,
		withToken: func(token string) Source { return client.WithToken(token) },
		queue:     queue,
		sealer:    sealer,
		logger:    log.WithFields(map[string]interface{}{"component": "jira_sync"}),
	}
}

// Connect links a project to a Jira project key, storing the token sealed.
func (s *Syncer) Connect(ctx context.Context, projectID, projectKey, token string) error {
	var sealed []byte
	if token != "" {
		var err error
		if sealed, err = s.sealer.Encrypt([]byte(token)); err != nil {
			return fmt.Errorf("seal jira token: %w", err)
		}
	}
	return s.store.SetJiraCredentials(ctx, projectID, projectKey, sealed)
}

// Sync mirrors every issue of the project's Jira key into milestones. A sync
// log is written for every attempt once the project is resolved, including a
// project that was never linked.
func (s *Syncer) Sync(ctx context.Context, projectID string) (*Result, error) {
	project, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}

	syncLog, err := s.store.CreateSyncLog(ctx, projectID, SyncTypeFull)
	if err != nil {
		return nil, err
	}
	log := s.logger.WithFields(map[string]interface{}{
		"projectId": projectID,
		"syncLogId": syncLog.ID,
	})

	if project.JiraProjectKey == nil || *project.JiraProjectKey == "" {
		cause := apperrors.NewConfigError(fmt.Sprintf("%s: %s", ErrProjectNotLinked, projectID))
		_ = s.fail(ctx, log, syncLog.ID, cause)
		return nil, cause
	}
	log = log.WithFields(map[string]interface{}{"projectKey": *project.JiraProjectKey})
	log.Info("jira sync started", nil)

	source, err := s.sourceFor(project)
	if err != nil {
		return nil, s.fail(ctx, log, syncLog.ID, err)
	}

	issues, err := source.SearchIssues(ctx, *project.JiraProjectKey)
	if err != nil {
		return nil, s.fail(ctx, log, syncLog.ID, err)
	}

	res := &Result{LogID: syncLog.ID}
	var lastErr error
	for _, issue := range issues {
		id, created, err := s.store.UpsertMilestoneByIssueKey(ctx, toMilestone(projectID, issue))
		if err != nil {
			res.Failed++
			lastErr = err
			log.Warn("issue skipped", map[string]interface{}{"issueKey": issue.Key, "error": err.Error()})
			continue
		}
		if !created {
			res.Updated++
			continue
		}
		res.Created++
		if s.queue != nil && strings.TrimSpace(issue.Description) != "" {
			if _, err := s.queue.Enqueue(ctx, models.JobSkillMapGeneration, map[string]string{"milestoneId": id}, ""); err != nil {
				log.Warn("failed to queue skill map generation", map[string]interface{}{"milestoneId": id, "error": err.Error()})
			}
		}
	}

	outcome := store.SyncOutcome{
		Status:            models.SyncSuccess,
		MilestonesCreated: res.Created,
		MilestonesUpdated: res.Updated,
	}
	errorType := "none"
	if lastErr != nil {
		info := apperrors.CategorizeSyncError(lastErr)
		msg := fmt.Sprintf("%d of %d issues failed: %s", res.Failed, len(issues), info.Message)
		outcome.Status = models.SyncPartial
		if res.Created+res.Updated == 0 {
			outcome.Status = models.SyncFailed
		}
		outcome.Error = &msg
		outcome.ErrorDetails = &models.SyncErrorDetails{Type: string(info.Type), StatusCode: info.StatusCode, Stack: info.Stack}
		outcome.CanRetry = info.Retryable
		errorType = string(info.Type)
	}
	res.Status = outcome.Status

	if err := s.store.FinalizeSyncLog(ctx, syncLog.ID, outcome); err != nil {
		return nil, err
	}
	metrics.JiraSyncs.WithLabelValues(string(res.Status), errorType).Inc()

	log.Info("jira sync finished", map[string]interface{}{
		"status":  string(res.Status),
		"issues":  len(issues),
		"created": res.Created,
		"updated": res.Updated,
		"failed":  res.Failed,
	})
	return res, nil
}

func (s *Syncer) sourceFor(project *models.Project) (Source, error) {
	if len(project.JiraTokenEnc) == 0 {
		return s.source, nil
	}
	if s.sealer == nil {
		return nil, apperrors.NewEncryptionKeyError("no cipher configured for stored jira token")
	}
	token, err := s.sealer.Decrypt(project.JiraTokenEnc)
	if err != nil {
		return nil, apperrors.NewEncryptionKeyError(fmt.Sprintf("stored jira token: %v", err))
	}
	return s.withToken(string(token)), nil
}

// fail finalizes the log for a sync that produced nothing and returns the
// categorized error.
func (s *Syncer) fail(ctx context.Context, log logger.Logger, logID string, cause error) error {
	info := apperrors.CategorizeSyncError(cause)
	if apperrors.HasCode(cause, apperrors.ErrCodeEncryptionKey) || apperrors.HasCode(cause, apperrors.ErrCodeConfigInvalid) {
		info.Retryable = false
	}
	msg := info.Message
	outcome := store.SyncOutcome{
		Status:       models.SyncFailed,
		Error:        &msg,
		ErrorDetails: &models.SyncErrorDetails{Type: string(info.Type), StatusCode: info.StatusCode, Stack: info.Stack},
		CanRetry:     info.Retryable,
	}
	if err := s.store.FinalizeSyncLog(ctx, logID, outcome); err != nil {
		log.Error("failed to finalize sync log", map[string]interface{}{"error": err.Error()})
	}
	metrics.JiraSyncs.WithLabelValues(string(models.SyncFailed), string(info.Type)).Inc()

	log.Error("jira sync failed", map[string]interface{}{
		"errorType":  string(info.Type),
		"statusCode": info.StatusCode,
		"canRetry":   info.Retryable,
		"error":      info.Message,
	})
	return apperrors.NewSyncError(info, cause)
}

// toMilestone maps tracker fields onto the milestone columns a sync owns.
func toMilestone(projectID string, issue Issue) store.IssueMilestone {
	return store.IssueMilestone{
		ProjectID:       projectID,
		IssueKey:        issue.Key,
		Name:            issue.Summary,
		Description:     issue.Description,
		Status:          MapStatus(issue.Status),
		EstimatedHours:  int(math.Round(float64(issue.TimeEstimate) / 3600)),
		TimeSpentHours:  int(math.Round(float64(issue.TimeSpent) / 3600)),
		DelayPercentage: DelayPercentage(issue.TimeEstimate, issue.TimeSpent),
		EpicKey:         issue.EpicKey,
		SprintID:        issue.SprintID,
		SprintName:      issue.SprintName,
	}
}

func MapStatus(status string) models.MilestoneStatus {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "in progress", "in review":
		return models.MilestoneInProgress
	case "done", "closed", "resolved":
		return models.MilestoneCompleted
	default:
		return models.MilestonePending
	}
}

// DelayPercentage is how far time spent overruns the estimate, 0 when on track
// or unestimated.
func DelayPercentage(estimate, spent int) int {
	if estimate <= 0 || spent <= estimate {
		return 0
	}
	return int(math.Round(float64(spent-estimate) / float64(estimate) * 100))
}
