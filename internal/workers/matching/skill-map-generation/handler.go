// internal/workers/matching/skill-map-generation/handler.go
package skillmapgeneration

import (
	"context"
	"encoding/json"
	"fmt"

	apperrors "talentmatch/internal/common/errors"
	"talentmatch/internal/common/logger"
	"talentmatch/internal/jobs"
	"talentmatch/internal/models"
)

const JobType = models.JobSkillMapGeneration

type Store interface {
	GetMilestone(ctx context.Context, id string) (*models.Milestone, error)
	UpdateSkillMap(ctx context.Context, milestoneID string, skillMap models.SkillMap) error
}

type Scorer interface {
	GenerateSkillMap(ctx context.Context, name, description string) (models.SkillMap, models.ScoreSource)
}

type Handler struct {
	config *Config
	store  Store
	scorer Scorer
	logger logger.Logger
}

func NewHandler(config *Config, store Store, scorer Scorer, log logger.Logger) *Handler {
	return &Handler{
		config: config,
		store:  store,
		scorer: scorer,
		logger: log.WithFields(map[string]interface{}{"jobType": string(JobType)}),
	}
}

func (h *Handler) Handle(ctx context.Context, job *models.BackgroundJob, progress jobs.Progress) (interface{}, error) {
	var input Input
	if err := json.Unmarshal(job.Payload, &input); err != nil {
		return nil, apperrors.NewJobPayloadError(string(JobType), fmt.Sprintf("parse input: %v", err))
	}

	if h.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.config.Timeout)
		defer cancel()
	}

	milestone, err := h.store.GetMilestone(ctx, input.MilestoneID)
	if err != nil {
		return nil, err
	}
	progress.Report(ctx, 20)

	skillMap, source := h.scorer.GenerateSkillMap(ctx, milestone.Name, milestone.Description)
	progress.Report(ctx, 80)

	if err := h.store.UpdateSkillMap(ctx, milestone.ID, skillMap); err != nil {
		return nil, err
	}
	progress.Report(ctx, 100)

	h.logger.Info("skill map generated", map[string]interface{}{
		"milestoneId":    milestone.ID,
		"source":         string(source),
		"requiredSkills": len(skillMap.RequiredSkills),
		"level":          skillMap.ExperienceLevel,
	})

	return &Output{MilestoneID: milestone.ID, SkillMap: skillMap, Source: source}, nil
}
