// internal/workers/matching/fit-score-calculation/handler.go
package fitscorecalculation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	apperrors "talentmatch/internal/common/errors"
	"talentmatch/internal/common/logger"
	"talentmatch/internal/jobs"
	"talentmatch/internal/models"
	"talentmatch/internal/priority"
	"talentmatch/internal/scoring"
)

const JobType = models.JobFitScoreCalculation

var ErrNoSkillMap = errors.New("MILESTONE_SKILL_MAP_MISSING")

type Store interface {
	GetMilestone(ctx context.Context, id string) (*models.Milestone, error)
	GetCandidate(ctx context.Context, id string) (*models.Candidate, error)
	ListAvailableCandidates(ctx context.Context) ([]models.Candidate, error)
	UpsertFitScore(ctx context.Context, fs *models.FitScore) error
}

type Scorer interface {
	ScoreFit(ctx context.Context, skills []string, experience string, skillMap models.SkillMap) scoring.FitResult
}

type Prioritizer interface {
	Recompute(ctx context.Context, candidateID string) ([]priority.Scored, error)
}

type Handler struct {
	config      *Config
	store       Store
	scorer      Scorer
	prioritizer Prioritizer
	logger      logger.Logger
}

// NewHandler builds the handler. prioritizer may be nil.
func NewHandler(config *Config, store Store, scorer Scorer, prioritizer Prioritizer, log logger.Logger) *Handler {
	return &Handler{
		config:      config,
		store:       store,
		scorer:      scorer,
		prioritizer: prioritizer,
		logger:      log.WithFields(map[string]interface{}{"jobType": string(JobType)}),
	}
}

func (h *Handler) Handle(ctx context.Context, job *models.BackgroundJob, progress jobs.Progress) (interface{}, error) {
	var input Input
	if err := json.Unmarshal(job.Payload, &input); err != nil {
		return nil, apperrors.NewJobPayloadError(string(JobType), fmt.Sprintf("parse input: %v", err))
	}

	// Timeout budgets the AI calls only; after it runs out every candidate is
	// still scored on the fallback and saved.
	budget := ctx
	if h.config.Timeout > 0 {
		var cancel context.CancelFunc
		budget, cancel = context.WithTimeout(ctx, h.config.Timeout)
		defer cancel()
	}

	return h.execute(ctx, budget, &input, progress)
}

func (h *Handler) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx = context.WithoutCancel(ctx)
	if h.config.StoreTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, h.config.StoreTimeout)
}

func (h *Handler) execute(ctx, budget context.Context, input *Input, progress jobs.Progress) (*Output, error) {
	milestone, err := h.store.GetMilestone(ctx, input.MilestoneID)
	if err != nil {
		return nil, err
	}
	if milestone.SkillMap == nil {
		return nil, apperrors.NewJobPayloadError(string(JobType),
			fmt.Sprintf("%s: milestone %s", ErrNoSkillMap, milestone.ID))
	}

	candidates, failed, err := h.loadCandidates(ctx, input)
	if err != nil {
		return nil, err
	}
	progress.Report(ctx, 10)

	out := &Output{
		MilestoneID: milestone.ID,
		Failed:      failed,
		Scores:      make([]CandidateScore, 0, len(candidates)),
	}

	for i, c := range candidates {
		result := h.scorer.ScoreFit(budget, c.Skills, c.Experience, *milestone.SkillMap)
		wctx, cancel := h.storeCtx(ctx)
		err := h.store.UpsertFitScore(wctx, &models.FitScore{
			CandidateID: c.ID,
			MilestoneID: milestone.ID,
			FitAnalysis: result.FitAnalysis,
			Source:      result.Source,
		})
		cancel()
		if err != nil {
			out.Failed++
			h.logger.Warn("fit score skipped", map[string]interface{}{
				"candidateId": c.ID,
				"milestoneId": milestone.ID,
				"error":       err.Error(),
			})
		} else {
			out.Scored++
			out.Scores = append(out.Scores, CandidateScore{CandidateID: c.ID, Score: result.Score, Source: result.Source})
			h.reprioritize(ctx, c.ID)
		}
		progress.Report(ctx, 10+90*(i+1)/len(candidates))
	}
	if len(candidates) == 0 {
		progress.Report(ctx, 100)
	}

	h.logger.Info("fit scores calculated", map[string]interface{}{
		"milestoneId": milestone.ID,
		"scored":      out.Scored,
		"failed":      out.Failed,
	})
	return out, nil
}

func (h *Handler) reprioritize(ctx context.Context, candidateID string) {
	if h.prioritizer == nil {
		return
	}
	wctx, cancel := h.storeCtx(ctx)
	defer cancel()
	if _, err := h.prioritizer.Recompute(wctx, candidateID); err != nil {
		h.logger.Warn("priority recompute skipped", map[string]interface{}{
			"candidateId": candidateID,
			"error":       err.Error(),
		})
	}
}

// loadCandidates resolves the explicit id list, counting ids that cannot be
// loaded as failures, or falls back to every available candidate.
func (h *Handler) loadCandidates(ctx context.Context, input *Input) ([]models.Candidate, int, error) {
	if len(input.CandidateIDs) == 0 {
		candidates, err := h.store.ListAvailableCandidates(ctx)
		return candidates, 0, err
	}

	candidates := make([]models.Candidate, 0, len(input.CandidateIDs))
	failed := 0
	for _, id := range input.CandidateIDs {
		c, err := h.store.GetCandidate(ctx, id)
		if err != nil {
			failed++
			h.logger.Warn("candidate skipped", map[string]interface{}{"candidateId": id, "error": err.Error()})
			continue
		}
		candidates = append(candidates, *c)
	}
	return candidates, failed, nil
}
