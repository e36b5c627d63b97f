// internal/workers/matching/cv-processing/handler.go
package cvprocessing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	apperrors "talentmatch/internal/common/errors"
	"talentmatch/internal/common/logger"
	"talentmatch/internal/jobs"
	"talentmatch/internal/models"
	"talentmatch/internal/priority"
	"talentmatch/internal/scoring"

	"code.sajari.com/docconv"
)

const JobType = models.JobCVProcessing

var (
	ErrEmptyCV         = errors.New("CV_TEXT_EMPTY")
	ErrUnsupportedFile = errors.New("CV_FILE_UNSUPPORTED")
	ErrCVParseFailed   = errors.New("CV_PARSE_FAILED")
)

type Store interface {
	GetCandidate(ctx context.Context, id string) (*models.Candidate, error)
	UpdateCandidateProfile(ctx context.Context, id string, analysis models.CVAnalysis) error
	ListMilestonesWithSkillMap(ctx context.Context) ([]models.Milestone, error)
	UpsertFitScore(ctx context.Context, fs *models.FitScore) error
}

type Scorer interface {
	AnalyzeCV(ctx context.Context, text string) (models.CVAnalysis, models.ScoreSource)
	ScoreFit(ctx context.Context, skills []string, experience string, skillMap models.SkillMap) scoring.FitResult
}

type Indexer interface {
	IndexCandidate(ctx context.Context, c models.Candidate, analysis *models.CVAnalysis) error
}

// Prioritizer rescales a candidate's open offers once their fit scores move.
type Prioritizer interface {
	Recompute(ctx context.Context, candidateID string) ([]priority.Scored, error)
}

type Handler struct {
	config      *Config
	store       Store
	scorer      Scorer
	indexer     Indexer
	prioritizer Prioritizer
	extract     func(path string) (string, error)
	logger      logger.Logger
}

// NewHandler builds the handler. indexer may be nil when search is disabled
// and prioritizer may be nil when offers are ranked elsewhere.
func NewHandler(config *Config, store Store, scorer Scorer, indexer Indexer, prioritizer Prioritizer, log logger.Logger) *Handler {
	return &Handler{
		config:      config,
		store:       store,
		scorer:      scorer,
		indexer:     indexer,
		prioritizer: prioritizer,
		extract:     extractText,
		logger:      log.WithFields(map[string]interface{}{"jobType": string(JobType)}),
	}
}

func (h *Handler) Handle(ctx context.Context, job *models.BackgroundJob, progress jobs.Progress) (interface{}, error) {
	var input Input
	if err := json.Unmarshal(job.Payload, &input); err != nil {
		return nil, apperrors.NewJobPayloadError(string(JobType), fmt.Sprintf("parse input: %v", err))
	}

	// Timeout budgets the AI calls only. Once it is spent the scorer falls
	// back and the results are still persisted.
	budget := ctx
	if h.config.Timeout > 0 {
		var cancel context.CancelFunc
		budget, cancel = context.WithTimeout(ctx, h.config.Timeout)
		defer cancel()
	}

	return h.execute(ctx, budget, &input, progress)
}

// storeCtx bounds one write on its own clock, detached from the AI budget.
func (h *Handler) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx = context.WithoutCancel(ctx)
	if h.config.StoreTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, h.config.StoreTimeout)
}

func (h *Handler) execute(ctx, budget context.Context, input *Input, progress jobs.Progress) (*Output, error) {
	candidate, err := h.store.GetCandidate(ctx, input.CandidateID)
	if err != nil {
		return nil, err
	}

	text, err := h.resolveText(input)
	if err != nil {
		return nil, err
	}
	progress.Report(ctx, 10)

	analysis, source := h.scorer.AnalyzeCV(budget, text)
	wctx, cancel := h.storeCtx(ctx)
	err = h.store.UpdateCandidateProfile(wctx, candidate.ID, analysis)
	cancel()
	if err != nil {
		return nil, err
	}
	progress.Report(ctx, 50)

	out := &Output{
		CandidateID:     candidate.ID,
		Source:          source,
		Skills:          analysis.Skills,
		YearsExperience: analysis.YearsExperience,
	}

	if h.indexer != nil {
		wctx, cancel := h.storeCtx(ctx)
		err := h.indexer.IndexCandidate(wctx, *candidate, &analysis)
		cancel()
		if err != nil {
			h.logger.Warn("candidate indexing failed", map[string]interface{}{
				"candidateId": candidate.ID,
				"error":       err.Error(),
			})
		} else {
			out.Indexed = true
		}
	}
	progress.Report(ctx, 70)

	milestones, err := h.store.ListMilestonesWithSkillMap(ctx)
	if err != nil {
		return nil, err
	}
	for _, m := range milestones {
		result := h.scorer.ScoreFit(budget, analysis.Skills, analysis.Experience, *m.SkillMap)
		wctx, cancel := h.storeCtx(ctx)
		err := h.store.UpsertFitScore(wctx, &models.FitScore{
			CandidateID: candidate.ID,
			MilestoneID: m.ID,
			FitAnalysis: result.FitAnalysis,
			Source:      result.Source,
		})
		cancel()
		if err != nil {
			out.Failed++
			h.logger.Warn("fit score skipped", map[string]interface{}{
				"candidateId": candidate.ID,
				"milestoneId": m.ID,
				"error":       err.Error(),
			})
			continue
		}
		out.Scored++
	}
	if out.Scored > 0 {
		h.reprioritize(ctx, candidate.ID)
	}
	progress.Report(ctx, 100)

	h.logger.Info("cv processed", map[string]interface{}{
		"candidateId": candidate.ID,
		"source":      string(source),
		"skills":      len(analysis.Skills),
		"scored":      out.Scored,
		"failed":      out.Failed,
	})
	return out, nil
}

// reprioritize is best effort: the fit scores are already saved and the next
// recompute picks them up.
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

func (h *Handler) resolveText(input *Input) (string, error) {
	text := input.CVText
	if strings.TrimSpace(text) == "" && input.FilePath != "" {
		var err error
		if text, err = h.extract(input.FilePath); err != nil {
			return "", err
		}
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", apperrors.NewJobPayloadError(string(JobType), ErrEmptyCV.Error())
	}
	if h.config.MaxTextLength > 0 && len(text) > h.config.MaxTextLength {
		text = strings.ToValidUTF8(text[:h.config.MaxTextLength], "")
	}
	return text, nil
}

func extractText(path string) (string, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".pdf", ".docx", ".doc", ".rtf", ".odt":
		res, err := docconv.ConvertPath(path)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrCVParseFailed, err)
		}
		return res.Body, nil
	case ".txt", ".md":
		content, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrCVParseFailed, err)
		}
		return string(content), nil
	default:
		return "", apperrors.NewJobPayloadError(string(JobType), fmt.Sprintf("%s: %q", ErrUnsupportedFile, ext))
	}
}
