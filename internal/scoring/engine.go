// Package scoring produces fit scores, skill maps, CV analyses and risk
// predictions. Each goes to the AI judge first and falls back to a
// deterministic rule set when the judge is unavailable.
package scoring

import (
	"context"
	"errors"
	"time"

	"talentmatch/internal/ai"
	apperrors "talentmatch/internal/common/errors"
	"talentmatch/internal/common/logger"
	"talentmatch/internal/common/metrics"
	"talentmatch/internal/models"
)

// Operation names used in logs and the ai_fallback_total metric.
const (
	OpFitScore    = "calculate_fit_score"
	OpSkillMap    = "generate_skill_map"
	OpAnalyzeCV   = "analyze_cv"
	OpPredictRisk = "predict_risk"
)

var errNoJudge = errors.New("no AI judge configured")

// ScoreOrFallback runs primary and, on any error, fallback. normalize runs on
// whichever value is returned so both paths obey the same bounds.
func ScoreOrFallback[T any](
	ctx context.Context,
	operation string,
	log logger.Logger,
	primary func(context.Context) (T, error),
	fallback func() T,
	normalize func(T) T,
) (T, models.ScoreSource) {
	var (
		value T
		err   = errNoJudge
	)
	if primary != nil {
		value, err = primary(ctx)
	}
	if err == nil {
		return normalize(value), models.SourceAI
	}

	metrics.AIFallbacks.WithLabelValues(operation).Inc()
	log.Warn("ai judge unavailable, using fallback", map[string]interface{}{
		"operation": operation,
		"error":     apperrors.NewAIUnavailableError(operation, err).Error(),
	})
	return normalize(fallback()), models.SourceFallback
}

// FitResult is a fit analysis tagged with where it came from.
type FitResult struct {
	models.FitAnalysis
	Source models.ScoreSource
}

// Engine wraps an optional judge. A nil judge means every call uses the fallback.
type Engine struct {
	judge   ai.Judge
	timeout time.Duration
	logger  logger.Logger
}

func NewEngine(judge ai.Judge, timeout time.Duration, log logger.Logger) *Engine {
	return &Engine{
		judge:   judge,
		timeout: timeout,
		logger:  log.WithFields(map[string]interface{}{"component": "scoring"}),
	}
}

// call adapts a judge method, bounding it by the engine timeout and treating a
// nil answer as a failure.
func call[T any](e *Engine, fn func(ctx context.Context) (*T, error)) func(context.Context) (T, error) {
	if e.judge == nil {
		return nil
	}
	return func(ctx context.Context) (T, error) {
		var zero T
		if e.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, e.timeout)
			defer cancel()
		}
		out, err := fn(ctx)
		if err != nil {
			return zero, err
		}
		if out == nil {
			return zero, errors.New("judge returned no result")
		}
		return *out, nil
	}
}

// ScoreFit never fails; the result is tagged ai or fallback.
func (e *Engine) ScoreFit(ctx context.Context, skills []string, experience string, skillMap models.SkillMap) FitResult {
	analysis, source := ScoreOrFallback(ctx, OpFitScore, e.logger,
		call(e, func(ctx context.Context) (*models.FitAnalysis, error) {
			return e.judge.CalculateFitScore(ctx, skills, experience, skillMap)
		}),
		func() models.FitAnalysis { return FallbackFit(skills, experience, skillMap) },
		normalizeFit,
	)
	return FitResult{FitAnalysis: analysis, Source: source}
}

func (e *Engine) GenerateSkillMap(ctx context.Context, name, description string) (models.SkillMap, models.ScoreSource) {
	return ScoreOrFallback(ctx, OpSkillMap, e.logger,
		call(e, func(ctx context.Context) (*models.SkillMap, error) {
			return e.judge.GenerateSkillMap(ctx, name, description)
		}),
		func() models.SkillMap { return FallbackSkillMap(name, description) },
		normalizeSkillMap,
	)
}

func (e *Engine) AnalyzeCV(ctx context.Context, text string) (models.CVAnalysis, models.ScoreSource) {
	return ScoreOrFallback(ctx, OpAnalyzeCV, e.logger,
		call(e, func(ctx context.Context) (*models.CVAnalysis, error) {
			return e.judge.AnalyzeCV(ctx, text)
		}),
		func() models.CVAnalysis { return FallbackCVAnalysis(text) },
		normalizeCV,
	)
}

func (e *Engine) PredictRisk(ctx context.Context, in ai.RiskInput) (models.RiskPrediction, models.ScoreSource) {
	return ScoreOrFallback(ctx, OpPredictRisk, e.logger,
		call(e, func(ctx context.Context) (*models.RiskPrediction, error) {
			return e.judge.PredictRisk(ctx, in)
		}),
		func() models.RiskPrediction { return FallbackRisk(in) },
		normalizeRisk,
	)
}

func normalizeFit(f models.FitAnalysis) models.FitAnalysis {
	f.Score = Clamp(f.Score)
	f.SkillOverlap = Clamp(f.SkillOverlap)
	f.ExperienceMatch = Clamp(f.ExperienceMatch)
	f.SoftSkillRelevance = Clamp(f.SoftSkillRelevance)
	return f
}

func normalizeSkillMap(m models.SkillMap) models.SkillMap {
	m.RequiredSkills = nonNil(m.RequiredSkills)
	m.SoftSkills = nonNil(m.SoftSkills)
	if levelOrdinal(m.ExperienceLevel) < 0 {
		m.ExperienceLevel = defaultLevel
	}
	return m
}

func normalizeCV(c models.CVAnalysis) models.CVAnalysis {
	c.Skills = nonNil(c.Skills)
	if c.YearsExperience < 0 {
		c.YearsExperience = 0
	}
	return c
}

func normalizeRisk(r models.RiskPrediction) models.RiskPrediction {
	switch r.RiskLevel {
	case models.RiskLow, models.RiskMedium, models.RiskHigh:
	default:
		r.RiskLevel = models.RiskLow
	}
	if r.DelayPercentage < 0 {
		r.DelayPercentage = 0
	}
	r.PredictedIssues = nonNil(r.PredictedIssues)
	r.Recommendations = nonNil(r.Recommendations)
	return r
}
