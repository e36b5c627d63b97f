// Package ai defines the external AI judge contract and the decorators every
// judge call passes through.
package ai

import (
	"context"
	"time"

	"talentmatch/internal/common/ratelimit"
	"talentmatch/internal/models"
)

// RiskInput is the milestone data the judge needs to predict schedule risk.
type RiskInput struct {
	Name            string
	Description     string
	DelayPercentage int
	EstimatedHours  int
}

// Judge is the external AI collaborator. Numbers in its answers may be
// fractional or out of range; callers normalize them.
type Judge interface {
	GenerateSkillMap(ctx context.Context, name, description string) (*models.SkillMap, error)
	AnalyzeCV(ctx context.Context, text string) (*models.CVAnalysis, error)
	CalculateFitScore(ctx context.Context, skills []string, experience string, skillMap models.SkillMap) (*models.FitAnalysis, error)
	PredictRisk(ctx context.Context, in RiskInput) (*models.RiskPrediction, error)
}

// RetryPolicy configures rate-limit retries around each judge call.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
}

// RateLimitedJudge routes every call of the wrapped judge through one shared queue.
type RateLimitedJudge struct {
	next   Judge
	queue  *ratelimit.Queue
	policy RetryPolicy
}

func NewRateLimitedJudge(next Judge, queue *ratelimit.Queue, policy RetryPolicy) *RateLimitedJudge {
	return &RateLimitedJudge{next: next, queue: queue, policy: policy}
}

func (j *RateLimitedJudge) run(ctx context.Context, task ratelimit.Task) error {
	return j.queue.ExecuteWithRetry(ctx, task, j.policy.MaxRetries, j.policy.BaseDelay)
}

// dispatch runs fn through the queue. The queue gives up on a done context
// while the task may still be running, so the answer travels over a buffered
// channel and is read only after a successful run.
func dispatch[T any](ctx context.Context, j *RateLimitedJudge, fn func(ctx context.Context) (*T, error)) (*T, error) {
	answers := make(chan *T, 1)
	err := j.run(ctx, func(ctx context.Context) error {
		out, err := fn(ctx)
		if err != nil {
			return err
		}
		answers <- out
		return nil
	})
	if err != nil {
		return nil, err
	}
	return <-answers, nil
}

func (j *RateLimitedJudge) GenerateSkillMap(ctx context.Context, name, description string) (*models.SkillMap, error) {
	return dispatch(ctx, j, func(ctx context.Context) (*models.SkillMap, error) {
		return j.next.GenerateSkillMap(ctx, name, description)
	})
}

func (j *RateLimitedJudge) AnalyzeCV(ctx context.Context, text string) (*models.CVAnalysis, error) {
	return dispatch(ctx, j, func(ctx context.Context) (*models.CVAnalysis, error) {
		return j.next.AnalyzeCV(ctx, text)
	})
}

func (j *RateLimitedJudge) CalculateFitScore(ctx context.Context, skills []string, experience string, skillMap models.SkillMap) (*models.FitAnalysis, error) {
	return dispatch(ctx, j, func(ctx context.Context) (*models.FitAnalysis, error) {
		return j.next.CalculateFitScore(ctx, skills, experience, skillMap)
	})
}

func (j *RateLimitedJudge) PredictRisk(ctx context.Context, in RiskInput) (*models.RiskPrediction, error) {
	return dispatch(ctx, j, func(ctx context.Context) (*models.RiskPrediction, error) {
		return j.next.PredictRisk(ctx, in)
	})
}
