package ai

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"talentmatch/internal/common/logger"
	"talentmatch/internal/common/ratelimit"
	"talentmatch/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Helper Functions
// ==========================

type stubJudge struct {
	mu        sync.Mutex
	fitCalls  int
	mapCalls  int
	fitErrors []error
	fit       *models.FitAnalysis
	skillMap  *models.SkillMap
}

func (s *stubJudge) GenerateSkillMap(ctx context.Context, name, description string) (*models.SkillMap, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mapCalls++
	return s.skillMap, nil
}

func (s *stubJudge) AnalyzeCV(ctx context.Context, text string) (*models.CVAnalysis, error) {
	return &models.CVAnalysis{Skills: []string{"go"}}, nil
}

func (s *stubJudge) CalculateFitScore(ctx context.Context, skills []string, experience string, skillMap models.SkillMap) (*models.FitAnalysis, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fitCalls++
	if len(s.fitErrors) > 0 {
		err := s.fitErrors[0]
		s.fitErrors = s.fitErrors[1:]
		if err != nil {
			return nil, err
		}
	}
	return s.fit, nil
}

func (s *stubJudge) PredictRisk(ctx context.Context, in RiskInput) (*models.RiskPrediction, error) {
	return &models.RiskPrediction{RiskLevel: models.RiskLow}, nil
}

func setupRedis(t *testing.T) *redis.Client {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

var backendMap = models.SkillMap{
	RequiredSkills:  []string{"Python", "Postgres"},
	ExperienceLevel: "mid",
}

// ==========================
// Cache Tests
// ==========================

func TestCachedJudge_FitScoreCacheAside(t *testing.T) {
	stub := &stubJudge{fit: &models.FitAnalysis{Score: 81, SkillOverlap: 100, ExperienceMatch: 70, SoftSkillRelevance: 50}}
	judge := NewCachedJudge(stub, setupRedis(t), time.Hour, logger.NewTestLogger(t))
	ctx := context.Background()

	first, err := judge.CalculateFitScore(ctx, []string{"python", "postgres"}, "4 years backend", backendMap)
	require.NoError(t, err)

	// same skills in a different order and case hit the same entry
	second, err := judge.CalculateFitScore(ctx, []string{"Postgres", " python"}, "4 years backend", backendMap)
	require.NoError(t, err)

	assert.Equal(t, 1, stub.fitCalls)
	assert.Equal(t, first, second)
}

func TestCachedJudge_SkillMapCacheAside(t *testing.T) {
	stub := &stubJudge{skillMap: &backendMap}
	judge := NewCachedJudge(stub, setupRedis(t), time.Hour, logger.NewTestLogger(t))

	for i := 0; i < 3; i++ {
		got, err := judge.GenerateSkillMap(context.Background(), "Backend API", "Build the REST API")
		require.NoError(t, err)
		assert.Equal(t, backendMap.RequiredSkills, got.RequiredSkills)
	}
	assert.Equal(t, 1, stub.mapCalls)
}

func TestCachedJudge_RedisFailureFallsThrough(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	fit := &models.FitAnalysis{Score: 60}
	stub := &stubJudge{fit: fit}
	judge := NewCachedJudge(stub, rdb, time.Minute, logger.NewTestLogger(t))

	key := cacheKey("fit", "go", "", "postgres,python", "mid", "")
	data, _ := json.Marshal(fit)
	mock.ExpectGet(key).SetErr(errors.New("connection refused"))
	mock.ExpectSet(key, data, time.Minute).SetErr(errors.New("connection refused"))

	got, err := judge.CalculateFitScore(context.Background(), []string{"go"}, "", backendMap)
	require.NoError(t, err)
	assert.Equal(t, 60, got.Score)
	assert.Equal(t, 1, stub.fitCalls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCachedJudge_ErrorsAreNotCached(t *testing.T) {
	stub := &stubJudge{
		fit:       &models.FitAnalysis{Score: 70},
		fitErrors: []error{errors.New("timeout")},
	}
	judge := NewCachedJudge(stub, setupRedis(t), time.Hour, logger.NewTestLogger(t))
	ctx := context.Background()

	_, err := judge.CalculateFitScore(ctx, []string{"go"}, "", backendMap)
	assert.Error(t, err)

	got, err := judge.CalculateFitScore(ctx, []string{"go"}, "", backendMap)
	require.NoError(t, err)
	assert.Equal(t, 70, got.Score)
	assert.Equal(t, 2, stub.fitCalls)
}

// ==========================
// Rate Limit Tests
// ==========================

func TestRateLimitedJudge_RetriesOnRateLimit(t *testing.T) {
	var mu sync.Mutex
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	clockNow := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	clockSleep := func(ctx context.Context, d time.Duration) error {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(d)
		return nil
	}

	queue := ratelimit.New(30*time.Second, ratelimit.WithClock(clockNow, clockSleep))
	defer queue.Close()

	stub := &stubJudge{
		fit:       &models.FitAnalysis{Score: 90},
		fitErrors: []error{ratelimit.ErrRateLimited},
	}
	judge := NewRateLimitedJudge(stub, queue, RetryPolicy{MaxRetries: 2, BaseDelay: time.Second})

	got, err := judge.CalculateFitScore(context.Background(), []string{"go"}, "", backendMap)
	require.NoError(t, err)
	assert.Equal(t, 90, got.Score)
	assert.Equal(t, 2, stub.fitCalls)
}

// slowJudge ignores its context, like a client stuck on a slow response.
type slowJudge struct {
	stubJudge
	delay    time.Duration
	finished chan struct{}
}

func (s *slowJudge) CalculateFitScore(ctx context.Context, skills []string, experience string, skillMap models.SkillMap) (*models.FitAnalysis, error) {
	time.Sleep(s.delay)
	defer close(s.finished)
	return &models.FitAnalysis{Score: 80}, nil
}

func TestRateLimitedJudge_DeadlineDuringCall(t *testing.T) {
	queue := ratelimit.New(time.Millisecond)
	defer queue.Close()

	slow := &slowJudge{delay: 50 * time.Millisecond, finished: make(chan struct{})}
	judge := NewRateLimitedJudge(slow, queue, RetryPolicy{})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	got, err := judge.CalculateFitScore(ctx, []string{"go"}, "", backendMap)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Nil(t, got)

	select {
	case <-slow.finished:
	case <-time.After(time.Second):
		t.Fatal("judge call never finished")
	}
}
