// internal/workers/matching/cv-processing/handler_test.go
package cvprocessing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	apperrors "talentmatch/internal/common/errors"
	"talentmatch/internal/common/logger"
	"talentmatch/internal/models"
	"talentmatch/internal/priority"
	"talentmatch/internal/scoring"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Helper Functions
// ==========================

type fakeStore struct {
	candidate   *models.Candidate
	milestones  []models.Milestone
	profile     *models.CVAnalysis
	upserted    []models.FitScore
	failUpserts map[string]bool
}

func (s *fakeStore) GetCandidate(_ context.Context, id string) (*models.Candidate, error) {
	if s.candidate == nil || s.candidate.ID != id {
		return nil, errors.New("RECORD_NOT_FOUND: candidate " + id)
	}
	return s.candidate, nil
}

func (s *fakeStore) UpdateCandidateProfile(_ context.Context, _ string, a models.CVAnalysis) error {
	s.profile = &a
	return nil
}

func (s *fakeStore) ListMilestonesWithSkillMap(context.Context) ([]models.Milestone, error) {
	return s.milestones, nil
}

func (s *fakeStore) UpsertFitScore(_ context.Context, fs *models.FitScore) error {
	if s.failUpserts[fs.MilestoneID] {
		return errors.New("deadlock detected")
	}
	s.upserted = append(s.upserted, *fs)
	return nil
}

type fakeIndexer struct {
	err     error
	indexed []string
}

func (i *fakeIndexer) IndexCandidate(_ context.Context, c models.Candidate, _ *models.CVAnalysis) error {
	if i.err != nil {
		return i.err
	}
	i.indexed = append(i.indexed, c.ID)
	return nil
}

// slowStore honours the write context the way database/sql does.
type slowStore struct {
	*fakeStore
	delay time.Duration
}

func (s *slowStore) UpsertFitScore(ctx context.Context, fs *models.FitScore) error {
	select {
	case <-time.After(s.delay):
	case <-ctx.Done():
		return ctx.Err()
	}
	return s.fakeStore.UpsertFitScore(ctx, fs)
}

type recordingPrioritizer struct {
	mu         sync.Mutex
	candidates []string
	err        error
}

func (p *recordingPrioritizer) Recompute(_ context.Context, candidateID string) ([]priority.Scored, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.candidates = append(p.candidates, candidateID)
	return nil, p.err
}

type progressLog []int

func (p *progressLog) Report(_ context.Context, pct int) { *p = append(*p, pct) }

func createTestMilestones() []models.Milestone {
	return []models.Milestone{
		{ID: "m-1", SkillMap: &models.SkillMap{RequiredSkills: []string{"python", "sql"}, ExperienceLevel: "mid"}},
		{ID: "m-2", SkillMap: &models.SkillMap{RequiredSkills: []string{"react"}, ExperienceLevel: "junior"}},
	}
}

func newTestHandler(t *testing.T, store *fakeStore, indexer Indexer) *Handler {
	log := logger.NewTestLogger(t)
	return NewHandler(LoadConfig(), store, scoring.NewEngine(nil, 0, log), indexer, nil, log)
}

func jobFor(t *testing.T, input Input) *models.BackgroundJob {
	raw, err := json.Marshal(input)
	require.NoError(t, err)
	return &models.BackgroundJob{ID: "job-1", JobType: JobType, Payload: raw}
}

const sampleCV = `Jane Doe
Backend engineer with 6 years of experience in Python, SQL and Docker.
BSc Computer Science, University of Lisbon
Clear communication with stakeholders.`

// ==========================
// Handler Tests
// ==========================

func TestHandler_ProcessesTextAndFansOut(t *testing.T) {
	store := &fakeStore{candidate: &models.Candidate{ID: "cand-1", Name: "Jane"}, milestones: createTestMilestones()}
	indexer := &fakeIndexer{}
	h := newTestHandler(t, store, indexer)
	var progress progressLog

	result, err := h.Handle(context.Background(), jobFor(t, Input{CandidateID: "cand-1", CVText: sampleCV}), &progress)
	require.NoError(t, err)
	out := result.(*Output)

	assert.Equal(t, models.SourceFallback, out.Source)
	assert.Contains(t, out.Skills, "python")
	assert.Contains(t, out.Skills, "sql")
	assert.Equal(t, 6, out.YearsExperience)
	assert.True(t, out.Indexed)
	assert.Equal(t, 2, out.Scored)
	assert.Equal(t, 0, out.Failed)
	assert.Equal(t, progressLog{10, 50, 70, 100}, progress)

	require.NotNil(t, store.profile)
	assert.Equal(t, "6 years", store.profile.Experience)
	assert.Contains(t, store.profile.Education, "BSc")
	assert.Equal(t, []string{"cand-1"}, indexer.indexed)

	require.Len(t, store.upserted, 2)
	assert.Equal(t, "m-1", store.upserted[0].MilestoneID)
	assert.Equal(t, 100, store.upserted[0].SkillOverlap)
}

func TestHandler_SkipsFailedFitScores(t *testing.T) {
	store := &fakeStore{
		candidate:   &models.Candidate{ID: "cand-1"},
		milestones:  createTestMilestones(),
		failUpserts: map[string]bool{"m-1": true},
	}
	h := newTestHandler(t, store, nil)

	result, err := h.Handle(context.Background(), jobFor(t, Input{CandidateID: "cand-1", CVText: sampleCV}), &progressLog{})
	require.NoError(t, err)
	out := result.(*Output)

	assert.Equal(t, 1, out.Scored)
	assert.Equal(t, 1, out.Failed)
	assert.False(t, out.Indexed)
}

func TestHandler_IndexFailureIsNotFatal(t *testing.T) {
	store := &fakeStore{candidate: &models.Candidate{ID: "cand-1"}}
	h := newTestHandler(t, store, &fakeIndexer{err: errors.New("connection refused")})

	result, err := h.Handle(context.Background(), jobFor(t, Input{CandidateID: "cand-1", CVText: sampleCV}), &progressLog{})
	require.NoError(t, err)
	assert.False(t, result.(*Output).Indexed)
}

func TestHandler_ReadsTextFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cv.txt")
	require.NoError(t, os.WriteFile(path, []byte(sampleCV), 0o600))

	store := &fakeStore{candidate: &models.Candidate{ID: "cand-1"}}
	h := newTestHandler(t, store, nil)

	_, err := h.Handle(context.Background(), jobFor(t, Input{CandidateID: "cand-1", FilePath: path}), &progressLog{})
	require.NoError(t, err)
	require.NotNil(t, store.profile)
	assert.Contains(t, store.profile.Skills, "docker")
}

func TestHandler_InputErrors(t *testing.T) {
	tests := []struct {
		name  string
		input Input
		code  apperrors.ErrorCode
	}{
		{"blank text", Input{CandidateID: "cand-1", CVText: "   "}, apperrors.ErrCodeJobPayloadInvalid},
		{"unsupported file", Input{CandidateID: "cand-1", FilePath: "/tmp/cv.png"}, apperrors.ErrCodeJobPayloadInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &fakeStore{candidate: &models.Candidate{ID: "cand-1"}}
			h := newTestHandler(t, store, nil)

			_, err := h.Handle(context.Background(), jobFor(t, tt.input), &progressLog{})
			require.Error(t, err)
			assert.True(t, apperrors.HasCode(err, tt.code))
			assert.Nil(t, store.profile)
		})
	}
}

func TestHandler_UnknownCandidate(t *testing.T) {
	h := newTestHandler(t, &fakeStore{}, nil)

	_, err := h.Handle(context.Background(), jobFor(t, Input{CandidateID: "ghost", CVText: sampleCV}), &progressLog{})
	assert.Error(t, err)
}

func TestHandler_TruncatesLongText(t *testing.T) {
	h := newTestHandler(t, &fakeStore{}, nil)
	h.config.MaxTextLength = 5

	text, err := h.resolveText(&Input{CVText: "héllo world"})
	require.NoError(t, err)
	assert.LessOrEqual(t, len(text), 5)
	assert.Equal(t, "héll", text)
}

func TestHandler_SavesScoresAfterTimeoutElapses(t *testing.T) {
	milestones := make([]models.Milestone, 10)
	for i := range milestones {
		milestones[i] = models.Milestone{
			ID:       fmt.Sprintf("m-%d", i),
			SkillMap: &models.SkillMap{RequiredSkills: []string{"python"}, ExperienceLevel: "mid"},
		}
	}
	inner := &fakeStore{candidate: &models.Candidate{ID: "cand-1"}, milestones: milestones}
	log := logger.NewTestLogger(t)
	cfg := LoadConfig()
	cfg.Timeout = 60 * time.Millisecond
	h := NewHandler(cfg, &slowStore{fakeStore: inner, delay: 20 * time.Millisecond},
		scoring.NewEngine(nil, 0, log), nil, nil, log)

	result, err := h.Handle(context.Background(), jobFor(t, Input{CandidateID: "cand-1", CVText: sampleCV}), &progressLog{})
	require.NoError(t, err)
	out := result.(*Output)

	assert.Equal(t, 10, out.Scored)
	assert.Equal(t, 0, out.Failed)
	require.Len(t, inner.upserted, 10)
	assert.Equal(t, models.SourceFallback, inner.upserted[9].Source)
}

func TestHandler_ReprioritizesCandidate(t *testing.T) {
	tests := []struct {
		name        string
		failUpserts map[string]bool
		recomputes  []string
		err         error
	}{
		{name: "after fit scores change", recomputes: []string{"cand-1"}},
		{name: "recompute failure is not fatal", recomputes: []string{"cand-1"}, err: errors.New("deadlock detected")},
		{name: "nothing scored", failUpserts: map[string]bool{"m-1": true, "m-2": true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &fakeStore{
				candidate:   &models.Candidate{ID: "cand-1"},
				milestones:  createTestMilestones(),
				failUpserts: tt.failUpserts,
			}
			prioritizer := &recordingPrioritizer{err: tt.err}
			log := logger.NewTestLogger(t)
			h := NewHandler(LoadConfig(), store, scoring.NewEngine(nil, 0, log), nil, prioritizer, log)

			_, err := h.Handle(context.Background(), jobFor(t, Input{CandidateID: "cand-1", CVText: sampleCV}), &progressLog{})
			require.NoError(t, err)
			assert.Equal(t, tt.recomputes, prioritizer.candidates)
		})
	}
}
