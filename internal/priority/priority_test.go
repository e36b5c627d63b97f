package priority

import (
	"context"
	"errors"
	"testing"
	"time"

	"talentmatch/internal/common/logger"
	"talentmatch/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Helper Functions
// ==========================

var baseTime = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

func interest(id string, fit int, budget float64, pref *int, offset time.Duration) models.BusinessInterest {
	return models.BusinessInterest{
		ID:                  id,
		CandidateID:         "cand-x",
		MilestoneID:         "m-1",
		FitScore:            fit,
		OfferBudget:         budget,
		CandidatePreference: pref,
		Status:              models.InterestOpen,
		CreatedAt:           baseTime.Add(offset),
	}
}

func intPtr(v int) *int { return &v }

type fakeStore struct {
	interests []models.BusinessInterest
	listErr   error
	updateErr error
	updated   map[string]int
	calls     int
}

func (f *fakeStore) CreateInterest(ctx context.Context, in *models.BusinessInterest) error {
	if in.ID == "" {
		in.ID = "generated"
	}
	in.Status = models.InterestOpen
	in.CreatedAt = baseTime.Add(time.Hour)
	f.interests = append(f.interests, *in)
	return nil
}

func (f *fakeStore) SetInterestPreference(ctx context.Context, interestID string, rating int) (string, error) {
	for i := range f.interests {
		if f.interests[i].ID == interestID {
			f.interests[i].CandidatePreference = &rating
			return f.interests[i].CandidateID, nil
		}
	}
	return "", errors.New("RECORD_NOT_FOUND: interest " + interestID)
}

func (f *fakeStore) ListOpenInterests(ctx context.Context, candidateID string) ([]models.BusinessInterest, error) {
	return f.interests, f.listErr
}

func (f *fakeStore) UpdateInterestPriorities(ctx context.Context, scores map[string]int) error {
	f.calls++
	f.updated = scores
	return f.updateErr
}

// ==========================
// Score Tests
// ==========================

func TestScoreBatch_ThreeBidsScenario(t *testing.T) {
	scored := ScoreBatch([]models.BusinessInterest{
		interest("a", 80, 1000, nil, 0),
		interest("b", 80, 2000, nil, time.Minute),
		interest("c", 80, 500, nil, 2*time.Minute),
	})

	require.Len(t, scored, 3)
	assert.Equal(t, 62, scored[0].PriorityScore)
	assert.Equal(t, 77, scored[1].PriorityScore)
	assert.Equal(t, 55, scored[2].PriorityScore)
	assert.Equal(t, 50.0, scored[0].Breakdown.Budget)
	assert.Equal(t, 25.0, scored[2].Breakdown.Budget)

	top := TopK(scored, 1)
	require.Len(t, top, 1)
	assert.Equal(t, 2000.0, top[0].Interest.OfferBudget)
}

func TestScore_Normalization(t *testing.T) {
	tests := []struct {
		name      string
		in        models.BusinessInterest
		maxBudget float64
		want      int
		wantPref  float64
	}{
		{"preference 5", interest("p5", 100, 100, intPtr(5), 0), 100, 100, 100},
		{"preference 1", interest("p1", 100, 100, intPtr(1), 0), 100, 70, 0},
		{"preference 3", interest("p3", 0, 0, intPtr(3), 0), 100, 15, 50},
		{"preference clamped", interest("p9", 0, 0, intPtr(9), 0), 100, 30, 100},
		{"fit clamped", interest("f", 250, 0, intPtr(1), 0), 100, 40, 0},
		{"zero max budget, positive offer", interest("z1", 0, 10, intPtr(1), 0), 0, 30, 0},
		{"zero max budget, zero offer", interest("z0", 0, 0, intPtr(1), 0), 0, 0, 0},
		{"offer above max", interest("o", 0, 300, intPtr(1), 0), 100, 30, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Score(tt.in, tt.maxBudget)
			assert.Equal(t, tt.want, got.PriorityScore)
			assert.Equal(t, tt.wantPref, got.Breakdown.Preference)
			assert.GreaterOrEqual(t, got.PriorityScore, 0)
			assert.LessOrEqual(t, got.PriorityScore, 100)
		})
	}
}

func TestScore_Monotonic(t *testing.T) {
	for fit := 0; fit < 100; fit += 5 {
		low := Score(interest("l", fit, 500, intPtr(3), 0), 1000)
		high := Score(interest("h", fit+5, 500, intPtr(3), 0), 1000)
		assert.GreaterOrEqual(t, high.PriorityScore, low.PriorityScore, "fit %d", fit)
	}
	for budget := 0.0; budget < 1000; budget += 50 {
		low := Score(interest("l", 60, budget, nil, 0), 1000)
		high := Score(interest("h", 60, budget+50, nil, 0), 1000)
		assert.GreaterOrEqual(t, high.PriorityScore, low.PriorityScore, "budget %v", budget)
	}
	for r := 1; r < 5; r++ {
		low := Score(interest("l", 60, 500, intPtr(r), 0), 1000)
		high := Score(interest("h", 60, 500, intPtr(r+1), 0), 1000)
		assert.GreaterOrEqual(t, high.PriorityScore, low.PriorityScore, "rating %d", r)
	}
}

// ==========================
// TopK Tests
// ==========================

func TestTopK_TieBreaks(t *testing.T) {
	scored := []Scored{
		{Interest: interest("b", 0, 0, nil, time.Minute), PriorityScore: 70},
		{Interest: interest("c", 0, 0, nil, 0), PriorityScore: 70},
		{Interest: interest("a", 0, 0, nil, 0), PriorityScore: 70},
		{Interest: interest("d", 0, 0, nil, time.Hour), PriorityScore: 90},
	}

	got := TopK(scored, 0)

	ids := make([]string, len(got))
	for i, s := range got {
		ids[i] = s.Interest.ID
	}
	assert.Equal(t, []string{"d", "a", "c", "b"}, ids)
	assert.Equal(t, "b", scored[0].Interest.ID, "input must not be reordered")

	assert.Len(t, TopK(scored, 2), 2)
	assert.Len(t, TopK(scored, 10), 4)
	assert.Len(t, TopK(scored, -1), 4)
}

// ==========================
// Resolver Tests
// ==========================

func TestResolver_Recompute(t *testing.T) {
	store := &fakeStore{interests: []models.BusinessInterest{
		interest("a", 80, 1000, nil, 0),
		interest("b", 80, 2000, nil, time.Minute),
		interest("c", 80, 500, nil, 2*time.Minute),
	}}
	resolver := NewResolver(store, logger.NewTestLogger(t))

	ranked, err := resolver.Recompute(context.Background(), "cand-x")
	require.NoError(t, err)

	assert.Equal(t, map[string]int{"a": 62, "b": 77, "c": 55}, store.updated)
	assert.Equal(t, 1, store.calls)
	require.Len(t, ranked, 3)
	assert.Equal(t, "b", ranked[0].Interest.ID)
}

func TestResolver_RecomputeErrors(t *testing.T) {
	t.Run("no interests", func(t *testing.T) {
		store := &fakeStore{}
		ranked, err := NewResolver(store, logger.NewTestLogger(t)).Recompute(context.Background(), "cand-x")
		require.NoError(t, err)
		assert.Nil(t, ranked)
		assert.Equal(t, 0, store.calls)
	})

	t.Run("list fails", func(t *testing.T) {
		store := &fakeStore{listErr: errors.New("db down")}
		_, err := NewResolver(store, logger.NewTestLogger(t)).Recompute(context.Background(), "cand-x")
		assert.Error(t, err)
	})

	t.Run("update fails", func(t *testing.T) {
		store := &fakeStore{
			interests: []models.BusinessInterest{interest("a", 80, 1000, nil, 0)},
			updateErr: errors.New("serialization failure"),
		}
		_, err := NewResolver(store, logger.NewTestLogger(t)).Recompute(context.Background(), "cand-x")
		assert.Error(t, err)
	})
}

func TestResolver_AddInterestRescalesTheSet(t *testing.T) {
	store := &fakeStore{interests: []models.BusinessInterest{
		interest("a", 80, 1000, nil, 0),
	}}
	resolver := NewResolver(store, logger.NewTestLogger(t))

	ranked, err := resolver.AddInterest(context.Background(), &models.BusinessInterest{
		ID:          "b",
		CandidateID: "cand-x",
		MilestoneID: "m-1",
		FitScore:    80,
		OfferBudget: 2000,
	})
	require.NoError(t, err)

	// a used to hold the largest budget; the bigger offer halves its share.
	assert.Equal(t, map[string]int{"a": 62, "b": 77}, store.updated)
	require.Len(t, ranked, 2)
	assert.Equal(t, "b", ranked[0].Interest.ID)
}

func TestResolver_RatePreference(t *testing.T) {
	store := &fakeStore{interests: []models.BusinessInterest{
		interest("a", 80, 1000, nil, 0),
		interest("b", 80, 1000, nil, time.Minute),
	}}
	resolver := NewResolver(store, logger.NewTestLogger(t))

	ranked, err := resolver.RatePreference(context.Background(), "b", 5)
	require.NoError(t, err)

	assert.Equal(t, map[string]int{"a": 77, "b": 92}, store.updated)
	require.Len(t, ranked, 2)
	assert.Equal(t, "b", ranked[0].Interest.ID)
}

func TestResolver_RatePreferenceErrors(t *testing.T) {
	tests := []struct {
		name       string
		interestID string
		rating     int
		wantErr    error
	}{
		{name: "rating below range", interestID: "a", rating: 0, wantErr: ErrInvalidRating},
		{name: "rating above range", interestID: "a", rating: 6, wantErr: ErrInvalidRating},
		{name: "unknown interest", interestID: "ghost", rating: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &fakeStore{interests: []models.BusinessInterest{interest("a", 80, 1000, nil, 0)}}

			_, err := NewResolver(store, logger.NewTestLogger(t)).RatePreference(context.Background(), tt.interestID, tt.rating)
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
			assert.Zero(t, store.calls)
		})
	}
}

func TestResolver_RecomputeFailureKeepsTheRating(t *testing.T) {
	store := &fakeStore{
		interests: []models.BusinessInterest{interest("a", 80, 1000, nil, 0)},
		updateErr: errors.New("deadlock detected"),
	}

	ranked, err := NewResolver(store, logger.NewTestLogger(t)).RatePreference(context.Background(), "a", 4)
	require.NoError(t, err)
	assert.Nil(t, ranked)
	require.NotNil(t, store.interests[0].CandidatePreference)
	assert.Equal(t, 4, *store.interests[0].CandidatePreference)
}
