// internal/priority/priority.go
package priority

import (
	"math"
	"sort"

	"talentmatch/internal/models"
)

const (
	WeightFit        = 0.4
	WeightBudget     = 0.3
	WeightPreference = 0.3

	neutralPreference = 50.0
)

// Breakdown holds the normalized 0..100 components of a priority score.
type Breakdown struct {
	Fit        float64 `json:"fit"`
	Budget     float64 `json:"budget"`
	Preference float64 `json:"preference"`
}

type Scored struct {
	Interest      models.BusinessInterest `json:"interest"`
	PriorityScore int                     `json:"priorityScore"`
	Breakdown     Breakdown               `json:"breakdown"`
}

// Score ranks one offer relative to maxBudget, the largest offer competing for
// the same candidate.
func Score(in models.BusinessInterest, maxBudget float64) Scored {
	fit := math.Min(math.Max(float64(in.FitScore), 0), 100)
	budget := normalizeBudget(in.OfferBudget, maxBudget)
	pref := normalizePreference(in.CandidatePreference)

	score := int(math.Round(WeightFit*fit + WeightBudget*budget + WeightPreference*pref))
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}

	return Scored{
		Interest:      in,
		PriorityScore: score,
		Breakdown:     Breakdown{Fit: fit, Budget: budget, Preference: pref},
	}
}

func normalizeBudget(offer, maxBudget float64) float64 {
	if offer < 0 {
		offer = 0
	}
	if maxBudget <= 0 {
		if offer > 0 {
			return 100
		}
		return 0
	}
	return math.Min(100, 100*offer/maxBudget)
}

func normalizePreference(rating *int) float64 {
	if rating == nil {
		return neutralPreference
	}
	r := *rating
	if r < 1 {
		r = 1
	}
	if r > 5 {
		r = 5
	}
	return float64(r-1) / 4 * 100
}

// ScoreBatch scores every interest against the largest offer in the batch.
func ScoreBatch(interests []models.BusinessInterest) []Scored {
	var maxBudget float64
	for _, in := range interests {
		if in.OfferBudget > maxBudget {
			maxBudget = in.OfferBudget
		}
	}

	out := make([]Scored, len(interests))
	for i, in := range interests {
		out[i] = Score(in, maxBudget)
	}
	return out
}

// TopK orders by priority score, then earliest interest, then id, and keeps
// the first k. k <= 0 keeps everything. The input slice is not modified.
func TopK(scored []Scored, k int) []Scored {
	out := make([]Scored, len(scored))
	copy(out, scored)

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.PriorityScore != b.PriorityScore {
			return a.PriorityScore > b.PriorityScore
		}
		if !a.Interest.CreatedAt.Equal(b.Interest.CreatedAt) {
			return a.Interest.CreatedAt.Before(b.Interest.CreatedAt)
		}
		return a.Interest.ID < b.Interest.ID
	})

	if k > 0 && k < len(out) {
		out = out[:k]
	}
	return out
}
