// internal/priority/resolver.go
package priority

import (
	"context"
	"errors"
	"fmt"

	"talentmatch/internal/common/logger"
	"talentmatch/internal/models"
)

var ErrInvalidRating = errors.New("INTEREST_RATING_OUT_OF_RANGE")

// Store is the persistence the resolver needs.
type Store interface {
	CreateInterest(ctx context.Context, in *models.BusinessInterest) error
	// SetInterestPreference returns the candidate the rated interest targets.
	SetInterestPreference(ctx context.Context, interestID string, rating int) (string, error)
	ListOpenInterests(ctx context.Context, candidateID string) ([]models.BusinessInterest, error)
	UpdateInterestPriorities(ctx context.Context, scores map[string]int) error
}

// Resolver recomputes the priority of every open offer for a candidate
// whenever the competing set or a fit score changes.
type Resolver struct {
	store  Store
	logger logger.Logger
}

func NewResolver(store Store, log logger.Logger) *Resolver {
	return &Resolver{
		store:  store,
		logger: log.WithFields(map[string]interface{}{"component": "priority"}),
	}
}

// Recompute rescales all open interests of the candidate as one set and
// persists the new scores together. The result is ranked.
func (r *Resolver) Recompute(ctx context.Context, candidateID string) ([]Scored, error) {
	interests, err := r.store.ListOpenInterests(ctx, candidateID)
	if err != nil {
		return nil, fmt.Errorf("list open interests: %w", err)
	}
	if len(interests) == 0 {
		return nil, nil
	}

	scored := ScoreBatch(interests)

	updates := make(map[string]int, len(scored))
	for _, s := range scored {
		updates[s.Interest.ID] = s.PriorityScore
	}
	if err := r.store.UpdateInterestPriorities(ctx, updates); err != nil {
		return nil, fmt.Errorf("update interest priorities: %w", err)
	}

	ranked := TopK(scored, 0)
	r.logger.Info("priorities recomputed", map[string]interface{}{
		"candidateId": candidateID,
		"interests":   len(ranked),
		"topInterest": ranked[0].Interest.ID,
		"topScore":    ranked[0].PriorityScore,
	})
	return ranked, nil
}

// AddInterest records a new offer. Budget normalization depends on the whole
// set, so the candidate's other offers are rescaled with it. A failed
// recompute is logged and the offer is kept.
func (r *Resolver) AddInterest(ctx context.Context, in *models.BusinessInterest) ([]Scored, error) {
	if err := r.store.CreateInterest(ctx, in); err != nil {
		return nil, err
	}
	return r.recomputeAfter(ctx, in.CandidateID, "interest created"), nil
}

// RatePreference stores the candidate's 1..5 rating of an offer and rescales
// the candidate's open offers.
func (r *Resolver) RatePreference(ctx context.Context, interestID string, rating int) ([]Scored, error) {
	if rating < 1 || rating > 5 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidRating, rating)
	}
	candidateID, err := r.store.SetInterestPreference(ctx, interestID, rating)
	if err != nil {
		return nil, err
	}
	return r.recomputeAfter(ctx, candidateID, "preference rated"), nil
}

func (r *Resolver) recomputeAfter(ctx context.Context, candidateID, trigger string) []Scored {
	ranked, err := r.Recompute(ctx, candidateID)
	if err != nil {
		r.logger.Warn("priority recompute skipped", map[string]interface{}{
			"candidateId": candidateID,
			"trigger":     trigger,
			"error":       err.Error(),
		})
		return nil
	}
	return ranked
}
