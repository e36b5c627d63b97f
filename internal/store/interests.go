// internal/store/interests.go
package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"talentmatch/internal/models"
)

func (s *Store) CreateInterest(ctx context.Context, in *models.BusinessInterest) error {
	if in.ID == "" {
		in.ID = s.newID()
	}
	if in.Status == "" {
		in.Status = models.InterestOpen
	}

	var pref sql.NullInt64
	if in.CandidatePreference != nil {
		pref = sql.NullInt64{Int64: int64(*in.CandidatePreference), Valid: true}
	}

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO business_interests (id, business_id, candidate_id, milestone_id, offer_budget,
			candidate_preference, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at`,
		in.ID, in.BusinessID, in.CandidateID, in.MilestoneID, in.OfferBudget, pref, string(in.Status),
	).Scan(&in.CreatedAt)
	if err != nil {
		return fmt.Errorf("create interest: %w", err)
	}
	return nil
}

// ListOpenInterests returns a candidate's open offers joined with the fit
// score of the candidate on each offer's milestone.
func (s *Store) ListOpenInterests(ctx context.Context, candidateID string) ([]models.BusinessInterest, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT bi.id, bi.business_id, bi.candidate_id, bi.milestone_id, bi.offer_budget,
			bi.candidate_preference, bi.priority_score, bi.status, bi.created_at,
			COALESCE(fs.score, 0)
		FROM business_interests bi
		LEFT JOIN fit_scores fs ON fs.candidate_id = bi.candidate_id AND fs.milestone_id = bi.milestone_id
		WHERE bi.candidate_id = $1 AND bi.status = 'open'
		ORDER BY bi.created_at, bi.id`, candidateID)
	if err != nil {
		return nil, fmt.Errorf("list open interests: %w", err)
	}
	defer rows.Close()

	var out []models.BusinessInterest
	for rows.Next() {
		var (
			in     models.BusinessInterest
			pref   sql.NullInt64
			status string
		)
		if err := rows.Scan(&in.ID, &in.BusinessID, &in.CandidateID, &in.MilestoneID, &in.OfferBudget,
			&pref, &in.PriorityScore, &status, &in.CreatedAt, &in.FitScore); err != nil {
			return nil, fmt.Errorf("scan interest: %w", err)
		}
		if pref.Valid {
			v := int(pref.Int64)
			in.CandidatePreference = &v
		}
		in.Status = models.InterestStatus(status)
		out = append(out, in)
	}
	return out, rows.Err()
}

// UpdateInterestPriorities writes all scores in one transaction so a
// candidate's offers are never half rescaled.
func (s *Store) UpdateInterestPriorities(ctx context.Context, scores map[string]int) error {
	ids := make([]string, 0, len(scores))
	for id := range scores {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	return s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `UPDATE business_interests SET priority_score = $2 WHERE id = $1`)
		if err != nil {
			return fmt.Errorf("prepare priority update: %w", err)
		}
		defer stmt.Close()

		for _, id := range ids {
			if _, err := stmt.ExecContext(ctx, id, scores[id]); err != nil {
				return fmt.Errorf("update priority of interest %s: %w", id, err)
			}
		}
		return nil
	})
}

// SetInterestPreference records the candidate's 1..5 rating of an offer and
// returns the candidate it targets.
func (s *Store) SetInterestPreference(ctx context.Context, interestID string, rating int) (string, error) {
	var candidateID string
	err := s.db.QueryRowContext(ctx,
		`UPDATE business_interests SET candidate_preference = $2 WHERE id = $1 RETURNING candidate_id`,
		interestID, rating).Scan(&candidateID)
	if err != nil {
		return "", notFound(err, "interest", interestID)
	}
	return candidateID, nil
}
