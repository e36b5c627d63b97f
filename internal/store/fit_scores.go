// internal/store/fit_scores.go
package store

import (
	"context"
	"fmt"
	"strings"

	"talentmatch/internal/models"
)

// MinRankedScore is the floor for TopCandidatesForMilestone.
const MinRankedScore = 50

// UpsertFitScore writes the single score row of a (candidate, milestone) pair.
// Concurrent writers race on one statement, so the last write wins.
func (s *Store) UpsertFitScore(ctx context.Context, fs *models.FitScore) error {
	if fs.ID == "" {
		fs.ID = s.newID()
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO fit_scores (id, candidate_id, milestone_id, score, skill_overlap,
			experience_match, soft_skill_relevance, reasoning, source)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (candidate_id, milestone_id) DO UPDATE SET
			score = EXCLUDED.score,
			skill_overlap = EXCLUDED.skill_overlap,
			experience_match = EXCLUDED.experience_match,
			soft_skill_relevance = EXCLUDED.soft_skill_relevance,
			reasoning = EXCLUDED.reasoning,
			source = EXCLUDED.source,
			updated_at = now()
		RETURNING id, created_at, updated_at`,
		fs.ID, fs.CandidateID, fs.MilestoneID, fs.Score, fs.SkillOverlap,
		fs.ExperienceMatch, fs.SoftSkillRelevance, fs.Reasoning, string(fs.Source),
	).Scan(&fs.ID, &fs.CreatedAt, &fs.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert fit score: %w", err)
	}
	return nil
}

// TopCandidatesForMilestone returns up to n candidates scoring at least
// MinRankedScore, best first.
func (s *Store) TopCandidatesForMilestone(ctx context.Context, milestoneID string, n int) ([]models.RankedCandidate, error) {
	if n <= 0 {
		n = 10
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT f.id, f.candidate_id, f.milestone_id, f.score, f.skill_overlap, f.experience_match,
			f.soft_skill_relevance, f.reasoning, f.source, f.created_at, f.updated_at,
			`+qualify("c", candidateColumns)+`
		FROM fit_scores f
		JOIN candidates c ON c.id = f.candidate_id
		WHERE f.milestone_id = $1 AND f.score >= $2
		ORDER BY f.score DESC, f.updated_at ASC
		LIMIT $3`, milestoneID, MinRankedScore, n)
	if err != nil {
		return nil, fmt.Errorf("top candidates: %w", err)
	}
	defer rows.Close()

	var out []models.RankedCandidate
	for rows.Next() {
		var (
			fs     models.FitScore
			source string
		)
		cand, err := scanCandidate(prefixScanner{rows: rows, prefix: []interface{}{
			&fs.ID, &fs.CandidateID, &fs.MilestoneID, &fs.Score, &fs.SkillOverlap, &fs.ExperienceMatch,
			&fs.SoftSkillRelevance, &fs.Reasoning, &source, &fs.CreatedAt, &fs.UpdatedAt,
		}})
		if err != nil {
			return nil, fmt.Errorf("scan ranked candidate: %w", err)
		}
		fs.Source = models.ScoreSource(source)
		out = append(out, models.RankedCandidate{Candidate: *cand, FitScore: fs})
	}
	return out, rows.Err()
}

// prefixScanner lets a row scanner for one entity read the tail of a joined row.
type prefixScanner struct {
	rows   scanner
	prefix []interface{}
}

func (p prefixScanner) Scan(dest ...interface{}) error {
	return p.rows.Scan(append(append([]interface{}{}, p.prefix...), dest...)...)
}

func qualify(alias, columns string) string {
	cols := strings.Split(columns, ",")
	for i, c := range cols {
		cols[i] = alias + "." + strings.TrimSpace(c)
	}
	return strings.Join(cols, ", ")
}
