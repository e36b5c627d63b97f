// internal/store/candidates.go
package store

import (
	"context"
	"encoding/json"
	"fmt"

	"talentmatch/internal/models"

	"github.com/lib/pq"
)

const candidateColumns = `id, name, email, skills, experience, education, is_available, cv_analysis, created_at, updated_at`

func scanCandidate(row scanner) (*models.Candidate, error) {
	var (
		c        models.Candidate
		skills   []string
		analysis []byte
	)
	if err := row.Scan(&c.ID, &c.Name, &c.Email, pq.Array(&skills), &c.Experience, &c.Education,
		&c.IsAvailable, &analysis, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	c.Skills = emptyIfNil(skills)
	if len(analysis) > 0 {
		c.CVAnalysis = json.RawMessage(analysis)
	}
	return &c, nil
}

func (s *Store) GetCandidate(ctx context.Context, id string) (*models.Candidate, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+candidateColumns+` FROM candidates WHERE id = $1`, id)
	c, err := scanCandidate(row)
	if err != nil {
		return nil, notFound(err, "candidate", id)
	}
	return c, nil
}

func (s *Store) ListAvailableCandidates(ctx context.Context) ([]models.Candidate, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+candidateColumns+` FROM candidates WHERE is_available = TRUE ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list available candidates: %w", err)
	}
	defer rows.Close()

	var out []models.Candidate
	for rows.Next() {
		c, err := scanCandidate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan candidate: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func (s *Store) CreateCandidate(ctx context.Context, c *models.Candidate) error {
	if c.ID == "" {
		c.ID = s.newID()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO candidates (id, name, email, skills, experience, education, is_available)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		c.ID, c.Name, c.Email, pq.Array(emptyIfNil(c.Skills)), c.Experience, c.Education, c.IsAvailable,
	)
	if err != nil {
		return fmt.Errorf("create candidate: %w", err)
	}
	return nil
}

// UpdateCandidateProfile stores the outcome of CV analysis.
func (s *Store) UpdateCandidateProfile(ctx context.Context, id string, analysis models.CVAnalysis) error {
	raw, err := json.Marshal(analysis)
	if err != nil {
		return fmt.Errorf("encode cv analysis: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE candidates
		SET skills = $2, experience = $3, education = $4, cv_analysis = $5, updated_at = now()
		WHERE id = $1`,
		id, pq.Array(emptyIfNil(analysis.Skills)), analysis.Experience, analysis.Education, raw,
	)
	if err != nil {
		return fmt.Errorf("update candidate profile: %w", err)
	}
	return expectOne(res, "candidate", id)
}
