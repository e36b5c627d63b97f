// internal/store/risk.go
package store

import (
	"context"
	"fmt"

	"talentmatch/internal/models"

	"github.com/lib/pq"
)

func (s *Store) CreateRiskAlert(ctx context.Context, a *models.RiskAlert) error {
	if a.ID == "" {
		a.ID = s.newID()
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO risk_alerts (id, milestone_id, risk_level, delay_percentage, predicted_issues,
			recommendations, backup_required, source)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at`,
		a.ID, a.MilestoneID, string(a.RiskLevel), a.DelayPercentage,
		pq.Array(emptyIfNil(a.PredictedIssues)), pq.Array(emptyIfNil(a.Recommendations)),
		a.BackupRequired, string(a.Source),
	).Scan(&a.CreatedAt)
	if err != nil {
		return fmt.Errorf("create risk alert: %w", err)
	}
	return nil
}

func (s *Store) ListRiskAlerts(ctx context.Context, milestoneID string) ([]models.RiskAlert, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, milestone_id, risk_level, delay_percentage, predicted_issues, recommendations,
			backup_required, source, created_at
		FROM risk_alerts WHERE milestone_id = $1 ORDER BY created_at DESC`, milestoneID)
	if err != nil {
		return nil, fmt.Errorf("list risk alerts: %w", err)
	}
	defer rows.Close()

	var out []models.RiskAlert
	for rows.Next() {
		var (
			a             models.RiskAlert
			level, source string
		)
		if err := rows.Scan(&a.ID, &a.MilestoneID, &level, &a.DelayPercentage,
			pq.Array(&a.PredictedIssues), pq.Array(&a.Recommendations),
			&a.BackupRequired, &source, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan risk alert: %w", err)
		}
		a.RiskLevel = models.RiskLevel(level)
		a.Source = models.ScoreSource(source)
		out = append(out, a)
	}
	return out, rows.Err()
}
