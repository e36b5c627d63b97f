package models

import "time"

// RiskPrediction is the judge's (or fallback's) view of a milestone's schedule risk.
type RiskPrediction struct {
	RiskLevel       RiskLevel `json:"risk_level"`
	DelayPercentage int       `json:"delay_percentage"`
	PredictedIssues []string  `json:"predicted_issues"`
	Recommendations []string  `json:"recommendations"`
	BackupRequired  bool      `json:"backup_required"`
}

type RiskAlert struct {
	ID          string `json:"id"`
	MilestoneID string `json:"milestoneId"`
	RiskPrediction
	Source    ScoreSource `json:"source"`
	CreatedAt time.Time   `json:"createdAt"`
}
