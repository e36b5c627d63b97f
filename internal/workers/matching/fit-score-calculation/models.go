// internal/workers/matching/fit-score-calculation/models.go
package fitscorecalculation

import "talentmatch/internal/models"

// Input scores the listed candidates, or every available candidate when
// CandidateIDs is empty.
type Input struct {
	MilestoneID  string   `json:"milestoneId"`
	CandidateIDs []string `json:"candidateIds,omitempty"`
}

type CandidateScore struct {
	CandidateID string             `json:"candidateId"`
	Score       int                `json:"score"`
	Source      models.ScoreSource `json:"source"`
}

type Output struct {
	MilestoneID string           `json:"milestoneId"`
	Scored      int              `json:"scored"`
	Failed      int              `json:"failed"`
	Scores      []CandidateScore `json:"scores"`
}
