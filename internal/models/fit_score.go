package models

import "time"

// ScoreSource tags whether a result came from the AI judge or the deterministic fallback.
type ScoreSource string

const (
	SourceAI       ScoreSource = "ai"
	SourceFallback ScoreSource = "fallback"
)

// FitAnalysis is the scored match between one candidate and one skill map.
// All integer fields are within [0,100].
type FitAnalysis struct {
	Score              int    `json:"score"`
	SkillOverlap       int    `json:"skillOverlap"`
	ExperienceMatch    int    `json:"experienceMatch"`
	SoftSkillRelevance int    `json:"softSkillRelevance"`
	Reasoning          string `json:"reasoning"`
}

type FitScore struct {
	ID          string `json:"id"`
	CandidateID string `json:"candidateId"`
	MilestoneID string `json:"milestoneId"`
	FitAnalysis
	Source    ScoreSource `json:"source"`
	CreatedAt time.Time   `json:"createdAt"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

// RankedCandidate is a row of the top-candidates query.
type RankedCandidate struct {
	Candidate Candidate `json:"candidate"`
	FitScore  FitScore  `json:"fitScore"`
}
