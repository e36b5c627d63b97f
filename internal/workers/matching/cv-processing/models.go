// internal/workers/matching/cv-processing/models.go
package cvprocessing

import "talentmatch/internal/models"

type Input struct {
	CandidateID string `json:"candidateId"`
	CVText      string `json:"cvText,omitempty"`
	FilePath    string `json:"filePath,omitempty"`
}

type Output struct {
	CandidateID     string             `json:"candidateId"`
	Source          models.ScoreSource `json:"source"`
	Skills          []string           `json:"skills"`
	YearsExperience int                `json:"yearsExperience"`
	Indexed         bool               `json:"indexed"`
	Scored          int                `json:"scored"`
	Failed          int                `json:"failed"`
}
