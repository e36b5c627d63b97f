package models

import (
	"encoding/json"
	"time"
)

type Candidate struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Email       string          `json:"email"`
	Skills      []string        `json:"skills"`
	Experience  string          `json:"experience"`
	Education   string          `json:"education"`
	IsAvailable bool            `json:"isAvailable"`
	CVAnalysis  json.RawMessage `json:"cvAnalysis,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// CVAnalysis is what the AI judge (or its fallback) extracts from CV text.
type CVAnalysis struct {
	Skills          []string `json:"skills"`
	Experience      string   `json:"experience"`
	Education       string   `json:"education"`
	YearsExperience int      `json:"yearsExperience"`
	Summary         string   `json:"summary"`
}
