package models

import "time"

type InterestStatus string

const (
	InterestOpen      InterestStatus = "open"
	InterestAccepted  InterestStatus = "accepted"
	InterestDeclined  InterestStatus = "declined"
	InterestWithdrawn InterestStatus = "withdrawn"
)

// BusinessInterest is one business's live bid for a candidate on a milestone.
type BusinessInterest struct {
	ID                  string         `json:"id"`
	BusinessID          string         `json:"businessId"`
	CandidateID         string         `json:"candidateId"`
	MilestoneID         string         `json:"milestoneId"`
	OfferBudget         float64        `json:"offerBudget"`
	CandidatePreference *int           `json:"candidatePreference,omitempty"`
	PriorityScore       int            `json:"priorityScore"`
	FitScore            int            `json:"fitScore"` // joined from fit_scores, 0 when unscored
	Status              InterestStatus `json:"status"`
	CreatedAt           time.Time      `json:"createdAt"`
}
