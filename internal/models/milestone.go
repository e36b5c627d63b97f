package models

import "time"

type MilestoneStatus string

const (
	MilestonePending    MilestoneStatus = "pending"
	MilestoneInProgress MilestoneStatus = "in-progress"
	MilestoneCompleted  MilestoneStatus = "completed"
	MilestoneDelayed    MilestoneStatus = "delayed"
)

// AssignmentStatus is the primary-candidate track of a milestone.
type AssignmentStatus string

const (
	AssignmentUnassigned AssignmentStatus = "unassigned"
	AssignmentOffered    AssignmentStatus = "offered"
	AssignmentConfirmed  AssignmentStatus = "confirmed"
	AssignmentActive     AssignmentStatus = "active"
	AssignmentCompleted  AssignmentStatus = "completed"
)

// Committed reports whether the status holds the candidate system-wide.
func (s AssignmentStatus) Committed() bool {
	return s == AssignmentConfirmed || s == AssignmentActive
}

// BackupStatus is the backup-candidate track of a milestone.
type BackupStatus string

const (
	BackupNone    BackupStatus = "none"
	BackupStandby BackupStatus = "standby"
	BackupOffered BackupStatus = "offered"
	BackupActive  BackupStatus = "active"
)

type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// SkillMap is the structured requirement extracted for a milestone.
type SkillMap struct {
	RequiredSkills  []string `json:"requiredSkills"`
	ExperienceLevel string   `json:"experienceLevel"`
	SoftSkills      []string `json:"softSkills"`
}

type Milestone struct {
	ID                     string           `json:"id"`
	ProjectID              string           `json:"projectId"`
	ProjectName            string           `json:"projectName,omitempty"`
	Name                   string           `json:"name"`
	Description            string           `json:"description"`
	Status                 MilestoneStatus  `json:"status"`
	EstimatedHours         int              `json:"estimatedHours"`
	TimeSpentHours         int              `json:"timeSpentHours"`
	SkillMap               *SkillMap        `json:"skillMap,omitempty"`
	AssignedCandidateID    *string          `json:"assignedCandidateId,omitempty"`
	AssignmentStatus       AssignmentStatus `json:"assignmentStatus"`
	AssignmentConfirmedAt  *time.Time       `json:"assignmentConfirmedAt,omitempty"`
	BackupCandidateID      *string          `json:"backupCandidateId,omitempty"`
	BackupAssignmentStatus BackupStatus     `json:"backupAssignmentStatus"`
	DelayPercentage        int              `json:"delayPercentage"`
	RiskLevel              *RiskLevel       `json:"riskLevel,omitempty"`
	JiraIssueKey           *string          `json:"jiraIssueKey,omitempty"`
	EpicKey                *string          `json:"epicKey,omitempty"`
	SprintID               *string          `json:"sprintId,omitempty"`
	SprintName             *string          `json:"sprintName,omitempty"`
	CreatedAt              time.Time        `json:"createdAt"`
	UpdatedAt              time.Time        `json:"updatedAt"`
}

type Project struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	BusinessID     string    `json:"businessId"`
	JiraProjectKey *string   `json:"jiraProjectKey,omitempty"`
	JiraTokenEnc   []byte    `json:"-"`
	CreatedAt      time.Time `json:"createdAt"`
}
