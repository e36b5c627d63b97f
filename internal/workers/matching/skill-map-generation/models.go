// internal/workers/matching/skill-map-generation/models.go
package skillmapgeneration

import "talentmatch/internal/models"

type Input struct {
	MilestoneID string `json:"milestoneId"`
}

type Output struct {
	MilestoneID string             `json:"milestoneId"`
	SkillMap    models.SkillMap    `json:"skillMap"`
	Source      models.ScoreSource `json:"source"`
}
