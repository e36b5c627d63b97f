// internal/store/milestones.go
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"talentmatch/internal/models"
)

// MilestoneColumns is the select list scanMilestone expects, in order.
const MilestoneColumns = `m.id, m.project_id, p.name, m.name, m.description, m.status,
	m.estimated_hours, m.time_spent_hours, m.skill_map,
	m.assigned_candidate_id, m.assignment_status, m.assignment_confirmed_at,
	m.backup_candidate_id, m.backup_assignment_status,
	m.delay_percentage, m.risk_level,
	m.jira_issue_key, m.epic_key, m.sprint_id, m.sprint_name,
	m.created_at, m.updated_at`

const milestoneFrom = ` FROM milestones m JOIN projects p ON p.id = m.project_id`

// ScanMilestone reads one row selected with MilestoneColumns.
func ScanMilestone(row scanner) (*models.Milestone, error) {
	var (
		m                  models.Milestone
		skillMap           []byte
		assigned, backup   sql.NullString
		confirmedAt        sql.NullTime
		riskLevel          sql.NullString
		issueKey, epicKey  sql.NullString
		sprintID, sprintNm sql.NullString
	)

	err := row.Scan(
		&m.ID, &m.ProjectID, &m.ProjectName, &m.Name, &m.Description, &m.Status,
		&m.EstimatedHours, &m.TimeSpentHours, &skillMap,
		&assigned, &m.AssignmentStatus, &confirmedAt,
		&backup, &m.BackupAssignmentStatus,
		&m.DelayPercentage, &riskLevel,
		&issueKey, &epicKey, &sprintID, &sprintNm,
		&m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(skillMap) > 0 && string(skillMap) != "null" {
		var sm models.SkillMap
		if err := json.Unmarshal(skillMap, &sm); err != nil {
			return nil, fmt.Errorf("decode skill map of milestone %s: %w", m.ID, err)
		}
		m.SkillMap = &sm
	}
	m.AssignedCandidateID = stringPtr(assigned)
	m.AssignmentConfirmedAt = timePtr(confirmedAt)
	m.BackupCandidateID = stringPtr(backup)
	if riskLevel.Valid {
		level := models.RiskLevel(riskLevel.String)
		m.RiskLevel = &level
	}
	m.JiraIssueKey = stringPtr(issueKey)
	m.EpicKey = stringPtr(epicKey)
	m.SprintID = stringPtr(sprintID)
	m.SprintName = stringPtr(sprintNm)

	return &m, nil
}

func (s *Store) GetMilestone(ctx context.Context, id string) (*models.Milestone, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+MilestoneColumns+milestoneFrom+` WHERE m.id = $1`, id)
	m, err := ScanMilestone(row)
	if err != nil {
		return nil, notFound(err, "milestone", id)
	}
	return m, nil
}

func (s *Store) queryMilestones(ctx context.Context, query string, args ...interface{}) ([]models.Milestone, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Milestone
	for rows.Next() {
		m, err := ScanMilestone(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

// ListMilestonesWithSkillMap returns every milestone that can be scored against.
func (s *Store) ListMilestonesWithSkillMap(ctx context.Context) ([]models.Milestone, error) {
	out, err := s.queryMilestones(ctx, `SELECT `+MilestoneColumns+milestoneFrom+
		` WHERE m.skill_map IS NOT NULL ORDER BY m.created_at`)
	if err != nil {
		return nil, fmt.Errorf("list milestones with skill map: %w", err)
	}
	return out, nil
}

// ListOpenMilestones returns milestones still in flight, for risk sweeps.
func (s *Store) ListOpenMilestones(ctx context.Context) ([]models.Milestone, error) {
	out, err := s.queryMilestones(ctx, `SELECT `+MilestoneColumns+milestoneFrom+
		` WHERE m.status <> 'completed' ORDER BY m.created_at`)
	if err != nil {
		return nil, fmt.Errorf("list open milestones: %w", err)
	}
	return out, nil
}

func (s *Store) ListProjectMilestones(ctx context.Context, projectID string) ([]models.Milestone, error) {
	out, err := s.queryMilestones(ctx, `SELECT `+MilestoneColumns+milestoneFrom+
		` WHERE m.project_id = $1 ORDER BY m.created_at`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list project milestones: %w", err)
	}
	return out, nil
}

func (s *Store) CreateMilestone(ctx context.Context, m *models.Milestone) error {
	if m.ID == "" {
		m.ID = s.newID()
	}
	if m.Status == "" {
		m.Status = models.MilestonePending
	}
	skillMap, err := encodeSkillMap(m.SkillMap)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO milestones (id, project_id, name, description, status, estimated_hours, skill_map)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		m.ID, m.ProjectID, m.Name, m.Description, m.Status, m.EstimatedHours, skillMap,
	)
	if err != nil {
		return fmt.Errorf("create milestone: %w", err)
	}
	return nil
}

// IssueMilestone is the tracker-derived part of a milestone.
type IssueMilestone struct {
	ProjectID       string
	IssueKey        string
	Name            string
	Description     string
	Status          models.MilestoneStatus
	EstimatedHours  int
	TimeSpentHours  int
	DelayPercentage int
	EpicKey         *string
	SprintID        *string
	SprintName      *string
}

// UpsertMilestoneByIssueKey creates or refreshes the milestone tracking an
// issue. Assignment and skill map columns are never touched by a resync.
func (s *Store) UpsertMilestoneByIssueKey(ctx context.Context, in IssueMilestone) (id string, created bool, err error) {
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO milestones (id, project_id, jira_issue_key, name, description, status,
			estimated_hours, time_spent_hours, delay_percentage, epic_key, sprint_id, sprint_name)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (project_id, jira_issue_key) WHERE jira_issue_key IS NOT NULL DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			status = EXCLUDED.status,
			estimated_hours = EXCLUDED.estimated_hours,
			time_spent_hours = EXCLUDED.time_spent_hours,
			delay_percentage = EXCLUDED.delay_percentage,
			epic_key = EXCLUDED.epic_key,
			sprint_id = EXCLUDED.sprint_id,
			sprint_name = EXCLUDED.sprint_name,
			updated_at = now()
		RETURNING id, (xmax = 0) AS inserted`,
		s.newID(), in.ProjectID, in.IssueKey, in.Name, in.Description, in.Status,
		in.EstimatedHours, in.TimeSpentHours, in.DelayPercentage,
		nullString(in.EpicKey), nullString(in.SprintID), nullString(in.SprintName),
	).Scan(&id, &created)
	if err != nil {
		return "", false, fmt.Errorf("upsert milestone %s: %w", in.IssueKey, err)
	}
	return id, created, nil
}

func (s *Store) UpdateSkillMap(ctx context.Context, milestoneID string, skillMap models.SkillMap) error {
	data, err := encodeSkillMap(&skillMap)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE milestones SET skill_map = $2, updated_at = now() WHERE id = $1`, milestoneID, data)
	if err != nil {
		return fmt.Errorf("update skill map: %w", err)
	}
	return expectOne(res, "milestone", milestoneID)
}

func (s *Store) UpdateRiskLevel(ctx context.Context, milestoneID string, level models.RiskLevel) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE milestones SET risk_level = $2, updated_at = now() WHERE id = $1`, milestoneID, string(level))
	if err != nil {
		return fmt.Errorf("update risk level: %w", err)
	}
	return expectOne(res, "milestone", milestoneID)
}

func encodeSkillMap(sm *models.SkillMap) (interface{}, error) {
	if sm == nil {
		return nil, nil
	}
	data, err := json.Marshal(sm)
	if err != nil {
		return nil, fmt.Errorf("encode skill map: %w", err)
	}
	return data, nil
}

func expectOne(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s %s", ErrNotFound, entity, id)
	}
	return nil
}
