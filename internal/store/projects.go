// internal/store/projects.go
package store

import (
	"context"
	"database/sql"
	"fmt"

	"talentmatch/internal/models"
)

func (s *Store) GetProject(ctx context.Context, id string) (*models.Project, error) {
	var (
		p       models.Project
		jiraKey sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, business_id, jira_project_key, jira_token_enc, created_at
		FROM projects WHERE id = $1`, id,
	).Scan(&p.ID, &p.Name, &p.BusinessID, &jiraKey, &p.JiraTokenEnc, &p.CreatedAt)
	if err != nil {
		return nil, notFound(err, "project", id)
	}
	p.JiraProjectKey = stringPtr(jiraKey)
	return &p, nil
}

func (s *Store) CreateProject(ctx context.Context, p *models.Project) error {
	if p.ID == "" {
		p.ID = s.newID()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO projects (id, name, business_id, jira_project_key, jira_token_enc)
		VALUES ($1, $2, $3, $4, $5)`,
		p.ID, p.Name, p.BusinessID, nullString(p.JiraProjectKey), p.JiraTokenEnc,
	)
	if err != nil {
		return fmt.Errorf("create project: %w", err)
	}
	return nil
}

// SetJiraCredentials stores the project key and the already encrypted API token.
func (s *Store) SetJiraCredentials(ctx context.Context, projectID, projectKey string, tokenEnc []byte) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE projects SET jira_project_key = $2, jira_token_enc = $3 WHERE id = $1`,
		projectID, projectKey, tokenEnc)
	if err != nil {
		return fmt.Errorf("set jira credentials: %w", err)
	}
	return expectOne(res, "project", projectID)
}
