// Package jira pulls issues from a Jira Cloud project and mirrors them as milestones.
package jira

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"talentmatch/internal/common/config"
)

const pageSize = 50

// Issue is the tracker record a milestone is derived from. Times are seconds.
type Issue struct {
	Key          string
	Summary      string
	Description  string
	Status       string
	TimeEstimate int
	TimeSpent    int
	EpicKey      *string
	SprintID     *string
	SprintName   *string
}

type Sprint struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	State string `json:"state"`
	Goal  string `json:"goal,omitempty"`
}

// StatusError is returned for any non-2xx response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("jira request failed (status %d): %s", e.StatusCode, e.Body)
}

func (e *StatusError) HTTPStatus() int {
	return e.StatusCode
}

type Client struct {
	baseURL    string
	email      string
	apiToken   string
	httpClient *http.Client
}

func NewClient(cfg config.JiraConfig) *Client {
	timeout := time.Duration(cfg.Timeout) * time.Millisecond
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		email:    cfg.Email,
		apiToken: cfg.APIToken,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// WithToken returns a copy of the client authenticating with token.
func (c *Client) WithToken(token string) *Client {
	cp := *c
	cp.apiToken = token
	return &cp
}

type searchResponse struct {
	StartAt    int `json:"startAt"`
	MaxResults int `json:"maxResults"`
	Total      int `json:"total"`
	Issues     []struct {
		Key    string `json:"key"`
		Fields struct {
			Summary     string `json:"summary"`
			Description string `json:"description"`
			Status      struct {
				Name string `json:"name"`
			} `json:"status"`
			TimeOriginalEstimate *int `json:"timeoriginalestimate"`
			TimeSpent            *int `json:"timespent"`
			Parent               *struct {
				Key string `json:"key"`
			} `json:"parent"`
			Sprints []struct {
				ID   int    `json:"id"`
				Name string `json:"name"`
			} `json:"customfield_10020"`
		} `json:"fields"`
	} `json:"issues"`
}

// SearchIssues pages through every issue of the project.
func (c *Client) SearchIssues(ctx context.Context, projectKey string) ([]Issue, error) {
	var issues []Issue
	for startAt := 0; ; {
		q := url.Values{}
		q.Set("jql", fmt.Sprintf("project = %q ORDER BY created ASC", projectKey))
		q.Set("fields", "summary,description,status,timeoriginalestimate,timespent,parent,customfield_10020")
		q.Set("startAt", strconv.Itoa(startAt))
		q.Set("maxResults", strconv.Itoa(pageSize))

		var page searchResponse
		if err := c.get(ctx, "/rest/api/2/search?"+q.Encode(), &page); err != nil {
			return nil, err
		}

		for _, raw := range page.Issues {
			f := raw.Fields
			issue := Issue{
				Key:         raw.Key,
				Summary:     f.Summary,
				Description: f.Description,
				Status:      f.Status.Name,
			}
			if f.TimeOriginalEstimate != nil {
				issue.TimeEstimate = *f.TimeOriginalEstimate
			}
			if f.TimeSpent != nil {
				issue.TimeSpent = *f.TimeSpent
			}
			if f.Parent != nil && f.Parent.Key != "" {
				key := f.Parent.Key
				issue.EpicKey = &key
			}
			if n := len(f.Sprints); n > 0 {
				id, name := strconv.Itoa(f.Sprints[n-1].ID), f.Sprints[n-1].Name
				issue.SprintID, issue.SprintName = &id, &name
			}
			issues = append(issues, issue)
		}

		startAt += len(page.Issues)
		if len(page.Issues) == 0 || startAt >= page.Total {
			return issues, nil
		}
	}
}

// Sprints lists the sprints of an agile board.
func (c *Client) Sprints(ctx context.Context, boardID int) ([]Sprint, error) {
	var page struct {
		Values []Sprint `json:"values"`
	}
	if err := c.get(ctx, fmt.Sprintf("/rest/agile/1.0/board/%d/sprint", boardID), &page); err != nil {
		return nil, err
	}
	return page.Values, nil
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.SetBasicAuth(c.email, c.apiToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
