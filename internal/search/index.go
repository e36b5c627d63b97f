// Package search keeps a skills index of candidates in Elasticsearch.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"talentmatch/internal/common/logger"
	"talentmatch/internal/models"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

const DefaultIndex = "candidates"

var (
	ErrIndexFailed  = errors.New("SEARCH_INDEX_FAILED")
	ErrSearchFailed = errors.New("SEARCH_QUERY_FAILED")
)

type CandidateDocument struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Email           string    `json:"email"`
	Skills          []string  `json:"skills"`
	Experience      string    `json:"experience"`
	Education       string    `json:"education"`
	YearsExperience int       `json:"yearsExperience"`
	Summary         string    `json:"summary,omitempty"`
	IsAvailable     bool      `json:"isAvailable"`
	IndexedAt       time.Time `json:"indexedAt"`
}

type Hit struct {
	CandidateDocument
	Score float64 `json:"score"`
}

type Index struct {
	client *elasticsearch.Client
	index  string
	logger logger.Logger
	now    func() time.Time
}

func NewIndex(client *elasticsearch.Client, index string, log logger.Logger) *Index {
	if index == "" {
		index = DefaultIndex
	}
	return &Index{
		client: client,
		index:  index,
		logger: log.WithFields(map[string]interface{}{"component": "search", "index": index}),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// IndexCandidate upserts the candidate document keyed by candidate id.
func (i *Index) IndexCandidate(ctx context.Context, c models.Candidate, analysis *models.CVAnalysis) error {
	doc := CandidateDocument{
		ID:          c.ID,
		Name:        c.Name,
		Email:       c.Email,
		Skills:      c.Skills,
		Experience:  c.Experience,
		Education:   c.Education,
		IsAvailable: c.IsAvailable,
		IndexedAt:   i.now(),
	}
	if analysis != nil {
		doc.Skills = analysis.Skills
		doc.Experience = analysis.Experience
		doc.Education = analysis.Education
		doc.YearsExperience = analysis.YearsExperience
		doc.Summary = analysis.Summary
	}
	if doc.Skills == nil {
		doc.Skills = []string{}
	}

	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("%w: encode: %v", ErrIndexFailed, err)
	}

	req := esapi.IndexRequest{
		Index:      i.index,
		DocumentID: c.ID,
		Body:       bytes.NewReader(body),
	}
	res, err := req.Do(ctx, i.client)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrIndexFailed, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("%w: %s", ErrIndexFailed, res.String())
	}

	i.logger.Debug("candidate indexed", map[string]interface{}{"candidateId": c.ID, "skills": len(doc.Skills)})
	return nil
}

// SearchBySkills returns available candidates matching any of skills, best match first.
func (i *Index) SearchBySkills(ctx context.Context, skills []string, size int) ([]Hit, error) {
	if len(skills) == 0 {
		return nil, nil
	}
	if size < 1 || size > 100 {
		size = 20
	}

	should := make([]map[string]interface{}, 0, len(skills))
	for _, s := range skills {
		should = append(should, map[string]interface{}{
			"match": map[string]interface{}{"skills": s},
		})
	}
	query := map[string]interface{}{
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"should":               should,
				"minimum_should_match": 1,
				"filter": []map[string]interface{}{
					{"term": map[string]interface{}{"isAvailable": true}},
				},
			},
		},
	}
	body, _ := json.Marshal(query)

	req := esapi.SearchRequest{
		Index: []string{i.index},
		Body:  bytes.NewReader(body),
		Size:  &size,
	}
	res, err := req.Do(ctx, i.client)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSearchFailed, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("%w: %s", ErrSearchFailed, res.String())
	}

	var r struct {
		Hits struct {
			Hits []struct {
				Score  float64           `json:"_score"`
				Source CandidateDocument `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&r); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrSearchFailed, err)
	}

	out := make([]Hit, 0, len(r.Hits.Hits))
	for _, h := range r.Hits.Hits {
		out = append(out, Hit{CandidateDocument: h.Source, Score: h.Score})
	}
	return out, nil
}
