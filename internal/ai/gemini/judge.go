package gemini

import (
	"context"
	"encoding/json"
	"math"
	"strings"
	"unicode/utf8"

	"talentmatch/internal/ai"
	"talentmatch/internal/common/errors"
	"talentmatch/internal/common/logger"
	"talentmatch/internal/common/metrics"
	"talentmatch/internal/common/validation"
	"talentmatch/internal/models"
)

const (
	providerName        = "gemini"
	defaultMaxLogLength = 200
)

type contentGenerator interface {
	GenerateContent(ctx context.Context, prompt string) (string, error)
	Model() string
}

// Judge answers the ai.Judge contract by prompting Gemini for JSON, validating
// it against the response schemas, and decoding it.
type Judge struct {
	generator contentGenerator
	logger    logger.Logger
	maxLogLen int
}

var _ ai.Judge = (*Judge)(nil)

func NewJudge(generator contentGenerator, log logger.Logger, maxLogLength int) *Judge {
	if maxLogLength <= 0 {
		maxLogLength = defaultMaxLogLength
	}
	return &Judge{
		generator: generator,
		logger:    log.WithFields(logger.AIFields(providerName, generator.Model())),
		maxLogLen: maxLogLength,
	}
}

type skillMapResponse struct {
	RequiredSkills  []string `json:"requiredSkills"`
	ExperienceLevel string   `json:"experienceLevel"`
	SoftSkills      []string `json:"softSkills"`
}

type cvResponse struct {
	Skills          []string `json:"skills"`
	Experience      string   `json:"experience"`
	Education       string   `json:"education"`
	YearsExperience float64  `json:"yearsExperience"`
	Summary         string   `json:"summary"`
}

type fitResponse struct {
	Score              float64 `json:"score"`
	SkillOverlap       float64 `json:"skillOverlap"`
	ExperienceMatch    float64 `json:"experienceMatch"`
	SoftSkillRelevance float64 `json:"softSkillRelevance"`
	Reasoning          string  `json:"reasoning"`
}

type riskResponse struct {
	RiskLevel       string   `json:"risk_level"`
	DelayPercentage float64  `json:"delay_percentage"`
	PredictedIssues []string `json:"predicted_issues"`
	Recommendations []string `json:"recommendations"`
	BackupRequired  bool     `json:"backup_required"`
}

func (j *Judge) GenerateSkillMap(ctx context.Context, name, description string) (*models.SkillMap, error) {
	var out skillMapResponse
	if err := j.ask(ctx, "generate_skill_map", buildSkillMapPrompt(name, description), validation.SchemaSkillMapResponse, &out); err != nil {
		return nil, err
	}
	return &models.SkillMap{
		RequiredSkills:  cleanList(out.RequiredSkills),
		ExperienceLevel: strings.ToLower(strings.TrimSpace(out.ExperienceLevel)),
		SoftSkills:      cleanList(out.SoftSkills),
	}, nil
}

func (j *Judge) AnalyzeCV(ctx context.Context, text string) (*models.CVAnalysis, error) {
	var out cvResponse
	if err := j.ask(ctx, "analyze_cv", buildCVPrompt(text), validation.SchemaCVAnalysisResponse, &out); err != nil {
		return nil, err
	}
	return &models.CVAnalysis{
		Skills:          cleanList(out.Skills),
		Experience:      strings.TrimSpace(out.Experience),
		Education:       strings.TrimSpace(out.Education),
		YearsExperience: int(math.Round(out.YearsExperience)),
		Summary:         strings.TrimSpace(out.Summary),
	}, nil
}

// CalculateFitScore rounds the judge's numbers but leaves range clamping to the caller.
func (j *Judge) CalculateFitScore(ctx context.Context, skills []string, experience string, skillMap models.SkillMap) (*models.FitAnalysis, error) {
	prompt := buildFitPrompt(skills, experience, skillMap.RequiredSkills, skillMap.ExperienceLevel, skillMap.SoftSkills)

	var out fitResponse
	if err := j.ask(ctx, "calculate_fit_score", prompt, validation.SchemaFitResponse, &out); err != nil {
		return nil, err
	}
	return &models.FitAnalysis{
		Score:              int(math.Round(out.Score)),
		SkillOverlap:       int(math.Round(out.SkillOverlap)),
		ExperienceMatch:    int(math.Round(out.ExperienceMatch)),
		SoftSkillRelevance: int(math.Round(out.SoftSkillRelevance)),
		Reasoning:          strings.TrimSpace(out.Reasoning),
	}, nil
}

func (j *Judge) PredictRisk(ctx context.Context, in ai.RiskInput) (*models.RiskPrediction, error) {
	prompt := buildRiskPrompt(in.Name, in.Description, in.DelayPercentage, in.EstimatedHours)

	var out riskResponse
	if err := j.ask(ctx, "predict_risk", prompt, validation.SchemaRiskResponse, &out); err != nil {
		return nil, err
	}
	return &models.RiskPrediction{
		RiskLevel:       models.RiskLevel(out.RiskLevel),
		DelayPercentage: int(math.Round(out.DelayPercentage)),
		PredictedIssues: cleanList(out.PredictedIssues),
		Recommendations: cleanList(out.Recommendations),
		BackupRequired:  out.BackupRequired,
	}, nil
}

func (j *Judge) ask(ctx context.Context, operation, prompt, schema string, dst interface{}) error {
	log := j.logger.WithFields(map[string]interface{}{"operation": operation})
	log.Debug("gemini generate content request", map[string]interface{}{
		"prompt_length":  utf8.RuneCountInString(prompt),
		"prompt_preview": logger.TruncateForLog(prompt, j.maxLogLen),
	})

	raw, err := j.generator.GenerateContent(ctx, prompt)
	if err != nil {
		metrics.AICalls.WithLabelValues(operation, "error").Inc()
		return err
	}

	log.Debug("gemini generate content response", map[string]interface{}{
		"response_length":  utf8.RuneCountInString(raw),
		"response_preview": logger.TruncateForLog(raw, j.maxLogLen),
	})

	if err := decode(raw, schema, dst); err != nil {
		metrics.AICalls.WithLabelValues(operation, "malformed").Inc()
		return errors.NewAIMalformedOutputError(operation, err.Error())
	}

	metrics.AICalls.WithLabelValues(operation, "ok").Inc()
	return nil
}

type decodeError string

func (e decodeError) Error() string { return string(e) }

func decode(raw, schema string, dst interface{}) error {
	doc := []byte(extractJSON(raw))

	res, err := validation.ValidateJSON(schema, doc)
	if err != nil {
		return err
	}
	if !res.Valid {
		return decodeError(res.Error())
	}
	return json.Unmarshal(doc, dst)
}

// extractJSON strips markdown fences and any prose around the outermost object.
func extractJSON(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```")
		if idx := strings.LastIndex(raw, "```"); idx != -1 {
			raw = raw[:idx]
		}
	}
	raw = strings.TrimSpace(raw)

	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1]
	}
	return raw
}

func cleanList(values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		key := strings.ToLower(v)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, v)
	}
	return out
}
