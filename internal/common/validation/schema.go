// Package validation checks job payloads and AI judge responses against JSON
// schemas before anything downstream trusts them.
package validation

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// Error joins the individual failures into one line.
func (r *ValidationResult) Error() string {
	parts := make([]string, len(r.Errors))
	for i, e := range r.Errors {
		parts[i] = e.Field + ": " + e.Message
	}
	return strings.Join(parts, "; ")
}

// Schema names. Job payload schemas are keyed by job type.
const (
	SchemaCVProcessing        = "cv_processing"
	SchemaFitScoreCalculation = "fit_score_calculation"
	SchemaSkillMapGeneration  = "skill_map_generation"

	SchemaSkillMapResponse   = "ai_skill_map"
	SchemaCVAnalysisResponse = "ai_cv_analysis"
	SchemaFitResponse        = "ai_fit_analysis"
	SchemaRiskResponse       = "ai_risk_prediction"
)

var stringArray = map[string]interface{}{
	"type":  "array",
	"items": map[string]interface{}{"type": "string"},
}

var nonEmptyID = map[string]interface{}{"type": "string", "minLength": 1}

var definitions = map[string]map[string]interface{}{
	SchemaCVProcessing: {
		"type":     "object",
		"required": []interface{}{"candidateId"},
		"properties": map[string]interface{}{
			"candidateId": nonEmptyID,
			"cvText":      map[string]interface{}{"type": "string"},
			"filePath":    map[string]interface{}{"type": "string"},
		},
		"anyOf": []interface{}{
			map[string]interface{}{"required": []interface{}{"cvText"}},
			map[string]interface{}{"required": []interface{}{"filePath"}},
		},
	},
	SchemaFitScoreCalculation: {
		"type":     "object",
		"required": []interface{}{"milestoneId"},
		"properties": map[string]interface{}{
			"milestoneId": nonEmptyID,
			"candidateIds": map[string]interface{}{
				"type":  "array",
				"items": nonEmptyID,
			},
		},
	},
	SchemaSkillMapGeneration: {
		"type":     "object",
		"required": []interface{}{"milestoneId"},
		"properties": map[string]interface{}{
			"milestoneId": nonEmptyID,
		},
	},
	SchemaSkillMapResponse: {
		"type":     "object",
		"required": []interface{}{"requiredSkills", "experienceLevel"},
		"properties": map[string]interface{}{
			"requiredSkills":  stringArray,
			"experienceLevel": map[string]interface{}{"type": "string"},
			"softSkills":      stringArray,
		},
	},
	SchemaCVAnalysisResponse: {
		"type":     "object",
		"required": []interface{}{"skills"},
		"properties": map[string]interface{}{
			"skills":          stringArray,
			"experience":      map[string]interface{}{"type": "string"},
			"education":       map[string]interface{}{"type": "string"},
			"yearsExperience": map[string]interface{}{"type": "number"},
			"summary":         map[string]interface{}{"type": "string"},
		},
	},
	SchemaFitResponse: {
		"type":     "object",
		"required": []interface{}{"score", "skillOverlap", "experienceMatch", "softSkillRelevance"},
		"properties": map[string]interface{}{
			"score":              map[string]interface{}{"type": "number"},
			"skillOverlap":       map[string]interface{}{"type": "number"},
			"experienceMatch":    map[string]interface{}{"type": "number"},
			"softSkillRelevance": map[string]interface{}{"type": "number"},
			"reasoning":          map[string]interface{}{"type": "string"},
		},
	},
	SchemaRiskResponse: {
		"type":     "object",
		"required": []interface{}{"risk_level"},
		"properties": map[string]interface{}{
			"risk_level":       map[string]interface{}{"type": "string", "enum": []interface{}{"low", "medium", "high"}},
			"delay_percentage": map[string]interface{}{"type": "number"},
			"predicted_issues": stringArray,
			"recommendations":  stringArray,
			"backup_required":  map[string]interface{}{"type": "boolean"},
		},
	},
}

var (
	compileOnce sync.Once
	compiled    map[string]*gojsonschema.Schema
	compileErr  error
)

func schemas() (map[string]*gojsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiled = make(map[string]*gojsonschema.Schema, len(definitions))
		for name, def := range definitions {
			s, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(def))
			if err != nil {
				compileErr = fmt.Errorf("compile schema %s: %w", name, err)
				return
			}
			compiled[name] = s
		}
	})
	return compiled, compileErr
}

// Has reports whether a schema with this name is registered.
func Has(name string) bool {
	_, ok := definitions[name]
	return ok
}

// ValidateJSON validates a raw JSON document against the named schema. A
// document that is not JSON at all is reported as a validation failure.
func ValidateJSON(name string, doc []byte) (*ValidationResult, error) {
	all, err := schemas()
	if err != nil {
		return nil, err
	}
	schema, ok := all[name]
	if !ok {
		return nil, fmt.Errorf("unknown schema %q", name)
	}

	if !json.Valid(doc) {
		return &ValidationResult{
			Valid:  false,
			Errors: []ValidationError{{Field: "(root)", Message: "document is not valid JSON", Code: "invalid_json"}},
		}, nil
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return nil, fmt.Errorf("validate %s: %w", name, err)
	}
	return toResult(result), nil
}

// ValidateInput validates an already decoded document.
func ValidateInput(name string, input interface{}) (*ValidationResult, error) {
	doc, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("marshal input: %w", err)
	}
	return ValidateJSON(name, doc)
}

func toResult(r *gojsonschema.Result) *ValidationResult {
	out := &ValidationResult{Valid: r.Valid()}
	for _, desc := range r.Errors() {
		out.Errors = append(out.Errors, ValidationError{
			Field:   desc.Field(),
			Message: desc.Description(),
			Code:    desc.Type(),
		})
	}
	sort.SliceStable(out.Errors, func(i, j int) bool { return out.Errors[i].Field < out.Errors[j].Field })
	return out
}
