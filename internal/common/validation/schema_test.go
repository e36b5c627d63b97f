package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateJSON_JobPayloads(t *testing.T) {
	tests := []struct {
		name      string
		schema    string
		doc       string
		wantValid bool
		wantField string
	}{
		{"cv with text", SchemaCVProcessing, `{"candidateId":"c1","cvText":"Go developer"}`, true, ""},
		{"cv with file", SchemaCVProcessing, `{"candidateId":"c1","filePath":"/tmp/cv.pdf"}`, true, ""},
		{"cv without source", SchemaCVProcessing, `{"candidateId":"c1"}`, false, ""},
		{"cv missing candidate", SchemaCVProcessing, `{"cvText":"x"}`, false, ""},
		{"cv empty candidate", SchemaCVProcessing, `{"candidateId":"","cvText":"x"}`, false, "candidateId"},
		{"fit with candidates", SchemaFitScoreCalculation, `{"milestoneId":"m1","candidateIds":["a","b"]}`, true, ""},
		{"fit bad candidates", SchemaFitScoreCalculation, `{"milestoneId":"m1","candidateIds":"a"}`, false, "candidateIds"},
		{"skill map", SchemaSkillMapGeneration, `{"milestoneId":"m1"}`, true, ""},
		{"not json", SchemaSkillMapGeneration, `{milestoneId`, false, "(root)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := ValidateJSON(tt.schema, []byte(tt.doc))
			require.NoError(t, err)
			assert.Equal(t, tt.wantValid, res.Valid, res.Error())
			if tt.wantField != "" {
				require.NotEmpty(t, res.Errors)
				assert.Equal(t, tt.wantField, res.Errors[0].Field)
			}
		})
	}
}

func TestValidateJSON_AIResponses(t *testing.T) {
	res, err := ValidateJSON(SchemaFitResponse, []byte(`{"score":72.6,"skillOverlap":80,"experienceMatch":70,"softSkillRelevance":50.4}`))
	require.NoError(t, err)
	assert.True(t, res.Valid)

	res, err = ValidateJSON(SchemaFitResponse, []byte(`{"score":"high"}`))
	require.NoError(t, err)
	assert.False(t, res.Valid)

	res, err = ValidateJSON(SchemaRiskResponse, []byte(`{"risk_level":"severe"}`))
	require.NoError(t, err)
	assert.False(t, res.Valid)

	res, err = ValidateInput(SchemaSkillMapResponse, map[string]interface{}{
		"requiredSkills":  []string{"go"},
		"experienceLevel": "senior",
	})
	require.NoError(t, err)
	assert.True(t, res.Valid)
}

func TestValidateJSON_UnknownSchema(t *testing.T) {
	_, err := ValidateJSON("nope", []byte(`{}`))
	assert.Error(t, err)
	assert.False(t, Has("nope"))
	assert.True(t, Has(SchemaCVProcessing))
}
