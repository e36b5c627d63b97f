package gemini

import (
	"fmt"
	"strings"
)

const skillMapPrompt = `You are a technical recruiter. Extract the skill requirements of this project milestone.

Milestone: %s
Description: %s

Respond with JSON only:
{"requiredSkills": ["..."], "experienceLevel": "entry|junior|mid|senior|lead|expert", "softSkills": ["..."]}`

const cvPrompt = `Analyze the following CV and extract structured information.

CV:
%s

Respond with JSON only:
{"skills": ["..."], "experience": "...", "education": "...", "yearsExperience": 0, "summary": "..."}`

const fitPrompt = `Rate how well a candidate fits a milestone. Every score is 0-100.

Candidate skills: %s
Candidate experience: %s

Required skills: %s
Required experience level: %s
Soft skills: %s

Respond with JSON only:
{"score": 0, "skillOverlap": 0, "experienceMatch": 0, "softSkillRelevance": 0, "reasoning": "..."}`

const riskPrompt = `Predict the delivery risk of this milestone.

Milestone: %s
Description: %s
Current delay: %d%%
Estimated hours: %d

Respond with JSON only:
{"risk_level": "low|medium|high", "delay_percentage": 0, "predicted_issues": ["..."], "recommendations": ["..."], "backup_required": false}`

func buildSkillMapPrompt(name, description string) string {
	return fmt.Sprintf(skillMapPrompt, name, orNone(description))
}

func buildCVPrompt(text string) string {
	return fmt.Sprintf(cvPrompt, text)
}

func buildFitPrompt(skills []string, experience string, required []string, level string, soft []string) string {
	return fmt.Sprintf(fitPrompt, list(skills), orNone(experience), list(required), orNone(level), list(soft))
}

func buildRiskPrompt(name, description string, delay, hours int) string {
	return fmt.Sprintf(riskPrompt, name, orNone(description), delay, hours)
}

func list(values []string) string {
	if len(values) == 0 {
		return "none"
	}
	return strings.Join(values, ", ")
}

func orNone(s string) string {
	if s = strings.TrimSpace(s); s == "" {
		return "none"
	}
	return s
}
