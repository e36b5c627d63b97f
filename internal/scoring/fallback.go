package scoring

import (
	"fmt"
	"math"
	"strings"

	"talentmatch/internal/ai"
	"talentmatch/internal/models"
)

// Composite weights of the fit score.
const (
	WeightSkillOverlap       = 0.6
	WeightExperienceMatch    = 0.3
	WeightSoftSkillRelevance = 0.1
)

const (
	neutralScore     = 50
	defaultLevel     = "mid"
	maxSummaryLength = 280
	highRiskDelay    = 50
	mediumRiskDelay  = 20
)

// Clamp bounds a score to [0, 100].
func Clamp(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func percent(num, den int) int {
	if den < 1 {
		den = 1
	}
	return Clamp(int(math.Round(100 * float64(num) / float64(den))))
}

func normalizeSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		if v = strings.ToLower(strings.TrimSpace(v)); v != "" {
			set[v] = struct{}{}
		}
	}
	return set
}

func intersect(a, b map[string]struct{}) int {
	n := 0
	for k := range b {
		if _, ok := a[k]; ok {
			n++
		}
	}
	return n
}

// SkillOverlap is the share of required skills the candidate holds, compared
// case and whitespace insensitively.
func SkillOverlap(candidate, required []string) int {
	req := normalizeSet(required)
	return percent(intersect(normalizeSet(candidate), req), len(req))
}

// ExperienceMatch compares the required level with the level inferred from
// the candidate's experience text.
func ExperienceMatch(experience, requiredLevel string) int {
	required := levelOrdinal(requiredLevel)
	actual := inferLevel(experience)
	if required < 0 || actual < 0 {
		return neutralScore
	}

	switch gap := required - actual; {
	case gap <= 0:
		return 100
	case gap == 1:
		return 70
	case gap == 2:
		return 40
	default:
		return 20
	}
}

// SoftSkillRelevance is neutral when there is nothing to compare.
func SoftSkillRelevance(candidate, soft []string) int {
	want := normalizeSet(soft)
	have := normalizeSet(candidate)
	if len(want) == 0 || len(have) == 0 {
		return neutralScore
	}
	return percent(intersect(have, want), len(want))
}

// Composite applies the fit weights and clamps the result.
func Composite(skillOverlap, experienceMatch, softSkillRelevance int) int {
	return Clamp(int(math.Round(
		WeightSkillOverlap*float64(skillOverlap) +
			WeightExperienceMatch*float64(experienceMatch) +
			WeightSoftSkillRelevance*float64(softSkillRelevance),
	)))
}

// FallbackFit scores a candidate without the AI judge.
func FallbackFit(skills []string, experience string, skillMap models.SkillMap) models.FitAnalysis {
	overlap := SkillOverlap(skills, skillMap.RequiredSkills)
	exp := ExperienceMatch(experience, skillMap.ExperienceLevel)
	soft := SoftSkillRelevance(skills, skillMap.SoftSkills)
	reasoning := fmt.Sprintf("Rule-based estimate: %d%% of required skills matched, experience match %d, soft skill relevance %d.",
		overlap, exp, soft)

	return models.FitAnalysis{
		Score:              Composite(overlap, exp, soft),
		SkillOverlap:       overlap,
		ExperienceMatch:    exp,
		SoftSkillRelevance: soft,
		Reasoning:          reasoning,
	}
}

// FallbackSkillMap extracts requirements from the milestone text against the
// known skill vocabulary.
func FallbackSkillMap(name, description string) models.SkillMap {
	text := name + "\n" + description

	level := defaultLevel
	if ord := inferLevel(text); ord >= 0 {
		level = levels[ord]
	}

	return models.SkillMap{
		RequiredSkills:  nonNil(scanTerms(text, knownSkills)),
		ExperienceLevel: level,
		SoftSkills:      nonNil(scanTerms(text, knownSoftSkills)),
	}
}

var educationMarkers = []string{"phd", "ph.d", "doctorate", "master", "msc", "m.sc", "mba", "bachelor", "bsc", "b.sc", "degree", "university", "college"}

// FallbackCVAnalysis scans CV text for known skills, stated years and an education line.
func FallbackCVAnalysis(text string) models.CVAnalysis {
	years := extractYears(text)

	var experience string
	switch {
	case years >= 0:
		experience = fmt.Sprintf("%d years", years)
	default:
		if ord := inferLevel(text); ord >= 0 {
			experience = levels[ord]
		}
	}
	if years < 0 {
		years = 0
	}

	skills := append(scanTerms(text, knownSkills), scanTerms(text, knownSoftSkills)...)

	return models.CVAnalysis{
		Skills:          nonNil(skills),
		Experience:      experience,
		Education:       educationLine(text),
		YearsExperience: years,
		Summary:         summarize(text),
	}
}

func educationLine(text string) string {
	for _, line := range strings.Split(text, "\n") {
		lower := strings.ToLower(line)
		for _, marker := range educationMarkers {
			if strings.Contains(lower, marker) {
				return strings.TrimSpace(line)
			}
		}
	}
	return ""
}

func summarize(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	if len(text) <= maxSummaryLength {
		return text
	}
	cut := text[:maxSummaryLength]
	if idx := strings.LastIndex(cut, " "); idx > 0 {
		cut = cut[:idx]
	}
	return cut + "..."
}

// FallbackRisk grades risk from the delay percentage alone.
func FallbackRisk(in ai.RiskInput) models.RiskPrediction {
	delay := in.DelayPercentage
	if delay < 0 {
		delay = 0
	}

	out := models.RiskPrediction{DelayPercentage: delay, PredictedIssues: []string{}, Recommendations: []string{}}
	switch {
	case delay >= highRiskDelay:
		out.RiskLevel = models.RiskHigh
		out.BackupRequired = true
		out.PredictedIssues = append(out.PredictedIssues, fmt.Sprintf("Milestone is %d%% over its estimate", delay))
		out.Recommendations = append(out.Recommendations, "Activate the backup candidate", "Re-plan the remaining scope")
	case delay >= mediumRiskDelay:
		out.RiskLevel = models.RiskMedium
		out.PredictedIssues = append(out.PredictedIssues, fmt.Sprintf("Milestone is %d%% over its estimate", delay))
		out.Recommendations = append(out.Recommendations, "Confirm a backup candidate is on standby")
	default:
		out.RiskLevel = models.RiskLow
	}
	return out
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
