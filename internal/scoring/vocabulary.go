package scoring

import (
	"regexp"
	"strconv"
	"strings"
)

type term struct {
	name    string
	aliases []string
}

// knownSkills is the vocabulary the fallback scans milestone and CV text for.
var knownSkills = []term{
	{"go", []string{"golang"}},
	{"python", nil},
	{"java", nil},
	{"javascript", []string{"js"}},
	{"typescript", []string{"ts"}},
	{"react", []string{"react.js", "reactjs"}},
	{"vue", []string{"vue.js", "vuejs"}},
	{"angular", nil},
	{"node.js", []string{"nodejs", "node"}},
	{"php", nil},
	{"ruby", []string{"rails", "ruby on rails"}},
	{"c#", []string{"dotnet"}},
	{"rust", nil},
	{"kotlin", nil},
	{"swift", nil},
	{"sql", nil},
	{"postgres", []string{"postgresql"}},
	{"mysql", nil},
	{"mongodb", []string{"mongo"}},
	{"redis", nil},
	{"elasticsearch", nil},
	{"kafka", nil},
	{"graphql", nil},
	{"rest api", []string{"restful"}},
	{"grpc", nil},
	{"microservices", nil},
	{"docker", nil},
	{"kubernetes", []string{"k8s"}},
	{"terraform", nil},
	{"aws", nil},
	{"azure", nil},
	{"gcp", []string{"google cloud"}},
	{"ci/cd", []string{"cicd"}},
	{"git", nil},
	{"linux", nil},
	{"machine learning", []string{"ml"}},
	{"data science", nil},
	{"devops", nil},
	{"figma", nil},
	{"html", nil},
	{"css", nil},
}

var knownSoftSkills = []term{
	{"communication", []string{"communicator"}},
	{"leadership", []string{"leading teams"}},
	{"teamwork", []string{"team player", "collaboration", "collaborative"}},
	{"problem solving", []string{"problem-solving", "problem solver"}},
	{"mentoring", []string{"mentorship", "coaching"}},
	{"ownership", []string{"accountability"}},
	{"time management", []string{"prioritization"}},
	{"adaptability", []string{"flexibility"}},
}

// Experience levels, ordered.
var levels = []string{"entry", "junior", "mid", "senior", "lead", "expert"}

var levelKeywords = map[string][]string{
	"entry":  {"entry", "entry-level", "intern", "internship", "graduate", "trainee"},
	"junior": {"junior", "jr"},
	"mid":    {"mid", "mid-level", "intermediate"},
	"senior": {"senior", "sr"},
	"lead":   {"lead", "staff", "team lead", "tech lead", "head of"},
	"expert": {"expert", "principal", "architect", "distinguished"},
}

var yearsPattern = regexp.MustCompile(`(\d{1,2})\s*\+?\s*(?:years|year|yrs|yr)\b`)

// normalizeText lowercases s and collapses it into space separated tokens,
// padded so that " term " lookups match whole words only.
func normalizeText(s string) string {
	s = strings.ToLower(s)
	fields := strings.FieldsFunc(s, func(r rune) bool {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return false
		case r == '+', r == '#', r == '.', r == '/', r == '-':
			return false
		}
		return true
	})
	for i, f := range fields {
		fields[i] = strings.Trim(f, ".-")
	}
	return " " + strings.Join(fields, " ") + " "
}

func containsTerm(normalized, phrase string) bool {
	return strings.Contains(normalized, " "+phrase+" ")
}

func scanTerms(text string, vocabulary []term) []string {
	normalized := normalizeText(text)
	var found []string
	for _, t := range vocabulary {
		if containsTerm(normalized, t.name) {
			found = append(found, t.name)
			continue
		}
		for _, alias := range t.aliases {
			if containsTerm(normalized, alias) {
				found = append(found, t.name)
				break
			}
		}
	}
	return found
}

func levelOrdinal(level string) int {
	level = strings.ToLower(strings.TrimSpace(level))
	for i, l := range levels {
		if l == level {
			return i
		}
	}
	for i, l := range levels {
		for _, kw := range levelKeywords[l] {
			if level == kw {
				return i
			}
		}
	}
	return -1
}

// extractYears returns the largest "N years" figure in text, or -1.
func extractYears(text string) int {
	best := -1
	for _, m := range yearsPattern.FindAllStringSubmatch(strings.ToLower(text), -1) {
		if n, err := strconv.Atoi(m[1]); err == nil && n > best {
			best = n
		}
	}
	return best
}

func levelForYears(years int) int {
	switch {
	case years < 0:
		return -1
	case years < 1:
		return 0
	case years < 3:
		return 1
	case years < 5:
		return 2
	case years < 8:
		return 3
	case years < 12:
		return 4
	default:
		return 5
	}
}

// inferLevel combines keyword hits and stated years; the higher ordinal wins.
func inferLevel(text string) int {
	normalized := normalizeText(text)
	best := -1
	for i := len(levels) - 1; i >= 0 && best < 0; i-- {
		for _, kw := range levelKeywords[levels[i]] {
			if containsTerm(normalized, kw) {
				best = i
				break
			}
		}
	}
	if byYears := levelForYears(extractYears(text)); byYears > best {
		best = byYears
	}
	return best
}
