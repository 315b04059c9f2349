package filter

import (
	"math"
	"strings"
)

type MatchType string

const (
	MatchExact   MatchType = "exact"
	MatchSynonym MatchType = "synonym"
	MatchNone    MatchType = "none"
)

// SkillMatch is the outcome for one configured skill.
type SkillMatch struct {
	Skill     string    `json:"skill"`
	MatchType MatchType `json:"match_type"`
	Term      string    `json:"term,omitempty"`     // spelling found in the text
	Conflict  string    `json:"conflict,omitempty"` // term that vetoed the skill
}

// MatchResult is computed on demand and never persisted.
type MatchResult struct {
	Percentage    int          `json:"percentage"`
	MatchedSkills []string     `json:"matched_skills"`
	MissingSkills []string     `json:"missing_skills"`
	Details       []SkillMatch `json:"details"`
}

// MatchSkills checks every configured skill against the job's title and description.
// Matching is whole-word only: exact spelling first, then the synonym table. A
// conflicting term in the text vetoes the skill outright.
func MatchSkills(skills []string, title, description string) MatchResult {
	text := normalizeText(title + " " + description)
	result := MatchResult{
		MatchedSkills: []string{},
		MissingSkills: []string{},
	}

	total := 0
	for _, raw := range skills {
		skill := normalizeText(raw)
		if skill == "" {
			continue
		}
		total++
		m := matchSkill(text, skill)
		m.Skill = raw
		result.Details = append(result.Details, m)
		if m.MatchType == MatchNone {
			result.MissingSkills = append(result.MissingSkills, raw)
		} else {
			result.MatchedSkills = append(result.MatchedSkills, raw)
		}
	}

	if total > 0 {
		result.Percentage = int(math.Round(100 * float64(len(result.MatchedSkills)) / float64(total)))
	}
	return result
}

func matchSkill(text, skill string) SkillMatch {
	if c, ok := hasConflict(text, skill); ok {
		return SkillMatch{MatchType: MatchNone, Conflict: c}
	}
	if containsWord(text, skill) {
		return SkillMatch{MatchType: MatchExact, Term: skill}
	}
	for _, syn := range synonymsOf(skill) {
		if containsWord(text, syn) {
			return SkillMatch{MatchType: MatchSynonym, Term: syn}
		}
	}
	return SkillMatch{MatchType: MatchNone}
}

// MeetsThreshold gates an application on the configured skillMatchThreshold.
func MeetsThreshold(result MatchResult, threshold int) bool {
	return result.Percentage >= threshold
}

// IsBlacklisted reports the first blacklist keyword found in text, using the same
// conflict-aware whole-word rules as skill matching.
func IsBlacklisted(keywords []string, text string) (bool, string) {
	normalized := normalizeText(text)
	for _, raw := range keywords {
		kw := normalizeText(raw)
		if kw == "" {
			continue
		}
		if _, conflict := hasConflict(normalized, kw); conflict {
			continue
		}
		if containsWord(normalized, kw) {
			return true, strings.TrimSpace(raw)
		}
	}
	return false, ""
}
