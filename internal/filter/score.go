package filter

import (
	"regexp"
	"strings"
	"time"

	"go-jobpilot/internal/models"
)

var (
	roleRegex      = regexp.MustCompile(`(?i)\b(developer|developpeur|engineer|ingenieur|programmer|dev|architect|devops|sre|data scientist|analyst)\b`)
	seniorityRegex = regexp.MustCompile(`(?i)\b(intern|stagiaire|junior|fresher|mid|confirme|senior|lead|principal|staff)\b`)
)

// Weights of the relevance score. The maxima add up to 100.
const (
	roleWeight        = 15
	seniorityWeight   = 10
	skillWeightEach   = 10
	skillWeightCap    = 30
	remoteWeight      = 15
	salaryWeight      = 10
	recencyWeightMax  = 20
	recencyUnknownPts = 5
)

// Score is the single relevance ranking for a listing, in [0,100]. Each factor only
// ever adds points, so improving one factor never lowers the score.
func Score(job models.JobListing, skills []string, now time.Time) int {
	score := 0
	title := normalizeText(job.Title)

	//role & seniority keywords in the title
	if roleRegex.MatchString(title) {
		score += roleWeight
	}
	if seniorityRegex.MatchString(title) {
		score += seniorityWeight
	}

	//skill overlap on tags + title + description, capped
	tagText := strings.Join(job.Tags, " ")
	match := MatchSkills(skills, job.Title+" "+tagText, job.Description)
	skillPts := len(match.MatchedSkills) * skillWeightEach
	if skillPts > skillWeightCap {
		skillPts = skillWeightCap
	}
	score += skillPts

	if job.Remote || containsWord(normalizeText(job.Location+" "+job.Title), "remote") || containsWord(normalizeText(job.Location), "teletravail") {
		score += remoteWeight
	}

	if job.SalaryMin > 0 || job.SalaryMax > 0 || strings.TrimSpace(job.SalaryText) != "" {
		score += salaryWeight
	}

	score += recencyPoints(job, now)

	//score normalizing
	if score > 100 {
		return 100
	}
	if score < 0 {
		return 0
	}
	return score
}

func recencyPoints(job models.JobListing, now time.Time) int {
	var posted time.Time
	switch {
	case job.PostedAt != nil:
		posted = *job.PostedAt
	default:
		t, ok := ParsePostedDate(job.PostedLabel, now)
		if !ok {
			return recencyUnknownPts
		}
		posted = t
	}

	age := now.Sub(posted)
	switch {
	case age <= 24*time.Hour:
		return recencyWeightMax
	case age <= 7*24*time.Hour:
		return 15
	case age <= 14*24*time.Hour:
		return 10
	case age <= 30*24*time.Hour:
		return recencyUnknownPts
	}
	return 0
}
