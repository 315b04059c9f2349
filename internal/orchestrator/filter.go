package orchestrator

import (
	"strings"

	"go-jobpilot/internal/audit"
	"go-jobpilot/internal/filter"
	"go-jobpilot/internal/models"
)

// eligible keeps search order and drops listings the configuration excludes.
// Unknown salaries pass the salary gate.
func (o *Orchestrator) eligible(cfg *models.AutomationConfig, listings []models.JobListing, auditLog *audit.Log) []candidate {
	now := o.now()
	out := make([]candidate, 0, len(listings))
	for _, l := range listings {
		text := strings.Join([]string{l.Title, l.Company, l.Description}, " ")
		if hit, kw := filter.IsBlacklisted(cfg.BlacklistKeywords, text); hit {
			auditLog.Count("filtered.blacklist")
			auditLog.Info("filter.blacklist", map[string]any{"url": l.URL, "keyword": kw})
			continue
		}
		if cfg.RemoteOnly && !l.Remote {
			auditLog.Count("filtered.remote")
			continue
		}
		if cfg.SalaryMin > 0 && l.SalaryMax > 0 && l.SalaryMax < cfg.SalaryMin {
			auditLog.Count("filtered.salary")
			continue
		}

		match := filter.MatchSkills(cfg.Skills, l.Title, l.Description+" "+strings.Join(l.Tags, " "))
		if !filter.MeetsThreshold(match, cfg.SkillMatchThreshold) {
			auditLog.Count("filtered.skills")
			auditLog.Info("filter.skills", map[string]any{
				"url":        l.URL,
				"percentage": match.Percentage,
				"missing":    match.MissingSkills,
			})
			continue
		}
		out = append(out, candidate{
			listing: l,
			match:   match.Percentage,
			score:   filter.Score(l, cfg.Skills, now),
		})
	}
	return out
}

var coverPlaceholders = []string{"{{title}}", "{{company}}", "{{name}}", "{{location}}"}

// RenderCoverLetter fills the plain placeholders of a cover letter template.
func RenderCoverLetter(template string, job models.JobListing, user *models.UserProfile) string {
	name := ""
	if user != nil {
		name = user.FullName
	}
	values := []string{job.Title, job.Company, name, job.Location}
	pairs := make([]string, 0, 2*len(values))
	for i, p := range coverPlaceholders {
		pairs = append(pairs, p, values[i])
	}
	return strings.TrimSpace(strings.NewReplacer(pairs...).Replace(template))
}
