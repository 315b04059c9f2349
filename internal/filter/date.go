package filter

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

const recentWindow = 60 * 24 * time.Hour

var (
	isoDateRegex   = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}`)
	slashDateRegex = regexp.MustCompile(`^(\d{1,2})/(\d{1,2})/(\d{4})`)
	relativeRegex  = regexp.MustCompile(`(\d+)\s*\+?\s*(minute|min|hour|heure|h|day|jour|j|week|semaine|month|mois)s?\b`)
	yearOnlyRegex  = regexp.MustCompile(`\b(20\d{2})\b`)
)

// ParsePostedDate turns a listing's date label into a time. Supports ISO dates,
// dd/mm/yyyy, and relative labels ("3 days ago", "il y a 2 jours", "today").
func ParsePostedDate(label string, now time.Time) (time.Time, bool) {
	s := normalizeText(label)
	if s == "" || s == "n/a" {
		return time.Time{}, false
	}

	//Case 1: ISO format "2026-01-27" or 2026-01-27T...
	if isoDateRegex.MatchString(s) {
		if t, err := time.Parse("2006-01-02", s[:10]); err == nil {
			return t, true
		}
	}

	//case 2: dd/mm/yyyy
	if m := slashDateRegex.FindStringSubmatch(s); m != nil {
		day, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		year, _ := strconv.Atoi(m[3])
		if month >= 1 && month <= 12 && day >= 1 && day <= 31 {
			return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC), true
		}
	}

	//case 3: relative labels
	switch {
	case strings.Contains(s, "just now"), strings.Contains(s, "today"), strings.Contains(s, "aujourd'hui"), strings.Contains(s, "a l'instant"):
		return now, true
	case strings.Contains(s, "yesterday"), strings.Contains(s, "hier"):
		return now.Add(-24 * time.Hour), true
	}
	if m := relativeRegex.FindStringSubmatch(s); m != nil {
		n, _ := strconv.Atoi(m[1])
		var unit time.Duration
		switch m[2] {
		case "minute", "min":
			unit = time.Minute
		case "hour", "heure", "h":
			unit = time.Hour
		case "day", "jour", "j":
			unit = 24 * time.Hour
		case "week", "semaine":
			unit = 7 * 24 * time.Hour
		case "month", "mois":
			unit = 30 * 24 * time.Hour
		}
		return now.Add(-time.Duration(n) * unit), true
	}

	//case 4: year only, pinned to Jan 1st
	if m := yearOnlyRegex.FindStringSubmatch(s); m != nil {
		year, _ := strconv.Atoi(m[1])
		return time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC), true
	}
	return time.Time{}, false
}

// IsRecent reports whether a posting is at most 60 days old. Unknown dates pass.
func IsRecent(label string, now time.Time) bool {
	posted, ok := ParsePostedDate(label, now)
	if !ok {
		return true
	}
	return isWithinWindow(now, posted)
}

func isWithinWindow(now, jobDate time.Time) bool {
	diff := now.Sub(jobDate)
	//reject if older than the window
	if diff > recentWindow {
		return false
	}

	//reject if future date >2 days (timezone issues)
	if diff < -2*24*time.Hour {
		return false
	}
	return true
}
