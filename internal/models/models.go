package models

import (
	"time"
)

type AttemptStatus string

const (
	StatusApplied AttemptStatus = "APPLIED"
	StatusFailed  AttemptStatus = "FAILED"
)

// AutomationConfig is a user's automation profile for one target site.
// It is edited outside this service and read-only here.
type AutomationConfig struct {
	ID                    string    `json:"id"`
	UserID                string    `json:"user_id"`
	Site                  string    `json:"site"`
	Email                 string    `json:"email"`
	Password              string    `json:"-"`
	Skills                []string  `json:"skills"`
	Locations             []string  `json:"locations"`
	SalaryMin             int       `json:"salary_min"`
	SalaryMax             int       `json:"salary_max"`
	RemoteOnly            bool      `json:"remote_only"`
	MaxApplicationsPerDay int       `json:"max_applications_per_day"`
	CoverLetterTemplate   string    `json:"cover_letter_template"`
	UseCoverLetter        bool      `json:"use_cover_letter"`
	SkillMatchThreshold   int       `json:"skill_match_threshold"`
	BlacklistKeywords     []string  `json:"blacklist_keywords"`
	FallbackPhone         string    `json:"fallback_phone"`
	FallbackPostalCode    string    `json:"fallback_postal_code"`
	FallbackCity          string    `json:"fallback_city"`
	IsActive              bool      `json:"is_active"`
	CreatedAt             time.Time `json:"created_at"`
	UpdatedAt             time.Time `json:"updated_at"`
}

// JobListing is a search-result snapshot taken from the target site.
type JobListing struct {
	ExternalID  string     `json:"external_id"`
	Title       string     `json:"title"`
	Company     string     `json:"company"`
	Location    string     `json:"location"`
	URL         string     `json:"url"`
	Description string     `json:"description"`
	PostedAt    *time.Time `json:"posted_at,omitempty"`
	PostedLabel string     `json:"posted_label,omitempty"` // raw text such as "3 days ago"
	SalaryMin   int        `json:"salary_min,omitempty"`
	SalaryMax   int        `json:"salary_max,omitempty"`
	SalaryText  string     `json:"salary_text,omitempty"`
	Tags        []string   `json:"tags,omitempty"`
	Remote      bool       `json:"remote"`
	Source      string     `json:"source"`
}

// Job is a persisted listing. Records are created or updated by URL.
type Job struct {
	ID         string    `json:"id"`
	JobListing           // snapshot fields
	MatchScore int       `json:"match_score"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// ApplicationAttempt records one outcome of applying to one job. Never mutated once stored.
type ApplicationAttempt struct {
	ID            string        `json:"id"`
	JobID         string        `json:"job_id"`
	UserID        string        `json:"user_id"`
	ConfigID      string        `json:"config_id"`
	Status        AttemptStatus `json:"status"`
	Channel       string        `json:"channel"`
	CoverText     string        `json:"cover_text,omitempty"`
	Notes         string        `json:"notes,omitempty"`
	Reason        FailureReason `json:"reason,omitempty"`
	ScreenshotRef string        `json:"screenshot_ref,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
}
