package models

import "time"

type ProgressStatus string

const (
	ProgressStarting  ProgressStatus = "starting"
	ProgressRunning   ProgressStatus = "running"
	ProgressCompleted ProgressStatus = "completed"
	ProgressFailed    ProgressStatus = "failed"
)

// Terminal reports whether the run behind the record has finished.
func (s ProgressStatus) Terminal() bool {
	return s == ProgressCompleted || s == ProgressFailed
}

// ProgressRecord is the live status of one run, keyed by configuration id.
type ProgressRecord struct {
	ConfigID        string         `json:"config_id"`
	RunID           string         `json:"run_id"`
	CurrentJob      int            `json:"current_job"`
	TotalJobs       int            `json:"total_jobs"`
	CurrentJobTitle string         `json:"current_job_title"`
	Status          ProgressStatus `json:"status"`
	SuccessCount    int            `json:"success_count"`
	FailCount       int            `json:"fail_count"`
	Error           string         `json:"error,omitempty"`
	StartedAt       time.Time      `json:"started_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}
