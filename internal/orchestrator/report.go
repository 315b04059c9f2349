package orchestrator

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"go-jobpilot/internal/automator"
	"go-jobpilot/internal/models"
)

// JobResult is the outcome of one processed job.
type JobResult struct {
	JobID         string               `json:"job_id,omitempty"`
	AttemptID     string               `json:"attempt_id,omitempty"`
	Title         string               `json:"title"`
	Company       string               `json:"company"`
	URL           string               `json:"url"`
	MatchScore    int                  `json:"match_score"`
	SkillMatch    int                  `json:"skill_match"`
	Outcome       automator.Outcome    `json:"outcome"`
	Reason        models.FailureReason `json:"reason,omitempty"`
	Message       string               `json:"message,omitempty"`
	ScreenshotRef string               `json:"screenshot_ref,omitempty"`
	Retryable     bool                 `json:"retryable,omitempty"`
	PersistError  string               `json:"persist_error,omitempty"`
}

type Report struct {
	RunID                 string        `json:"run_id"`
	ConfigID              string        `json:"config_id"`
	DryRun                bool          `json:"dry_run"`
	StartedAt             time.Time     `json:"started_at"`
	TotalJobsFound        int           `json:"total_jobs_found"`
	Eligible              int           `json:"eligible"`
	ApplicationsSubmitted int           `json:"applications_submitted"`
	Rehearsed             int           `json:"rehearsed"`
	Failed                int           `json:"failed"`
	Skipped               int           `json:"skipped"`
	Results               []JobResult   `json:"results"`
	Duration              time.Duration `json:"duration"`
	Errors                []string      `json:"errors,omitempty"`
	AuditPath             string        `json:"audit_path,omitempty"`
}

func (r *Report) add(res JobResult) {
	r.Results = append(r.Results, res)
	switch res.Outcome {
	case automator.OutcomeApplied, automator.OutcomeUncertain:
		r.ApplicationsSubmitted++
	case automator.OutcomeRehearsed:
		r.Rehearsed++
	default:
		r.Failed++
	}
	if res.PersistError != "" {
		r.Errors = append(r.Errors, fmt.Sprintf("%s: %s", res.URL, res.PersistError))
	}
}

// RunAll runs several configurations concurrently, at most parallel at a time.
// Every request gets its own browser session and progress record. Reports come
// back in request order; the error is the first run failure, the other runs
// still complete.
func (o *Orchestrator) RunAll(ctx context.Context, reqs []RunRequest, parallel int) ([]*Report, error) {
	reports := make([]*Report, len(reqs))
	var g errgroup.Group
	if parallel > 0 {
		g.SetLimit(parallel)
	}
	for i, req := range reqs {
		g.Go(func() error {
			report, err := o.Run(ctx, req)
			reports[i] = report
			if err != nil {
				return fmt.Errorf("config %s: %w", req.ConfigID, err)
			}
			return nil
		})
	}
	return reports, g.Wait()
}
