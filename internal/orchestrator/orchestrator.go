// Load config + user profile
// Open browser session and login
// Search, filter, score, apply within daily quota
// Persist attempts, report progress, flush audit, notify

package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"go-jobpilot/internal/audit"
	"go-jobpilot/internal/automator"
	"go-jobpilot/internal/models"
	"go-jobpilot/internal/pipeline"
	"go-jobpilot/internal/progress"
	"go-jobpilot/utils"
)

// Store is the persistence the orchestrator reads configurations from and
// records attempts into. CreateApplicationAttempt must be atomic per (user, job).
type Store interface {
	GetConfig(ctx context.Context, id string) (*models.AutomationConfig, error)
	GetUserByID(ctx context.Context, id string) (*models.UserProfile, error)
	FindJobByURL(ctx context.Context, url string) (*models.Job, error)
	CreateOrUpdateJob(ctx context.Context, job *models.Job) (string, error)
	CreateApplicationAttempt(ctx context.Context, a *models.ApplicationAttempt) (string, error)
	AttemptExists(ctx context.Context, userID, jobID string) (bool, error)
	CountAppliedSince(ctx context.Context, configID string, since time.Time) (int, error)
}

// SiteAutomator is the browser-driven side of a run. *automator.Automator implements it.
type SiteAutomator interface {
	Login(ctx context.Context, creds automator.Credentials) error
	Search(ctx context.Context, c automator.Criteria) ([]models.JobListing, error)
	ApplyToJob(ctx context.Context, app automator.Application) (*automator.ApplyResult, error)
	Logout(ctx context.Context) error
}

// AutomatorFactory opens a fresh browser session for one run. The returned
// automator owns the session and releases it on Logout.
type AutomatorFactory func(ctx context.Context, cfg *models.AutomationConfig, auditLog *audit.Log) (SiteAutomator, error)

// Notifier receives the report of every finished run.
type Notifier interface {
	NotifyRun(ctx context.Context, report *Report) error
}

type RunRequest struct {
	ConfigID string `json:"configId"`
	// UseRealAutomation false rehearses every application without submitting.
	UseRealAutomation bool `json:"useRealAutomation"`
	// RunID is generated when empty.
	RunID string `json:"runId,omitempty"`
}

type Options struct {
	InterJob utils.Band
	LogsDir  string
}

type Orchestrator struct {
	store    Store
	tracker  *progress.Tracker
	factory  AutomatorFactory
	notifier Notifier
	opts     Options
	log      *zap.Logger

	now   func() time.Time
	pause func(ctx context.Context, b utils.Band) error
}

// New wires a run loop. notifier may be nil.
func New(store Store, tracker *progress.Tracker, factory AutomatorFactory, notifier Notifier, opts Options, log *zap.Logger) *Orchestrator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Orchestrator{
		store:    store,
		tracker:  tracker,
		factory:  factory,
		notifier: notifier,
		opts:     opts,
		log:      log,
		now:      time.Now,
		pause:    utils.RandomDelay,
	}
}

type candidate struct {
	listing models.JobListing
	match   int
	score   int
}

// Run executes one automation run for a configuration. The report is returned
// on every path, covering whatever was attempted before a run-scoped failure.
func (o *Orchestrator) Run(ctx context.Context, req RunRequest) (report *Report, err error) {
	runID := req.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	started := o.now()
	report = &Report{RunID: runID, ConfigID: req.ConfigID, DryRun: !req.UseRealAutomation, StartedAt: started.UTC()}
	auditLog := audit.New(runID, o.log)
	rlog := o.log.With(zap.String("run_id", runID), zap.String("config_id", req.ConfigID))
	rec := models.ProgressRecord{ConfigID: req.ConfigID, RunID: runID, Status: models.ProgressStarting}

	defer func() {
		report.Duration = o.now().Sub(started)
		if err != nil {
			report.Errors = append(report.Errors, err.Error())
			auditLog.Error("run.failed", err, nil)
			rec.Status = models.ProgressFailed
			rec.Error = err.Error()
			o.progress(context.WithoutCancel(ctx), rec, rlog)
			rlog.Error("❌ Run failed", zap.Error(err))
		}
		o.finish(context.WithoutCancel(ctx), report, auditLog, rlog)
	}()

	//load config
	cfg, err := o.loadConfig(ctx, req.ConfigID)
	if err != nil {
		return report, err
	}
	user, err := o.store.GetUserByID(ctx, cfg.UserID)
	if errors.Is(err, models.ErrNotFound) {
		return report, &models.ConfigurationError{ConfigID: cfg.ID, Msg: "user profile not found"}
	}
	if err != nil {
		return report, fmt.Errorf("load user profile: %w", err)
	}
	auditLog.Info("run.start", map[string]any{"config_id": cfg.ID, "site": cfg.Site, "real": req.UseRealAutomation})
	rlog.Info("🚀 Starting run", zap.String("site", cfg.Site), zap.Bool("real", req.UseRealAutomation))
	o.progress(ctx, rec, rlog)

	//browser session
	bot, err := o.factory(ctx, cfg, auditLog)
	if err != nil {
		return report, fmt.Errorf("open browser session: %w", err)
	}
	defer func() {
		if lerr := bot.Logout(context.WithoutCancel(ctx)); lerr != nil {
			rlog.Warn("⚠️ Logout failed", zap.Error(lerr))
		}
	}()

	if err := bot.Login(ctx, automator.Credentials{Email: cfg.Email, Password: cfg.Password}); err != nil {
		return report, err
	}

	//search + filter
	criteria := automator.Criteria{Keywords: cfg.Skills}
	if len(cfg.Locations) > 0 {
		criteria.Location = cfg.Locations[0]
	}
	listings, err := bot.Search(ctx, criteria)
	if err != nil {
		return report, err
	}
	report.TotalJobsFound = len(listings)

	candidates := o.eligible(cfg, listings, auditLog)
	report.Eligible = len(candidates)

	appliedToday, err := o.store.CountAppliedSince(ctx, cfg.ID, startOfDay(o.now()))
	if err != nil {
		return report, fmt.Errorf("count applications: %w", err)
	}
	remaining := max(cfg.MaxApplicationsPerDay-appliedToday, 0)
	rec.TotalJobs = min(len(candidates), remaining)
	rec.Status = models.ProgressRunning
	o.progress(ctx, rec, rlog)
	rlog.Info("📊 Candidates ready",
		zap.Int("found", report.TotalJobsFound),
		zap.Int("eligible", report.Eligible),
		zap.Int("applied_today", appliedToday),
		zap.Int("to_process", rec.TotalJobs))
	if rec.TotalJobs == 0 && report.Eligible > 0 {
		auditLog.Warn("run.quota", map[string]any{"applied_today": appliedToday, "max": cfg.MaxApplicationsPerDay})
	}

	//apply loop
	for _, c := range candidates {
		if rec.CurrentJob >= rec.TotalJobs {
			break
		}
		if err := ctx.Err(); err != nil {
			return report, err
		}

		dup, err := o.alreadyApplied(ctx, user.ID, c.listing.URL)
		if err != nil {
			return report, err
		}
		if dup {
			report.Skipped++
			auditLog.Info("apply.skip", map[string]any{"url": c.listing.URL, "reason": "already applied"})
			rlog.Info("⏭️ Already applied, skipping", zap.String("url", c.listing.URL))
			continue
		}

		if rec.CurrentJob > 0 {
			if err := o.pause(ctx, o.opts.InterJob); err != nil {
				return report, err
			}
		}
		rec.CurrentJob++
		rec.CurrentJobTitle = label(c.listing)
		o.progress(ctx, rec, rlog)

		app := automator.Application{
			Job:     c.listing,
			Contact: models.ResolveContact(user, cfg),
			Submit:  req.UseRealAutomation,
		}
		if cfg.UseCoverLetter {
			app.CoverLetter = RenderCoverLetter(cfg.CoverLetterTemplate, c.listing, user)
		}
		res, err := bot.ApplyToJob(ctx, app)
		if err != nil {
			return report, err
		}

		result := o.record(ctx, cfg, user, c, app, res, auditLog, rlog)
		report.add(result)
		if result.Outcome == automator.OutcomeFailed {
			rec.FailCount++
		} else {
			rec.SuccessCount++
		}
		o.progress(ctx, rec, rlog)
	}

	rec.Status = models.ProgressCompleted
	rec.CurrentJobTitle = ""
	o.progress(ctx, rec, rlog)
	rlog.Info("✅ Run completed",
		zap.Int("submitted", report.ApplicationsSubmitted),
		zap.Int("failed", report.Failed),
		zap.Int("skipped", report.Skipped))
	return report, nil
}

func (o *Orchestrator) loadConfig(ctx context.Context, id string) (*models.AutomationConfig, error) {
	cfg, err := o.store.GetConfig(ctx, id)
	if errors.Is(err, models.ErrNotFound) {
		return nil, &models.ConfigurationError{ConfigID: id, Msg: "configuration not found"}
	}
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	switch {
	case !cfg.IsActive:
		return nil, &models.ConfigurationError{ConfigID: id, Msg: "configuration is inactive"}
	case strings.TrimSpace(cfg.Email) == "" || cfg.Password == "":
		return nil, &models.ConfigurationError{ConfigID: id, Msg: "site credentials are missing"}
	case cfg.MaxApplicationsPerDay < 0:
		return nil, &models.ConfigurationError{ConfigID: id, Msg: "max applications per day cannot be negative"}
	}
	return cfg, nil
}

// alreadyApplied resolves the job by URL; a job never stored has no attempt.
func (o *Orchestrator) alreadyApplied(ctx context.Context, userID, url string) (bool, error) {
	job, err := o.store.FindJobByURL(ctx, url)
	if errors.Is(err, models.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("dedup lookup: %w", err)
	}
	exists, err := o.store.AttemptExists(ctx, userID, job.ID)
	if err != nil {
		return false, fmt.Errorf("dedup lookup: %w", err)
	}
	return exists, nil
}

// record persists the job snapshot and, for real runs, the attempt.
// Persistence failures are job-scoped: they are reported and the loop goes on.
func (o *Orchestrator) record(ctx context.Context, cfg *models.AutomationConfig, user *models.UserProfile,
	c candidate, app automator.Application, res *automator.ApplyResult, auditLog *audit.Log, rlog *zap.Logger) JobResult {

	result := JobResult{
		Title:         c.listing.Title,
		Company:       c.listing.Company,
		URL:           c.listing.URL,
		MatchScore:    c.score,
		SkillMatch:    c.match,
		Outcome:       res.Outcome,
		Reason:        res.Reason,
		Message:       res.Message,
		ScreenshotRef: res.ScreenshotRef,
		Retryable:     res.Reason.Retryable(),
	}

	job := &models.Job{JobListing: c.listing, MatchScore: c.score}
	jobID, err := o.store.CreateOrUpdateJob(ctx, job)
	if err != nil {
		result.PersistError = err.Error()
		auditLog.Error("store.job", err, map[string]any{"url": c.listing.URL})
		return result
	}
	result.JobID = jobID

	if res.Outcome == automator.OutcomeRehearsed {
		return result
	}

	attempt := &models.ApplicationAttempt{
		JobID:         jobID,
		UserID:        user.ID,
		ConfigID:      cfg.ID,
		Status:        models.AttemptStatus(initialStage(res.Outcome)),
		Channel:       cfg.Site,
		CoverText:     app.CoverLetter,
		Reason:        res.Reason,
		ScreenshotRef: res.ScreenshotRef,
	}
	switch res.Outcome {
	case automator.OutcomeUncertain:
		attempt.Notes = models.ReasonSubmissionUncertain.Message()
	case automator.OutcomeFailed:
		attempt.Notes = res.Message
	}

	id, err := o.store.CreateApplicationAttempt(ctx, attempt)
	switch {
	case errors.Is(err, models.ErrDuplicateAttempt):
		rlog.Warn("⚠️ Attempt already recorded by another run", zap.String("url", c.listing.URL))
		auditLog.Warn("store.attempt.duplicate", map[string]any{"url": c.listing.URL})
	case err != nil:
		result.PersistError = err.Error()
		auditLog.Error("store.attempt", err, map[string]any{"url": c.listing.URL})
	default:
		result.AttemptID = id
	}
	return result
}

func (o *Orchestrator) progress(ctx context.Context, rec models.ProgressRecord, rlog *zap.Logger) {
	if o.tracker == nil {
		return
	}
	if err := o.tracker.Update(ctx, rec); err != nil {
		rlog.Warn("⚠️ Progress update failed", zap.Error(err))
	}
}

// finish flushes the audit trail and hands the report to the notifier.
func (o *Orchestrator) finish(ctx context.Context, report *Report, auditLog *audit.Log, rlog *zap.Logger) {
	auditLog.Info("run.finish", map[string]any{
		"found":     report.TotalJobsFound,
		"eligible":  report.Eligible,
		"submitted": report.ApplicationsSubmitted,
		"failed":    report.Failed,
		"skipped":   report.Skipped,
	})
	if o.opts.LogsDir != "" {
		path, err := auditLog.Flush(filepath.Join(o.opts.LogsDir, "runs"))
		if err != nil {
			rlog.Warn("⚠️ Could not write audit log", zap.Error(err))
		}
		report.AuditPath = path
	}
	if o.notifier != nil {
		if err := o.notifier.NotifyRun(ctx, report); err != nil {
			rlog.Warn("⚠️ Run notification failed", zap.Error(err))
		}
	}
}

// initialStage is where a new attempt enters the application pipeline.
// An uncertain submission is tracked as applied.
func initialStage(o automator.Outcome) pipeline.Status {
	if o == automator.OutcomeFailed {
		return pipeline.Failed
	}
	return pipeline.Applied
}

func label(l models.JobListing) string {
	if l.Company == "" {
		return l.Title
	}
	return l.Title + " @ " + l.Company
}

// startOfDay is the UTC midnight the daily quota counts from.
func startOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
