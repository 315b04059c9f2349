package automator

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"go-jobpilot/internal/audit"
	"go-jobpilot/internal/browser"
	"go-jobpilot/internal/filter"
	"go-jobpilot/internal/models"
	"go-jobpilot/utils"
)

type ApplyState string

const (
	ApplyNavigateDetail ApplyState = "NavigateJobDetail"
	ApplyDetectExternal ApplyState = "DetectExternalRedirect"
	ApplyNavigateForm   ApplyState = "NavigateApplyForm"
	ApplyContinueStep   ApplyState = "OptionalContinueStep"
	ApplyFillFields     ApplyState = "FillAdditionalFields"
	ApplySubmit         ApplyState = "Submit"
	ApplyConfirmation   ApplyState = "ConfirmationCheck"
	ApplyApplied        ApplyState = "Applied"
	ApplyFailed         ApplyState = "ApplyFailed"
)

const confirmationPollEvery = 500 * time.Millisecond

type Outcome string

const (
	OutcomeApplied   Outcome = "applied"
	OutcomeUncertain Outcome = "submission-uncertain"
	OutcomeRehearsed Outcome = "rehearsed"
	OutcomeFailed    Outcome = "failed"
)

// Application is one job to apply to with the values to fill in.
type Application struct {
	Job         models.JobListing
	Contact     models.ContactDetails
	CoverLetter string
	// Submit false stops right before the final submit.
	Submit bool
}

type ApplyResult struct {
	Outcome       Outcome
	Reason        models.FailureReason
	Message       string
	ScreenshotRef string
	// Signal names the confirmation signal that fired.
	Signal string
	Err    error
}

// Success reports whether the application went through or was rehearsed.
func (r *ApplyResult) Success() bool {
	return r.Outcome == OutcomeApplied || r.Outcome == OutcomeRehearsed
}

// ApplyToJob runs the per-job application flow. Failures scoped to the job are
// reported in the result; only context cancellation is returned as an error.
func (a *Automator) ApplyToJob(ctx context.Context, app Application) (*ApplyResult, error) {
	site := a.opts.Site
	to := a.opts.Timeouts
	job := app.Job
	jlog := a.log.With(zap.String("job", job.Title), zap.String("company", job.Company))
	step := func(state ApplyState, details map[string]any) {
		if details == nil {
			details = map[string]any{}
		}
		details["url"] = job.URL
		a.audit.Info("apply."+string(state), details)
	}

	//job detail
	step(ApplyNavigateDetail, nil)
	jlog.Info("📨 Applying", zap.String("url", job.URL))
	if _, err := a.session.Navigate(ctx, []string{job.URL}, to.Navigation); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return a.fail(ctx, job, models.ReasonNetwork, "job page unreachable", err), nil
	}
	if err := a.session.Pause(ctx, a.opts.Pacing.PageLoad); err != nil {
		return nil, err
	}
	a.audit.Record(audit.LevelInfo, "apply.detail", map[string]any{"url": job.URL}, a.snapshot(ctx, "job-detail"))

	//external redirect
	step(ApplyDetectExternal, nil)
	apply, err := a.session.Locate(ctx, site.ApplyButton, to.Element)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if signal, ok := a.captchaPresent(ctx); ok {
			return a.fail(ctx, job, models.ReasonBotVerification, signal, err), nil
		}
		return a.fail(ctx, job, models.ReasonFormNotFound, "apply button not found", err), nil
	}
	if signal, external := a.externalSignal(apply); external {
		jlog.Info("↗️ External application, skipping", zap.String("signal", signal))
		return a.fail(ctx, job, models.ReasonExternalRedirect, signal, nil), nil
	}

	//apply form
	step(ApplyNavigateForm, nil)
	if err := a.session.Click(ctx, apply, to.Action); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return a.fail(ctx, job, models.ReasonFormNotFound, "apply button not clickable", err), nil
	}
	if err := a.session.Pause(ctx, a.opts.Pacing.PageLoad); err != nil {
		return nil, err
	}
	if current := a.session.URL(); current != "" && !site.IsOnSite(current) {
		return a.fail(ctx, job, models.ReasonExternalRedirect, "redirected to "+current, nil), nil
	}
	if signal, ok := a.captchaPresent(ctx); ok {
		return a.fail(ctx, job, models.ReasonBotVerification, signal, nil), nil
	}

	//continue step, only when the site shows one
	cont, err := a.optional(ctx, site.ContinueButton)
	if err != nil {
		return nil, err
	}
	if cont != nil {
		step(ApplyContinueStep, map[string]any{"present": true})
		if err := a.session.Click(ctx, cont, to.Action); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return a.fail(ctx, job, models.ReasonFormNotFound, "continue step not clickable", err), nil
		}
		if err := a.session.Pause(ctx, a.opts.Pacing.FormInteraction); err != nil {
			return nil, err
		}
	}

	//extra fields
	filled, err := a.fillFields(ctx, app)
	if err != nil {
		return nil, err
	}
	step(ApplyFillFields, map[string]any{"filled": filled})

	//submit
	submit, err := a.session.Locate(ctx, site.SubmitButton, to.Element)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		a.dumpControls(ctx, "apply.submit")
		return a.fail(ctx, job, models.ReasonFormNotFound, "submit button not found", err), nil
	}
	if !app.Submit {
		ref := a.snapshot(ctx, "rehearsal")
		a.audit.Record(audit.LevelInfo, "apply.rehearsed", map[string]any{"url": job.URL, "filled": filled}, ref)
		jlog.Info("🎭 Rehearsal complete, submit skipped")
		return &ApplyResult{Outcome: OutcomeRehearsed, Message: "dry run: form filled, not submitted", ScreenshotRef: ref}, nil
	}
	step(ApplySubmit, nil)
	if err := a.session.Click(ctx, submit, to.Action); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return a.fail(ctx, job, models.ReasonFormNotFound, "submit button not clickable", err), nil
	}

	//confirmation
	step(ApplyConfirmation, nil)
	signal, err := a.awaitConfirmation(ctx)
	if err != nil {
		return nil, err
	}
	ref := a.snapshot(ctx, "confirmation")
	if signal == "" {
		jlog.Warn("❓ No confirmation observed")
		a.audit.Record(audit.LevelWarn, "apply.uncertain", map[string]any{"url": job.URL}, ref)
		return &ApplyResult{
			Outcome:       OutcomeUncertain,
			Reason:        models.ReasonSubmissionUncertain,
			Message:       models.ReasonSubmissionUncertain.Message(),
			ScreenshotRef: ref,
		}, nil
	}

	jlog.Info("✅ Application confirmed", zap.String("signal", signal))
	a.audit.Record(audit.LevelInfo, "apply."+string(ApplyApplied), map[string]any{"url": job.URL, "signal": signal}, ref)
	return &ApplyResult{Outcome: OutcomeApplied, Message: "application confirmed", ScreenshotRef: ref, Signal: signal}, nil
}

// externalSignal inspects the apply control for a hand-off to another site.
func (a *Automator) externalSignal(apply browser.Element) (string, bool) {
	site := a.opts.Site
	href, _ := apply.Attr("href")
	if href != "" && !strings.HasPrefix(href, "#") && !strings.HasPrefix(href, "javascript:") && !site.IsOnSite(href) {
		return "off-site href " + href, true
	}
	label, _ := apply.Text()
	aria, _ := apply.Attr("aria-label")
	title, _ := apply.Attr("title")
	if hit, ok := filter.ContainsAny(strings.Join([]string{label, aria, title}, " "), site.ExternalApplyTexts); ok {
		return "label mentions " + hit, true
	}
	return "", false
}

func (a *Automator) fillFields(ctx context.Context, app Application) ([]string, error) {
	site := a.opts.Site
	fields := []struct {
		name       string
		strategies []browser.Strategy
		value      string
	}{
		{"phone", site.PhoneField, app.Contact.Phone},
		{"postal_code", site.PostalCodeField, app.Contact.PostalCode},
		{"city", site.CityField, app.Contact.City},
		{"cover_letter", site.CoverLetterField, app.CoverLetter},
	}

	var filled []string
	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			continue
		}
		el, err := a.optional(ctx, f.strategies)
		if err != nil {
			return filled, err
		}
		if el == nil || !el.Enabled() {
			continue
		}
		if err := a.session.Type(ctx, el, f.value); err != nil {
			if ctx.Err() != nil {
				return filled, ctx.Err()
			}
			a.log.Warn("⚠️ Could not fill field", zap.String("field", f.name), zap.Error(err))
			continue
		}
		filled = append(filled, f.name)
		if err := a.session.Pause(ctx, a.opts.Pacing.FormInteraction); err != nil {
			return filled, err
		}
	}
	return filled, nil
}

// awaitConfirmation polls every success signal until one fires or the
// confirmation timeout passes. An empty signal means none fired.
func (a *Automator) awaitConfirmation(ctx context.Context) (string, error) {
	site := a.opts.Site
	deadline := time.Now().Add(a.opts.Timeouts.Confirmation)
	for {
		if len(site.ConfirmationMarker) > 0 {
			if _, err := a.session.Locate(ctx, site.ConfirmationMarker, 0); err == nil {
				return "marker", nil
			}
		}
		if urlMatchesAny(a.session.URL(), site.ConfirmationURLPatterns) {
			return "url", nil
		}
		if hit, ok := filter.ContainsAny(a.session.BodyText(ctx), site.ConfirmationTexts); ok {
			return "text: " + hit, nil
		}
		if !time.Now().Before(deadline) {
			return "", nil
		}
		if err := utils.Sleep(ctx, confirmationPollEvery); err != nil {
			return "", err
		}
	}
}

func (a *Automator) fail(ctx context.Context, job models.JobListing, reason models.FailureReason, detail string, cause error) *ApplyResult {
	ref := a.snapshot(ctx, "apply-failed")
	subErr := &models.SubmissionError{Reason: reason, Detail: detail, ScreenshotRef: ref, Err: cause}
	details := map[string]any{"url": job.URL, "reason": string(reason), "error": subErr.Error()}
	if cause != nil && !errors.Is(cause, browser.ErrElementNotFound) {
		details["cause"] = cause.Error()
	}
	a.audit.Record(audit.LevelError, "apply."+string(ApplyFailed), details, ref)
	a.log.Warn("❌ Application failed", zap.String("job", job.Title), zap.String("reason", string(reason)), zap.String("detail", detail))
	return &ApplyResult{
		Outcome:       OutcomeFailed,
		Reason:        reason,
		Message:       reason.Message(),
		ScreenshotRef: ref,
		Err:           subErr,
	}
}
