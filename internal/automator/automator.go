// Drive one job board through a browser session:
// login, paginated search, per-job application, logout

package automator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"go-jobpilot/internal/audit"
	"go-jobpilot/internal/browser"
	"go-jobpilot/internal/config"
	"go-jobpilot/internal/filter"
)

// Options is the slice of runtime configuration an automator needs.
type Options struct {
	Site     config.SiteProfile
	Pacing   config.PacingConfig
	Timeouts config.TimeoutConfig
	Search   config.SearchConfig
}

// OptionsFrom extracts automator options from the loaded configuration.
func OptionsFrom(cfg *config.Config) Options {
	return Options{Site: cfg.Site, Pacing: cfg.Pacing, Timeouts: cfg.Timeouts, Search: cfg.Search}
}

type Automator struct {
	session browser.Session
	opts    Options
	audit   *audit.Log
	log     *zap.Logger
	now     func() time.Time

	closeOnce sync.Once
	closeErr  error
}

func New(session browser.Session, opts Options, auditLog *audit.Log, log *zap.Logger) *Automator {
	if log == nil {
		log = zap.NewNop()
	}
	if auditLog == nil {
		auditLog = audit.New("detached", log)
	}
	return &Automator{
		session: session,
		opts:    opts,
		audit:   auditLog,
		log:     log.With(zap.String("site", opts.Site.Name), zap.String("session", session.ID())),
		now:     time.Now,
	}
}

// Logout leaves the site best-effort and always releases the session.
func (a *Automator) Logout(ctx context.Context) error {
	a.closeOnce.Do(func() {
		if url := a.opts.Site.LogoutURL; url != "" && ctx.Err() == nil {
			if _, err := a.session.Navigate(ctx, []string{url}, a.opts.Timeouts.Navigation); err != nil {
				a.log.Warn("⚠️ logout navigation failed", zap.Error(err))
			} else {
				a.audit.Info("logout", map[string]any{"url": url})
			}
		}
		a.closeErr = a.session.Close()
		a.log.Info("👋 session closed")
	})
	return a.closeErr
}

// shortWait bounds lookups for optional controls.
func (a *Automator) shortWait() time.Duration {
	d := a.opts.Timeouts.Element / 4
	if d < 500*time.Millisecond {
		d = 500 * time.Millisecond
	}
	return d
}

// optional returns the element or nil when the control is simply absent.
func (a *Automator) optional(ctx context.Context, strategies []browser.Strategy) (browser.Element, error) {
	if len(strategies) == 0 {
		return nil, nil
	}
	el, err := a.session.Locate(ctx, strategies, a.shortWait())
	if errors.Is(err, browser.ErrElementNotFound) {
		return nil, nil
	}
	return el, err
}

// captchaPresent checks indicator selectors, then title and body text patterns.
func (a *Automator) captchaPresent(ctx context.Context) (string, bool) {
	site := a.opts.Site
	for _, sel := range site.CaptchaSelectors {
		if _, err := a.session.Locate(ctx, []browser.Strategy{browser.CSS(sel)}, 0); err == nil {
			return sel, true
		}
	}
	if hit, ok := filter.ContainsAny(a.session.Title(ctx), site.CaptchaTexts); ok {
		return hit, true
	}
	if hit, ok := filter.ContainsAny(a.session.BodyText(ctx), site.CaptchaTexts); ok {
		return hit, true
	}
	return "", false
}

// snapshot captures a screenshot, logging instead of failing when it cannot.
func (a *Automator) snapshot(ctx context.Context, tag string) string {
	ref, err := a.session.Screenshot(ctx, tag)
	if err != nil {
		a.log.Warn("⚠️ screenshot failed", zap.String("tag", tag), zap.Error(err))
		return ""
	}
	return ref
}

// dumpControls logs every candidate control on the page so a markup change can
// be diagnosed from the run log alone.
func (a *Automator) dumpControls(ctx context.Context, step string) {
	candidates := a.session.Diagnose(ctx, a.opts.Site.DiagnoseSelector)
	lines := make([]string, len(candidates))
	for i, c := range candidates {
		lines[i] = c.String()
	}
	a.log.Error("🔍 control not found, dumping candidates",
		zap.String("step", step),
		zap.String("url", a.session.URL()),
		zap.Int("count", len(candidates)),
		zap.Strings("candidates", lines))
	a.audit.Record(audit.LevelError, step+".diagnostic", map[string]any{
		"url":        a.session.URL(),
		"candidates": lines,
	}, a.snapshot(ctx, step+"-diagnostic"))
}

func urlMatchesAny(current string, patterns []string) bool {
	for _, p := range patterns {
		if p != "" && strings.Contains(current, p) {
			return true
		}
	}
	return false
}
