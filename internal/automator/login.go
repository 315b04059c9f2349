package automator

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"go-jobpilot/internal/audit"
	"go-jobpilot/internal/browser"
	"go-jobpilot/internal/models"
	"go-jobpilot/utils"
)

type LoginState string

const (
	LoginInit              LoginState = "Init"
	LoginNavigate          LoginState = "NavigateLogin"
	LoginConsent           LoginState = "HandleConsent"
	LoginFillCredentials   LoginState = "FillCredentials"
	LoginPreSubmitCaptcha  LoginState = "PreSubmitCaptchaCheck"
	LoginSubmit            LoginState = "Submit"
	LoginPostSubmitCaptcha LoginState = "PostSubmitCaptchaCheck"
	LoggedIn               LoginState = "LoggedIn"
	LoginFailed            LoginState = "LoginFailed"
)

type Credentials struct {
	Email    string
	Password string
}

func (a *Automator) enterLogin(state LoginState, details map[string]any) {
	a.audit.Info("login."+string(state), details)
}

// Login authenticates the session. A returned *models.AuthenticationError
// carries whether the site rejected the credentials or a bot check blocked us.
func (a *Automator) Login(ctx context.Context, creds Credentials) error {
	site := a.opts.Site
	to := a.opts.Timeouts
	a.enterLogin(LoginInit, map[string]any{"email": creds.Email})
	a.log.Info("🔐 Logging in...")

	//navigate
	a.enterLogin(LoginNavigate, map[string]any{"urls": site.LoginURLs})
	landed, err := a.session.Navigate(ctx, site.LoginURLs, to.Navigation)
	if err != nil {
		a.failLogin(ctx, err)
		return err
	}
	if err := a.session.Pause(ctx, a.opts.Pacing.PageLoad); err != nil {
		return err
	}

	//consent banner
	a.enterLogin(LoginConsent, nil)
	if err := a.handleConsent(ctx); err != nil {
		return err
	}

	//reused cookie session
	if el, err := a.optional(ctx, site.LoggedInMarker); err != nil {
		return err
	} else if el != nil {
		a.log.Info("🍪 Already logged in from stored session")
		a.audit.Record(audit.LevelInfo, "login."+string(LoggedIn), map[string]any{"via": "cookies"}, a.snapshot(ctx, "logged-in"))
		return nil
	}

	//credentials
	a.enterLogin(LoginFillCredentials, map[string]any{"url": landed})
	email, err := a.session.Locate(ctx, site.EmailField, to.Element)
	if err != nil {
		return a.missingLoginControl(ctx, "email-field", site.EmailField, err)
	}
	if err := a.session.Type(ctx, email, creds.Email); err != nil {
		return err
	}
	if err := a.session.Pause(ctx, a.opts.Pacing.FormInteraction); err != nil {
		return err
	}
	password, err := a.session.Locate(ctx, site.PasswordField, to.Element)
	if err != nil {
		return a.missingLoginControl(ctx, "password-field", site.PasswordField, err)
	}
	if err := a.session.Type(ctx, password, creds.Password); err != nil {
		return err
	}
	if err := a.session.Pause(ctx, a.opts.Pacing.FormInteraction); err != nil {
		return err
	}

	//captcha before submitting
	a.enterLogin(LoginPreSubmitCaptcha, nil)
	if err := a.captchaGate(ctx, "pre-submit"); err != nil {
		return err
	}

	//submit
	a.enterLogin(LoginSubmit, nil)
	submit, err := a.session.Locate(ctx, site.LoginSubmit, to.Element)
	if err != nil {
		return a.missingLoginControl(ctx, "login-submit", site.LoginSubmit, err)
	}
	if err := a.session.Click(ctx, submit, to.Action); err != nil {
		authErr := &models.AuthenticationError{Reason: models.ReasonFormNotFound, Detail: err.Error()}
		a.failLogin(ctx, authErr)
		return authErr
	}
	if err := a.session.Pause(ctx, a.opts.Pacing.PageLoad); err != nil {
		return err
	}

	//captcha after submitting
	a.enterLogin(LoginPostSubmitCaptcha, nil)
	if err := a.captchaGate(ctx, "post-submit"); err != nil {
		return err
	}

	return a.verifyLogin(ctx)
}

func (a *Automator) handleConsent(ctx context.Context) error {
	site := a.opts.Site
	for _, choice := range []struct {
		name       string
		strategies []browser.Strategy
	}{
		{"decline", site.ConsentDecline},
		{"accept", site.ConsentAccept},
	} {
		el, err := a.optional(ctx, choice.strategies)
		if err != nil {
			return err
		}
		if el == nil {
			continue
		}
		if err := a.session.Click(ctx, el, a.opts.Timeouts.Action); err != nil {
			a.log.Warn("⚠️ consent click failed", zap.String("choice", choice.name), zap.Error(err))
			continue
		}
		a.log.Info("🍪 Consent banner handled", zap.String("choice", choice.name))
		a.audit.Info("login.consent", map[string]any{"choice": choice.name})
		return a.session.Pause(ctx, a.opts.Pacing.FormInteraction)
	}
	return nil
}

// captchaGate waits out one grace period when a challenge shows up and fails
// if it is still there on the single re-check.
func (a *Automator) captchaGate(ctx context.Context, phase string) error {
	signal, present := a.captchaPresent(ctx)
	if !present {
		return nil
	}
	a.log.Warn("🛡️ Bot verification detected, waiting grace period",
		zap.String("phase", phase), zap.String("signal", signal), zap.Duration("grace", a.opts.Timeouts.CaptchaGrace))
	a.audit.Record(audit.LevelWarn, "login.captcha", map[string]any{"phase": phase, "signal": signal}, a.snapshot(ctx, "captcha-"+phase))

	if err := utils.Sleep(ctx, a.opts.Timeouts.CaptchaGrace); err != nil {
		return err
	}
	if _, still := a.captchaPresent(ctx); !still {
		a.log.Info("✅ Verification cleared")
		return nil
	}

	authErr := &models.AuthenticationError{
		Reason: models.ReasonBotVerification,
		Detail: phase + ": " + signal,
	}
	a.failLogin(ctx, authErr)
	return authErr
}

func (a *Automator) verifyLogin(ctx context.Context) error {
	site := a.opts.Site
	if el, err := a.optional(ctx, site.LoginError); err != nil {
		return err
	} else if el != nil {
		text, _ := el.Text()
		authErr := &models.AuthenticationError{Reason: models.ReasonCredentials, Detail: strings.TrimSpace(text)}
		a.failLogin(ctx, authErr)
		return authErr
	}

	if len(site.LoggedInMarker) > 0 {
		if _, err := a.session.Locate(ctx, site.LoggedInMarker, a.opts.Timeouts.Element); err == nil {
			return a.loggedIn(ctx)
		} else if ctx.Err() != nil {
			return ctx.Err()
		}
	}

	//no marker: leaving the login page is the only evidence left
	if !urlMatchesAny(a.session.URL(), site.LoginURLs) {
		a.log.Warn("⚠️ No logged-in marker, but the login page was left", zap.String("url", a.session.URL()))
		return a.loggedIn(ctx)
	}

	authErr := &models.AuthenticationError{Reason: models.ReasonCredentials, Detail: "still on login page"}
	a.failLogin(ctx, authErr)
	return authErr
}

func (a *Automator) loggedIn(ctx context.Context) error {
	a.log.Info("✅ Logged in")
	a.audit.Record(audit.LevelInfo, "login."+string(LoggedIn), map[string]any{"url": a.session.URL()}, a.snapshot(ctx, "logged-in"))
	return nil
}

func (a *Automator) missingLoginControl(ctx context.Context, step string, strategies []browser.Strategy, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	a.dumpControls(ctx, "login."+step)
	if signal, ok := a.captchaPresent(ctx); ok {
		authErr := &models.AuthenticationError{Reason: models.ReasonBotVerification, Detail: step + " hidden by " + signal}
		a.failLogin(ctx, authErr)
		return authErr
	}
	authErr := &models.AuthenticationError{
		Reason: models.ReasonFormNotFound,
		Detail: step + " not found via " + browser.Describe(strategies),
	}
	a.failLogin(ctx, authErr)
	return authErr
}

func (a *Automator) failLogin(ctx context.Context, err error) {
	ref := a.snapshot(ctx, "login-failed")
	if authErr, ok := err.(*models.AuthenticationError); ok && authErr.ScreenshotRef == "" {
		authErr.ScreenshotRef = ref
	}
	a.log.Error("❌ Login failed", zap.Error(err))
	a.audit.Record(audit.LevelError, "login."+string(LoginFailed), map[string]any{"error": err.Error()}, ref)
}
