package browser

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"

	"go-jobpilot/utils"
)

// Options controls how the browser is launched and paced.
type Options struct {
	Headless       bool
	SlowMoMs       float64
	UserAgent      string
	Locale         string
	ViewportWidth  int
	ViewportHeight int
	CookiesPath    string
	// VisiblePacingFactor stretches every pacing band when Headless is false.
	VisiblePacingFactor float64
	Keystroke           utils.Band
	Settle              utils.Band
	JitterEvery         int
	ScreenshotTimeout   time.Duration
}

// PlaywrightManager owns one playwright driver process and one Chromium instance.
type PlaywrightManager struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	opts    Options
	log     *zap.Logger
}

func NewPlaywright(ctx context.Context, opts Options, log *zap.Logger) (*PlaywrightManager, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("could not start playwright: %w", err)
	}

	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
		SlowMo:   playwright.Float(opts.SlowMoMs),
		Args: []string{
			"--disable-blink-features=AutomationControlled",
			"--no-sandbox",
		},
	})
	if err != nil {
		_ = pw.Stop()
		return nil, fmt.Errorf("could not launch chromium: %w", err)
	}

	return &PlaywrightManager{pw: pw, browser: browser, opts: opts, log: log}, nil
}

// NewContext creates an isolated browser context carrying the given cookies.
func (pm *PlaywrightManager) NewContext(cookies []playwright.OptionalCookie) (playwright.BrowserContext, error) {
	ctxOpts := playwright.BrowserNewContextOptions{}
	if pm.opts.UserAgent != "" {
		ctxOpts.UserAgent = playwright.String(pm.opts.UserAgent)
	}
	if pm.opts.Locale != "" {
		ctxOpts.Locale = playwright.String(pm.opts.Locale)
	}
	if pm.opts.ViewportWidth > 0 && pm.opts.ViewportHeight > 0 {
		ctxOpts.Viewport = &playwright.Size{Width: pm.opts.ViewportWidth, Height: pm.opts.ViewportHeight}
	}

	bctx, err := pm.browser.NewContext(ctxOpts)
	if err != nil {
		return nil, fmt.Errorf("could not create browser context: %w", err)
	}
	if err := bctx.AddInitScript(playwright.Script{Content: playwright.String(hideAutomationScript)}); err != nil {
		_ = bctx.Close()
		return nil, fmt.Errorf("could not add init script: %w", err)
	}
	if len(cookies) > 0 {
		if err := bctx.AddCookies(cookies); err != nil {
			_ = bctx.Close()
			return nil, fmt.Errorf("could not add cookies: %w", err)
		}
	}
	return bctx, nil
}

// NewSession opens a page in a fresh context. Closing the session closes the
// page and its context; the manager stays up for the next session.
func (pm *PlaywrightManager) NewSession(store *utils.ScreenshotStore) (*PageSession, error) {
	var cookies []playwright.OptionalCookie
	if pm.opts.CookiesPath != "" {
		loaded, err := LoadCookies(pm.opts.CookiesPath)
		if err != nil {
			pm.log.Warn("⚠️ could not load cookies, continuing without", zap.String("path", pm.opts.CookiesPath), zap.Error(err))
		} else {
			pm.log.Info("🍪 cookies loaded", zap.Int("count", len(loaded)))
			cookies = loaded
		}
	}

	bctx, err := pm.NewContext(cookies)
	if err != nil {
		return nil, err
	}
	page, err := bctx.NewPage()
	if err != nil {
		_ = bctx.Close()
		return nil, fmt.Errorf("could not create page: %w", err)
	}

	s := newPageSession(uuid.NewString()[:8], page, store, pm.opts)
	s.closers = append(s.closers, func() error { return bctx.Close() })
	return s, nil
}

func (pm *PlaywrightManager) Close() error {
	var errs []error
	if pm.browser != nil {
		if err := pm.browser.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close browser: %w", err))
		}
	}
	if pm.pw != nil {
		if err := pm.pw.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop playwright: %w", err))
		}
	}
	return errors.Join(errs...)
}
