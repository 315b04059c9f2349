// Build logger-aware collaborators from config:
// store (postgres or memory), progress (memory or redis), notifier, browser

package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"go-jobpilot/internal/audit"
	"go-jobpilot/internal/automator"
	"go-jobpilot/internal/browser"
	"go-jobpilot/internal/config"
	"go-jobpilot/internal/database"
	"go-jobpilot/internal/models"
	"go-jobpilot/internal/orchestrator"
	"go-jobpilot/internal/progress"
	"go-jobpilot/internal/reporter"
	"go-jobpilot/utils"
)

// ShutdownTimeout bounds how long servers wait for detached runs on exit.
const ShutdownTimeout = 2 * time.Minute

// Store is everything the binaries need from persistence.
type Store interface {
	orchestrator.Store
	SaveConfig(ctx context.Context, c *models.AutomationConfig) error
	SaveUser(ctx context.Context, u *models.UserProfile) error
	ListActiveConfigs(ctx context.Context) ([]models.AutomationConfig, error)
	ListAttempts(ctx context.Context, userID string) ([]models.ApplicationAttempt, error)
}

type App struct {
	Config       *config.Config
	Log          *zap.Logger
	Store        Store
	Tracker      *progress.Tracker
	Orchestrator *orchestrator.Orchestrator

	// repo is set when Store is Postgres-backed
	repo  *database.Repository
	shots *utils.ScreenshotStore

	browserMu sync.Mutex
	manager   *browser.PlaywrightManager

	closers []func() error
}

// New connects every backing service the configuration asks for. The browser
// is started lazily on the first run.
func New(ctx context.Context, cfg *config.Config, log *zap.Logger) (*App, error) {
	a := &App{Config: cfg, Log: log}

	//persistence
	if cfg.DatabaseURL != "" {
		repo, err := database.ConnectDB(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		a.repo = repo
		a.Store = repo
		a.closers = append(a.closers, func() error { repo.Close(); return nil })
		log.Info("🗄️ Connected to Postgres")
	} else {
		a.Store = database.NewMemoryStore()
		log.Warn("⚠️ DATABASE_URL not set, using the in-memory store (nothing is persisted)")
	}

	//progress
	var pstore progress.Store
	switch cfg.Progress.Backend {
	case "redis":
		rdb, err := progress.NewRedisClient(ctx, cfg.RedisAddr)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.closers = append(a.closers, rdb.Close)
		pstore = progress.NewRedisStore(rdb, cfg.Progress.KeyPrefix)
		log.Info("📡 Progress stored in Redis", zap.String("addr", cfg.RedisAddr))
	default:
		pstore = progress.NewMemoryStore()
	}
	a.Tracker = progress.NewTracker(pstore, cfg.Progress.Retention, log)

	shots, err := utils.NewScreenshotStore(cfg.Browser.ScreenshotDir)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.shots = shots

	//notifier
	var notifier orchestrator.Notifier
	if cfg.Telegram.Enabled() {
		tg, err := reporter.NewTelegramReporter(cfg.Telegram, log)
		if err != nil {
			log.Warn("⚠️ Telegram disabled", zap.Error(err))
		} else {
			notifier = tg
			log.Info("🤖 Telegram Bot initialized.")
		}
	}

	interJob := cfg.Pacing.InterJob
	if !cfg.Browser.Headless {
		interJob = interJob.Scale(cfg.Browser.VisiblePacingFactor)
	}
	a.Orchestrator = orchestrator.New(a.Store, a.Tracker, a.openAutomator, notifier,
		orchestrator.Options{InterJob: interJob, LogsDir: cfg.LogsDir}, log)
	return a, nil
}

// Migrate applies the schema. It is a no-op for the in-memory store.
func (a *App) Migrate(ctx context.Context) error {
	if a.repo == nil {
		a.Log.Info("ℹ️ In-memory store, nothing to migrate")
		return nil
	}
	if err := a.repo.Migrate(ctx); err != nil {
		return err
	}
	a.Log.Info("✅ Schema up to date")
	return nil
}

func (a *App) openAutomator(ctx context.Context, cfg *models.AutomationConfig, auditLog *audit.Log) (orchestrator.SiteAutomator, error) {
	site := a.Config.Site
	if cfg.Site != "" && site.Name != "" && cfg.Site != site.Name {
		return nil, &models.ConfigurationError{ConfigID: cfg.ID, Msg: fmt.Sprintf("site %q is not configured (have %q)", cfg.Site, site.Name)}
	}

	pm, err := a.browser(ctx)
	if err != nil {
		return nil, err
	}
	session, err := pm.NewSession(a.shots)
	if err != nil {
		return nil, err
	}
	return automator.New(session, automator.OptionsFrom(a.Config), auditLog,
		a.Log.With(zap.String("config_id", cfg.ID))), nil
}

func (a *App) browser(ctx context.Context) (*browser.PlaywrightManager, error) {
	a.browserMu.Lock()
	defer a.browserMu.Unlock()
	if a.manager != nil {
		return a.manager, nil
	}
	pm, err := browser.NewPlaywright(ctx, BrowserOptions(a.Config), a.Log)
	if err != nil {
		return nil, err
	}
	a.manager = pm
	a.Log.Info("✅ Browser initialized successfully!", zap.Bool("headless", a.Config.Browser.Headless))
	return pm, nil
}

// BrowserOptions maps runtime configuration onto the playwright launcher.
func BrowserOptions(cfg *config.Config) browser.Options {
	b := cfg.Browser
	return browser.Options{
		Headless:            b.Headless,
		SlowMoMs:            b.SlowMoMs,
		UserAgent:           b.UserAgent,
		Locale:              b.Locale,
		ViewportWidth:       b.ViewportWidth,
		ViewportHeight:      b.ViewportHeight,
		CookiesPath:         b.CookiesPath,
		VisiblePacingFactor: b.VisiblePacingFactor,
		Keystroke:           cfg.Pacing.Keystroke,
		Settle:              cfg.Pacing.Settle,
		JitterEvery:         b.JitterEvery,
		ScreenshotTimeout:   cfg.Timeouts.Screenshot,
	}
}

// Close releases the browser, then the backing services.
func (a *App) Close() error {
	var errs []error
	a.browserMu.Lock()
	if a.manager != nil {
		errs = append(errs, a.manager.Close())
		a.manager = nil
	}
	a.browserMu.Unlock()
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}
