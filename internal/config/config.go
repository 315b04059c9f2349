// Load envs from .env
// Load YAML config
// Apply env overrides and defaults
// Validate config

package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"go-jobpilot/utils"
)

const DefaultPath = "configs/config.yaml"

type Config struct {
	LogsDir     string `yaml:"logs_dir"`
	DatabaseURL string `yaml:"database_url" env:"DATABASE_URL"`
	RedisAddr   string `yaml:"redis_addr" env:"REDIS_ADDR"`

	Log      LogConfig      `yaml:"log"`
	Telegram TelegramConfig `yaml:"telegram"`
	Server   ServerConfig   `yaml:"server"`
	Browser  BrowserConfig  `yaml:"browser"`
	Pacing   PacingConfig   `yaml:"pacing"`
	Timeouts TimeoutConfig  `yaml:"timeouts"`
	Search   SearchConfig   `yaml:"search"`
	Progress ProgressConfig `yaml:"progress"`
	Site     SiteProfile    `yaml:"site"`
}

type LogConfig struct {
	Format string `yaml:"format"` // json | console
	Level  string `yaml:"level"`
}

type TelegramConfig struct {
	Token  string `yaml:"token" env:"TELEGRAM_BOT_TOKEN"`
	ChatID int64  `yaml:"chat_id" env:"TELEGRAM_CHAT_ID"`
}

// Enabled reports whether run summaries can be sent.
func (t TelegramConfig) Enabled() bool { return t.Token != "" && t.ChatID != 0 }

type ServerConfig struct {
	Port string `yaml:"port" env:"PORT"`
}

type BrowserConfig struct {
	Headless            bool    `yaml:"headless" env:"JOBPILOT_HEADLESS"`
	SlowMoMs            float64 `yaml:"slow_mo_ms"`
	VisiblePacingFactor float64 `yaml:"visible_pacing_factor"`
	UserAgent           string  `yaml:"user_agent"`
	Locale              string  `yaml:"locale"`
	ViewportWidth       int     `yaml:"viewport_width"`
	ViewportHeight      int     `yaml:"viewport_height"`
	CookiesPath         string  `yaml:"cookies_path"`
	ScreenshotDir       string  `yaml:"screenshot_dir"`
	JitterEvery         int     `yaml:"jitter_every"`
}

// PacingConfig holds the randomized wait bands used across a run.
type PacingConfig struct {
	PageLoad        utils.Band `yaml:"page_load"`
	FormInteraction utils.Band `yaml:"form_interaction"`
	Keystroke       utils.Band `yaml:"keystroke"`
	Settle          utils.Band `yaml:"settle"`
	InterJob        utils.Band `yaml:"inter_job"`
	InterQuery      utils.Band `yaml:"inter_query"`
}

type TimeoutConfig struct {
	Navigation   time.Duration `yaml:"navigation"`
	Element      time.Duration `yaml:"element"`
	Confirmation time.Duration `yaml:"confirmation"`
	CaptchaGrace time.Duration `yaml:"captcha_grace"`
	Action       time.Duration `yaml:"action"`
	Screenshot   time.Duration `yaml:"screenshot"`
}

type SearchConfig struct {
	MaxKeywords int `yaml:"max_keywords"`
	MaxPages    int `yaml:"max_pages"`
}

type ProgressConfig struct {
	Backend   string        `yaml:"backend"` // memory | redis
	Retention time.Duration `yaml:"retention"`
	KeyPrefix string        `yaml:"key_prefix"`
}

// Load reads .env, then the YAML file at path (missing file means defaults),
// then environment overrides.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path == "" {
		path = DefaultPath
	}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.fillDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.DatabaseURL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.RedisAddr = v
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		c.Telegram.Token = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid TELEGRAM_CHAT_ID: %w", err)
		}
		c.Telegram.ChatID = id
	}
	if v := os.Getenv("JOBPILOT_HEADLESS"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid JOBPILOT_HEADLESS: %w", err)
		}
		c.Browser.Headless = b
	}
	if v := os.Getenv("PORT"); v != "" {
		c.Server.Port = v
	}
	return nil
}

// fillDefaults restores defaults for values a YAML file zeroed out.
func (c *Config) fillDefaults() {
	d := Default()
	if c.LogsDir == "" {
		c.LogsDir = d.LogsDir
	}
	if c.Log.Format == "" {
		c.Log.Format = d.Log.Format
	}
	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
	if c.Server.Port == "" {
		c.Server.Port = d.Server.Port
	}
	if c.Browser.ScreenshotDir == "" {
		c.Browser.ScreenshotDir = d.Browser.ScreenshotDir
	}
	if c.Browser.VisiblePacingFactor <= 0 {
		c.Browser.VisiblePacingFactor = d.Browser.VisiblePacingFactor
	}
	if c.Search.MaxKeywords <= 0 {
		c.Search.MaxKeywords = d.Search.MaxKeywords
	}
	if c.Search.MaxPages <= 0 {
		c.Search.MaxPages = d.Search.MaxPages
	}
	if c.Progress.Backend == "" {
		c.Progress.Backend = d.Progress.Backend
	}
	if c.Progress.Retention <= 0 {
		c.Progress.Retention = d.Progress.Retention
	}
	if c.Progress.KeyPrefix == "" {
		c.Progress.KeyPrefix = d.Progress.KeyPrefix
	}
	for _, t := range []struct{ got, def *time.Duration }{
		{&c.Timeouts.Navigation, &d.Timeouts.Navigation},
		{&c.Timeouts.Element, &d.Timeouts.Element},
		{&c.Timeouts.Confirmation, &d.Timeouts.Confirmation},
		{&c.Timeouts.CaptchaGrace, &d.Timeouts.CaptchaGrace},
		{&c.Timeouts.Action, &d.Timeouts.Action},
		{&c.Timeouts.Screenshot, &d.Timeouts.Screenshot},
	} {
		if *t.got <= 0 {
			*t.got = *t.def
		}
	}
	c.Site.fillDefaults(d.Site)
}

// Validate reports every setting that would make a run impossible.
func (c *Config) Validate() error {
	var errs []error
	switch c.Log.Format {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("log.format must be json or console, got %q", c.Log.Format))
	}
	switch c.Progress.Backend {
	case "memory":
	case "redis":
		if c.RedisAddr == "" {
			errs = append(errs, errors.New("progress.backend redis requires REDIS_ADDR"))
		}
	default:
		errs = append(errs, fmt.Errorf("progress.backend must be memory or redis, got %q", c.Progress.Backend))
	}
	for name, b := range map[string]utils.Band{
		"page_load":        c.Pacing.PageLoad,
		"form_interaction": c.Pacing.FormInteraction,
		"keystroke":        c.Pacing.Keystroke,
		"settle":           c.Pacing.Settle,
		"inter_job":        c.Pacing.InterJob,
		"inter_query":      c.Pacing.InterQuery,
	} {
		if b.Min < 0 || b.Max < b.Min {
			errs = append(errs, fmt.Errorf("pacing.%s: invalid band %s..%s", name, b.Min, b.Max))
		}
	}
	if err := c.Site.Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Default returns a configuration usable for a local headless run.
func Default() *Config {
	return &Config{
		LogsDir: "logs",
		Log:     LogConfig{Format: "console", Level: "info"},
		Server:  ServerConfig{Port: "8080"},
		Browser: BrowserConfig{
			Headless:            true,
			VisiblePacingFactor: 1.5,
			UserAgent:           "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			Locale:              "fr-FR",
			ViewportWidth:       1366,
			ViewportHeight:      768,
			ScreenshotDir:       "logs/screenshots",
			JitterEvery:         8,
		},
		Pacing: PacingConfig{
			PageLoad:        utils.NewBand(2000, 4000),
			FormInteraction: utils.NewBand(800, 2000),
			Keystroke:       utils.NewBand(50, 150),
			Settle:          utils.NewBand(150, 400),
			InterJob:        utils.NewBand(8000, 15000),
			InterQuery:      utils.NewBand(3000, 6000),
		},
		Timeouts: TimeoutConfig{
			Navigation:   45 * time.Second,
			Element:      10 * time.Second,
			Confirmation: 15 * time.Second,
			CaptchaGrace: 20 * time.Second,
			Action:       10 * time.Second,
			Screenshot:   30 * time.Second,
		},
		Search:   SearchConfig{MaxKeywords: 5, MaxPages: 3},
		Progress: ProgressConfig{Backend: "memory", Retention: 30 * time.Second, KeyPrefix: "jobpilot:progress:"},
		Site:     DefaultSiteProfile(),
	}
}

// PortAddr renders the listen address for gin.
func (s ServerConfig) PortAddr() string {
	if strings.HasPrefix(s.Port, ":") {
		return s.Port
	}
	return ":" + s.Port
}
