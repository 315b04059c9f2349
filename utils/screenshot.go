package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"
)

var unsafeTagChars = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// ScreenshotStore persists audit screenshots as files named
// <timestamp>_<session>_<tag>.png under one directory.
type ScreenshotStore struct {
	outputDir string
	now       func() time.Time
}

func NewScreenshotStore(dir string) (*ScreenshotStore, error) {
	if dir == "" {
		dir = filepath.Join(".", "logs", "screenshots")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create screenshot dir: %w", err)
	}
	return &ScreenshotStore{outputDir: dir, now: time.Now}, nil
}

// Key builds the reference an image is stored under.
func (s *ScreenshotStore) Key(sessionID, tag string) string {
	timestamp := s.now().UTC().Format("2006-01-02_15-04-05.000")
	tag = strings.Trim(unsafeTagChars.ReplaceAllString(tag, "-"), "-")
	if tag == "" {
		tag = "capture"
	}
	return fmt.Sprintf("%s_%s_%s.png", timestamp, sessionID, tag)
}

// Save writes raw PNG bytes and returns the stored path.
func (s *ScreenshotStore) Save(sessionID, tag string, png []byte) (string, error) {
	path := filepath.Join(s.outputDir, s.Key(sessionID, tag))
	if err := os.WriteFile(path, png, 0644); err != nil {
		return "", fmt.Errorf("write screenshot: %w", err)
	}
	return path, nil
}

// Capture takes a full-page screenshot of page and stores it.
func (s *ScreenshotStore) Capture(page playwright.Page, sessionID, tag string, timeout time.Duration) (string, error) {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	png, err := page.Screenshot(playwright.PageScreenshotOptions{
		FullPage: playwright.Bool(true),
		Timeout:  playwright.Float(float64(timeout.Milliseconds())),
	})
	if err != nil {
		return "", fmt.Errorf("capture screenshot: %w", err)
	}
	return s.Save(sessionID, tag, png)
}
