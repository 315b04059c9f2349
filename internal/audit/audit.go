package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
)

type Level string

const (
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Entry is one recorded step of a run.
type Entry struct {
	Timestamp     time.Time      `json:"timestamp"`
	Level         Level          `json:"level"`
	Action        string         `json:"action"`
	Details       map[string]any `json:"details,omitempty"`
	ScreenshotRef string         `json:"screenshotRef,omitempty"`
}

type Summary struct {
	RunID      string         `json:"runId"`
	StartedAt  time.Time      `json:"startedAt"`
	FinishedAt time.Time      `json:"finishedAt"`
	Duration   string         `json:"duration"`
	Counts     map[string]int `json:"counts"`
	Errors     []string       `json:"errors"`
	Entries    int            `json:"entries"`
}

// Log collects a run's audit trail in memory and mirrors every entry to zap.
// It is safe for concurrent use.
type Log struct {
	mu      sync.Mutex
	runID   string
	logger  *zap.Logger
	now     func() time.Time
	started time.Time
	entries []Entry
	counts  map[string]int
	errors  []string
}

func New(runID string, logger *zap.Logger) *Log {
	if logger == nil {
		logger = zap.NewNop()
	}
	l := &Log{
		runID:  runID,
		logger: logger.With(zap.String("run_id", runID)),
		now:    time.Now,
		counts: make(map[string]int),
	}
	l.started = l.now()
	return l
}

func (l *Log) RunID() string { return l.runID }

// Record appends an entry. Error entries also land in the summary's error list.
func (l *Log) Record(level Level, action string, details map[string]any, screenshotRef string) {
	l.mu.Lock()
	e := Entry{
		Timestamp:     l.now().UTC(),
		Level:         level,
		Action:        action,
		Details:       details,
		ScreenshotRef: screenshotRef,
	}
	l.entries = append(l.entries, e)
	if level == LevelError {
		msg := action
		if v, ok := details["error"]; ok {
			msg = fmt.Sprintf("%s: %v", action, v)
		}
		l.errors = append(l.errors, msg)
	}
	l.mu.Unlock()

	fields := []zap.Field{zap.String("action", action)}
	if len(details) > 0 {
		fields = append(fields, zap.Any("details", details))
	}
	if screenshotRef != "" {
		fields = append(fields, zap.String("screenshot", screenshotRef))
	}
	switch level {
	case LevelError:
		l.logger.Error("audit", fields...)
	case LevelWarn:
		l.logger.Warn("audit", fields...)
	default:
		l.logger.Info("audit", fields...)
	}
}

func (l *Log) Info(action string, details map[string]any) {
	l.Record(LevelInfo, action, details, "")
}

func (l *Log) Warn(action string, details map[string]any) {
	l.Record(LevelWarn, action, details, "")
}

func (l *Log) Error(action string, err error, details map[string]any) {
	if details == nil {
		details = map[string]any{}
	}
	if err != nil {
		details["error"] = err.Error()
	}
	l.Record(LevelError, action, details, "")
}

// Count bumps a named counter shown in the summary.
func (l *Log) Count(name string) {
	l.mu.Lock()
	l.counts[name]++
	l.mu.Unlock()
}

func (l *Log) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

func (l *Log) Summary() Summary {
	l.mu.Lock()
	defer l.mu.Unlock()
	finished := l.now()
	counts := make(map[string]int, len(l.counts))
	for k, v := range l.counts {
		counts[k] = v
	}
	errs := make([]string, len(l.errors))
	copy(errs, l.errors)
	return Summary{
		RunID:      l.runID,
		StartedAt:  l.started.UTC(),
		FinishedAt: finished.UTC(),
		Duration:   finished.Sub(l.started).Round(time.Millisecond).String(),
		Counts:     counts,
		Errors:     errs,
		Entries:    len(l.entries),
	}
}

// Flush writes the summary and every entry to <dir>/<run-id>.json.
func (l *Log) Flush(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create audit dir: %w", err)
	}
	doc := struct {
		Summary Summary `json:"summary"`
		Entries []Entry `json:"entries"`
	}{l.Summary(), l.Entries()}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode audit log: %w", err)
	}
	path := filepath.Join(dir, l.runID+".json")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("write audit log: %w", err)
	}
	l.logger.Info("📝 audit log written", zap.String("path", path))
	return path, nil
}
