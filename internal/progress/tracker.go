package progress

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"go-jobpilot/internal/models"
)

// ErrRegression is returned when an update would move CurrentJob backwards within a run.
var ErrRegression = errors.New("progress: current job cannot decrease within a run")

// Store keeps the latest record per configuration id. A ttl of zero means no expiry.
type Store interface {
	Put(ctx context.Context, rec models.ProgressRecord, ttl time.Duration) error
	Get(ctx context.Context, configID string) (models.ProgressRecord, bool, error)
	List(ctx context.Context) ([]models.ProgressRecord, error)
	Delete(ctx context.Context, configID string) error
}

// Tracker is the progress sink polled by the HTTP layer. Finished records stay
// readable for the retention window, then expire.
type Tracker struct {
	store     Store
	retention time.Duration
	log       *zap.Logger
	now       func() time.Time

	// serializes read-compare-write per process
	mu sync.Mutex
}

func NewTracker(store Store, retention time.Duration, log *zap.Logger) *Tracker {
	if log == nil {
		log = zap.NewNop()
	}
	return &Tracker{store: store, retention: retention, log: log, now: time.Now}
}

// Update replaces the record for rec.ConfigID.
func (t *Tracker) Update(ctx context.Context, rec models.ProgressRecord) error {
	if rec.ConfigID == "" {
		return errors.New("progress: config id is required")
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	prev, ok, err := t.store.Get(ctx, rec.ConfigID)
	if err != nil {
		return fmt.Errorf("read progress %s: %w", rec.ConfigID, err)
	}

	clamp(&rec)
	now := t.now().UTC()
	if ok && prev.RunID == rec.RunID {
		if rec.CurrentJob < prev.CurrentJob {
			t.log.Warn("⚠️ progress regression rejected",
				zap.String("config_id", rec.ConfigID),
				zap.Int("stored", prev.CurrentJob),
				zap.Int("update", rec.CurrentJob))
			return ErrRegression
		}
		if rec.StartedAt.IsZero() {
			rec.StartedAt = prev.StartedAt
		}
	}
	if rec.StartedAt.IsZero() {
		rec.StartedAt = now
	}
	rec.UpdatedAt = now

	var ttl time.Duration
	if rec.Status.Terminal() {
		ttl = t.retention
	}
	if err := t.store.Put(ctx, rec, ttl); err != nil {
		return fmt.Errorf("write progress %s: %w", rec.ConfigID, err)
	}
	return nil
}

func (t *Tracker) Get(ctx context.Context, configID string) (models.ProgressRecord, bool, error) {
	return t.store.Get(ctx, configID)
}

// All returns every live record ordered by configuration id.
func (t *Tracker) All(ctx context.Context) ([]models.ProgressRecord, error) {
	recs, err := t.store.List(ctx)
	if err != nil {
		return nil, err
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].ConfigID < recs[j].ConfigID })
	return recs, nil
}

func (t *Tracker) Clear(ctx context.Context, configID string) error {
	return t.store.Delete(ctx, configID)
}

func clamp(rec *models.ProgressRecord) {
	if rec.TotalJobs < 0 {
		rec.TotalJobs = 0
	}
	if rec.CurrentJob < 0 {
		rec.CurrentJob = 0
	}
	if rec.CurrentJob > rec.TotalJobs {
		rec.CurrentJob = rec.TotalJobs
	}
	if rec.SuccessCount < 0 {
		rec.SuccessCount = 0
	}
	if rec.FailCount < 0 {
		rec.FailCount = 0
	}
	if rec.Status == "" {
		rec.Status = models.ProgressRunning
	}
}
