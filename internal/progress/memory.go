package progress

import (
	"context"
	"sync"
	"time"

	"go-jobpilot/internal/models"
)

type memEntry struct {
	rec       models.ProgressRecord
	expiresAt time.Time // zero: never
}

// MemoryStore keeps records in process. Expired entries are dropped on access.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memEntry
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]memEntry), now: time.Now}
}

func (m *MemoryStore) Put(_ context.Context, rec models.ProgressRecord, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := memEntry{rec: rec}
	if ttl > 0 {
		e.expiresAt = m.now().Add(ttl)
	}
	m.entries[rec.ConfigID] = e
	return nil
}

func (m *MemoryStore) Get(_ context.Context, configID string) (models.ProgressRecord, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[configID]
	if !ok {
		return models.ProgressRecord{}, false, nil
	}
	if m.expired(e) {
		delete(m.entries, configID)
		return models.ProgressRecord{}, false, nil
	}
	return e.rec, true, nil
}

func (m *MemoryStore) List(_ context.Context) ([]models.ProgressRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.ProgressRecord, 0, len(m.entries))
	for id, e := range m.entries {
		if m.expired(e) {
			delete(m.entries, id)
			continue
		}
		out = append(out, e.rec)
	}
	return out, nil
}

func (m *MemoryStore) Delete(_ context.Context, configID string) error {
	m.mu.Lock()
	delete(m.entries, configID)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) expired(e memEntry) bool {
	return !e.expiresAt.IsZero() && !m.now().Before(e.expiresAt)
}
