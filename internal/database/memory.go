package database

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"go-jobpilot/internal/models"
)

// MemoryStore keeps everything in process. It backs tests and local runs
// without DATABASE_URL, with the same uniqueness rules as the Postgres schema.
type MemoryStore struct {
	mu       sync.Mutex
	configs  map[string]models.AutomationConfig
	users    map[string]models.UserProfile
	jobs     map[string]*models.Job // by URL
	attempts []models.ApplicationAttempt
	now      func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		configs: make(map[string]models.AutomationConfig),
		users:   make(map[string]models.UserProfile),
		jobs:    make(map[string]*models.Job),
		now:     time.Now,
	}
}

// SetClock replaces the time source used for created_at stamps.
func (m *MemoryStore) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

func (m *MemoryStore) SaveConfig(_ context.Context, c *models.AutomationConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	now := m.now()
	if prev, ok := m.configs[c.ID]; ok {
		c.CreatedAt = prev.CreatedAt
	} else {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	m.configs[c.ID] = *c
	return nil
}

func (m *MemoryStore) GetConfig(_ context.Context, id string) (*models.AutomationConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.configs[id]
	if !ok {
		return nil, fmt.Errorf("config %s: %w", id, models.ErrNotFound)
	}
	return &c, nil
}

func (m *MemoryStore) ListActiveConfigs(context.Context) ([]models.AutomationConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.AutomationConfig
	for _, c := range m.configs {
		if c.IsActive {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) SaveUser(_ context.Context, u *models.UserProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	m.users[u.ID] = *u
	return nil
}

func (m *MemoryStore) GetUserByID(_ context.Context, id string) (*models.UserProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, models.ErrNotFound)
	}
	return &u, nil
}

func (m *MemoryStore) FindJobByURL(_ context.Context, url string) (*models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[url]
	if !ok {
		return nil, fmt.Errorf("job %s: %w", url, models.ErrNotFound)
	}
	cp := *j
	return &cp, nil
}

func (m *MemoryStore) CreateOrUpdateJob(_ context.Context, job *models.Job) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	if prev, ok := m.jobs[job.URL]; ok {
		job.ID = prev.ID
		job.CreatedAt = prev.CreatedAt
	} else {
		job.ID = uuid.NewString()
		job.CreatedAt = now
	}
	job.UpdatedAt = now
	cp := *job
	m.jobs[job.URL] = &cp
	return job.ID, nil
}

func (m *MemoryStore) CreateApplicationAttempt(_ context.Context, a *models.ApplicationAttempt) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, prev := range m.attempts {
		if prev.UserID == a.UserID && prev.JobID == a.JobID {
			return "", models.ErrDuplicateAttempt
		}
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	a.CreatedAt = m.now()
	m.attempts = append(m.attempts, *a)
	return a.ID, nil
}

func (m *MemoryStore) AttemptExists(_ context.Context, userID, jobID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.attempts {
		if a.UserID == userID && a.JobID == jobID {
			return true, nil
		}
	}
	return false, nil
}

func (m *MemoryStore) CountAppliedSince(_ context.Context, configID string, since time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, a := range m.attempts {
		if a.ConfigID == configID && a.Status == models.StatusApplied && !a.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

// ListAttempts returns a user's attempts, newest first.
func (m *MemoryStore) ListAttempts(_ context.Context, userID string) ([]models.ApplicationAttempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.ApplicationAttempt
	for i := len(m.attempts) - 1; i >= 0; i-- {
		if m.attempts[i].UserID == userID {
			out = append(out, m.attempts[i])
		}
	}
	return out, nil
}
