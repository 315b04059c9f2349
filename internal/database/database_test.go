package database

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-jobpilot/internal/models"
)

type store interface {
	SaveConfig(ctx context.Context, c *models.AutomationConfig) error
	GetConfig(ctx context.Context, id string) (*models.AutomationConfig, error)
	SaveUser(ctx context.Context, u *models.UserProfile) error
	GetUserByID(ctx context.Context, id string) (*models.UserProfile, error)
	FindJobByURL(ctx context.Context, url string) (*models.Job, error)
	CreateOrUpdateJob(ctx context.Context, job *models.Job) (string, error)
	CreateApplicationAttempt(ctx context.Context, a *models.ApplicationAttempt) (string, error)
	AttemptExists(ctx context.Context, userID, jobID string) (bool, error)
	CountAppliedSince(ctx context.Context, configID string, since time.Time) (int, error)
	ListAttempts(ctx context.Context, userID string) ([]models.ApplicationAttempt, error)
}

var (
	_ store = (*MemoryStore)(nil)
	_ store = (*Repository)(nil)
)

// exerciseStore runs the persistence contract shared by every backend.
func exerciseStore(t *testing.T, s store) {
	ctx := context.Background()
	suffix := uuid.NewString()[:8]

	user := &models.UserProfile{FullName: "Ada Lovelace", Phone: "0600000000", City: "Paris"}
	require.NoError(t, s.SaveUser(ctx, user))
	require.NotEmpty(t, user.ID)

	cfg := &models.AutomationConfig{
		UserID: user.ID, Site: "board", Email: "ada@example.com", Password: "pw",
		Skills: []string{"go", "postgres"}, MaxApplicationsPerDay: 3, IsActive: true,
	}
	require.NoError(t, s.SaveConfig(ctx, cfg))

	t.Run("lookups", func(t *testing.T) {
		got, err := s.GetConfig(ctx, cfg.ID)
		require.NoError(t, err)
		assert.Equal(t, []string{"go", "postgres"}, got.Skills)
		assert.Equal(t, "pw", got.Password)

		u, err := s.GetUserByID(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, "Paris", u.City)

		_, err = s.GetConfig(ctx, "missing-"+suffix)
		assert.ErrorIs(t, err, models.ErrNotFound)
		_, err = s.GetUserByID(ctx, "missing-"+suffix)
		assert.ErrorIs(t, err, models.ErrNotFound)
		_, err = s.FindJobByURL(ctx, "https://board.test/none/"+suffix)
		assert.ErrorIs(t, err, models.ErrNotFound)
	})

	url := "https://board.test/jobs/" + suffix
	job := &models.Job{JobListing: models.JobListing{URL: url, Title: "Go dev", Company: "Acme"}, MatchScore: 40}
	id, err := s.CreateOrUpdateJob(ctx, job)
	require.NoError(t, err)

	t.Run("job upsert keeps id", func(t *testing.T) {
		again := &models.Job{JobListing: models.JobListing{URL: url, Title: "Senior Go dev", Company: "Acme"}, MatchScore: 70}
		id2, err := s.CreateOrUpdateJob(ctx, again)
		require.NoError(t, err)
		assert.Equal(t, id, id2)

		got, err := s.FindJobByURL(ctx, url)
		require.NoError(t, err)
		assert.Equal(t, "Senior Go dev", got.Title)
		assert.Equal(t, 70, got.MatchScore)
	})

	t.Run("one attempt per user and job", func(t *testing.T) {
		exists, err := s.AttemptExists(ctx, user.ID, id)
		require.NoError(t, err)
		assert.False(t, exists)

		var wg sync.WaitGroup
		errs := make([]error, 5)
		for i := range errs {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, errs[i] = s.CreateApplicationAttempt(ctx, &models.ApplicationAttempt{
					JobID: id, UserID: user.ID, ConfigID: cfg.ID, Status: models.StatusApplied, Channel: "board",
				})
			}(i)
		}
		wg.Wait()

		created := 0
		for _, err := range errs {
			if err == nil {
				created++
				continue
			}
			assert.ErrorIs(t, err, models.ErrDuplicateAttempt)
		}
		assert.Equal(t, 1, created)

		exists, err = s.AttemptExists(ctx, user.ID, id)
		require.NoError(t, err)
		assert.True(t, exists)
	})

	t.Run("applied count", func(t *testing.T) {
		other := &models.Job{JobListing: models.JobListing{URL: url + "/b", Title: "Other"}}
		otherID, err := s.CreateOrUpdateJob(ctx, other)
		require.NoError(t, err)
		_, err = s.CreateApplicationAttempt(ctx, &models.ApplicationAttempt{
			JobID: otherID, UserID: user.ID, ConfigID: cfg.ID, Status: models.StatusFailed,
			Reason: models.ReasonFormNotFound, Notes: models.ReasonFormNotFound.Message(),
		})
		require.NoError(t, err)

		n, err := s.CountAppliedSince(ctx, cfg.ID, time.Now().Add(-time.Hour))
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		n, err = s.CountAppliedSince(ctx, cfg.ID, time.Now().Add(time.Hour))
		require.NoError(t, err)
		assert.Zero(t, n)

		attempts, err := s.ListAttempts(ctx, user.ID)
		require.NoError(t, err)
		require.Len(t, attempts, 2)
		assert.Equal(t, models.ReasonFormNotFound, attempts[0].Reason)
	})
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestMemoryStore_ActiveConfigs(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	require.NoError(t, m.SaveConfig(ctx, &models.AutomationConfig{ID: "b", IsActive: true}))
	require.NoError(t, m.SaveConfig(ctx, &models.AutomationConfig{ID: "a", IsActive: true}))
	require.NoError(t, m.SaveConfig(ctx, &models.AutomationConfig{ID: "c"}))

	got, err := m.ListActiveConfigs(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].ID)
	assert.Equal(t, "b", got[1].ID)
}

func TestMemoryStore_CountUsesClock(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	yesterday := time.Date(2026, 3, 9, 23, 0, 0, 0, time.UTC)
	m.SetClock(func() time.Time { return yesterday })
	_, err := m.CreateApplicationAttempt(ctx, &models.ApplicationAttempt{JobID: "j1", UserID: "u", ConfigID: "c", Status: models.StatusApplied})
	require.NoError(t, err)

	m.SetClock(func() time.Time { return yesterday.Add(2 * time.Hour) })
	_, err = m.CreateApplicationAttempt(ctx, &models.ApplicationAttempt{JobID: "j2", UserID: "u", ConfigID: "c", Status: models.StatusApplied})
	require.NoError(t, err)

	n, err := m.CountAppliedSince(ctx, "c", time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestStatements(t *testing.T) {
	stmts := statements(schemaSQL)
	require.Len(t, stmts, 5)
	assert.Contains(t, stmts[3], "UNIQUE (user_id, job_id)")
}

func TestRepository_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping database integration test in short mode")
	}
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set")
	}

	ctx := context.Background()
	repo, err := ConnectDB(ctx, dsn)
	require.NoError(t, err)
	defer repo.Close()
	require.NoError(t, repo.Migrate(ctx))

	exerciseStore(t, repo)
}
