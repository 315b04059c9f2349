package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"go-jobpilot/internal/models"
)

type Repository struct {
	db *pgxpool.Pool
}

func ConnectDB(ctx context.Context, connString string) (*Repository, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database url: %w", err)
	}

	config.MaxConns = 10
	config.MinConns = 2
	config.MaxConnLifetime = time.Hour

	// Transaction-mode poolers (PgBouncer, Supabase) reject cached prepared statements.
	config.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeExec

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}

	// Ping to ensure connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database unreachable: %w", err)
	}

	return &Repository{db: pool}, nil
}

func (r *Repository) Close() {
	if r.db != nil {
		r.db.Close()
	}
}

// ---------------- CONFIG OPERATIONS ----------------

const configColumns = `id, user_id, site, email, password, skills, locations, salary_min, salary_max,
	remote_only, max_applications_per_day, cover_letter_template, use_cover_letter,
	skill_match_threshold, blacklist_keywords, fallback_phone, fallback_postal_code,
	fallback_city, is_active, created_at, updated_at`

func scanConfig(row pgx.Row) (*models.AutomationConfig, error) {
	var c models.AutomationConfig
	err := row.Scan(&c.ID, &c.UserID, &c.Site, &c.Email, &c.Password, &c.Skills, &c.Locations,
		&c.SalaryMin, &c.SalaryMax, &c.RemoteOnly, &c.MaxApplicationsPerDay, &c.CoverLetterTemplate,
		&c.UseCoverLetter, &c.SkillMatchThreshold, &c.BlacklistKeywords, &c.FallbackPhone,
		&c.FallbackPostalCode, &c.FallbackCity, &c.IsActive, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// GetConfig returns models.ErrNotFound when no configuration has this id.
func (r *Repository) GetConfig(ctx context.Context, id string) (*models.AutomationConfig, error) {
	c, err := scanConfig(r.db.QueryRow(ctx, "SELECT "+configColumns+" FROM automation_configs WHERE id = $1", id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("config %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get config: %w", err)
	}
	return c, nil
}

// ListActiveConfigs returns every active configuration ordered by id.
func (r *Repository) ListActiveConfigs(ctx context.Context) ([]models.AutomationConfig, error) {
	rows, err := r.db.Query(ctx, "SELECT "+configColumns+" FROM automation_configs WHERE is_active ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to list configs: %w", err)
	}
	defer rows.Close()

	var out []models.AutomationConfig
	for rows.Next() {
		c, err := scanConfig(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan config: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// SaveConfig inserts or replaces a configuration. An empty ID is generated.
func (r *Repository) SaveConfig(ctx context.Context, c *models.AutomationConfig) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	query := `
		INSERT INTO automation_configs (` + configColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, now(), now())
		ON CONFLICT (id)
		DO UPDATE SET user_id = EXCLUDED.user_id, site = EXCLUDED.site, email = EXCLUDED.email,
			password = EXCLUDED.password, skills = EXCLUDED.skills, locations = EXCLUDED.locations,
			salary_min = EXCLUDED.salary_min, salary_max = EXCLUDED.salary_max,
			remote_only = EXCLUDED.remote_only, max_applications_per_day = EXCLUDED.max_applications_per_day,
			cover_letter_template = EXCLUDED.cover_letter_template, use_cover_letter = EXCLUDED.use_cover_letter,
			skill_match_threshold = EXCLUDED.skill_match_threshold, blacklist_keywords = EXCLUDED.blacklist_keywords,
			fallback_phone = EXCLUDED.fallback_phone, fallback_postal_code = EXCLUDED.fallback_postal_code,
			fallback_city = EXCLUDED.fallback_city, is_active = EXCLUDED.is_active, updated_at = now()
		RETURNING created_at, updated_at`

	err := r.db.QueryRow(ctx, query, c.ID, c.UserID, c.Site, c.Email, c.Password, nonNil(c.Skills),
		nonNil(c.Locations), c.SalaryMin, c.SalaryMax, c.RemoteOnly, c.MaxApplicationsPerDay,
		c.CoverLetterTemplate, c.UseCoverLetter, c.SkillMatchThreshold, nonNil(c.BlacklistKeywords),
		c.FallbackPhone, c.FallbackPostalCode, c.FallbackCity, c.IsActive).
		Scan(&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	return nil
}

// ---------------- USER OPERATIONS ----------------

func (r *Repository) GetUserByID(ctx context.Context, id string) (*models.UserProfile, error) {
	var u models.UserProfile
	err := r.db.QueryRow(ctx, "SELECT id, full_name, email, phone, address, postal_code, city FROM users WHERE id = $1", id).
		Scan(&u.ID, &u.FullName, &u.Email, &u.Phone, &u.Address, &u.PostalCode, &u.City)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("user %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &u, nil
}

func (r *Repository) SaveUser(ctx context.Context, u *models.UserProfile) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	query := `
		INSERT INTO users (id, full_name, email, phone, address, postal_code, city)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id)
		DO UPDATE SET full_name = EXCLUDED.full_name, email = EXCLUDED.email, phone = EXCLUDED.phone,
			address = EXCLUDED.address, postal_code = EXCLUDED.postal_code, city = EXCLUDED.city, updated_at = now()`

	if _, err := r.db.Exec(ctx, query, u.ID, u.FullName, u.Email, u.Phone, u.Address, u.PostalCode, u.City); err != nil {
		return fmt.Errorf("failed to save user: %w", err)
	}
	return nil
}

// ---------------- JOB OPERATIONS ----------------

const jobColumns = `id, external_id, source, title, company, location, url, description, posted_at,
	posted_label, salary_min, salary_max, salary_text, tags, remote, match_score, created_at, updated_at`

func (r *Repository) FindJobByURL(ctx context.Context, url string) (*models.Job, error) {
	var j models.Job
	err := r.db.QueryRow(ctx, "SELECT "+jobColumns+" FROM jobs WHERE url = $1", url).
		Scan(&j.ID, &j.ExternalID, &j.Source, &j.Title, &j.Company, &j.Location, &j.URL, &j.Description,
			&j.PostedAt, &j.PostedLabel, &j.SalaryMin, &j.SalaryMax, &j.SalaryText, &j.Tags, &j.Remote,
			&j.MatchScore, &j.CreatedAt, &j.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("job %s: %w", url, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find job: %w", err)
	}
	return &j, nil
}

// CreateOrUpdateJob upserts the snapshot keyed by URL and returns the stored id.
func (r *Repository) CreateOrUpdateJob(ctx context.Context, job *models.Job) (string, error) {
	query := `
		INSERT INTO jobs (id, external_id, source, title, company, location, url, description, posted_at,
			posted_label, salary_min, salary_max, salary_text, tags, remote, match_score)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (url)
		DO UPDATE SET external_id = EXCLUDED.external_id, title = EXCLUDED.title, company = EXCLUDED.company,
			location = EXCLUDED.location, description = EXCLUDED.description, posted_at = EXCLUDED.posted_at,
			posted_label = EXCLUDED.posted_label, salary_min = EXCLUDED.salary_min,
			salary_max = EXCLUDED.salary_max, salary_text = EXCLUDED.salary_text, tags = EXCLUDED.tags,
			remote = EXCLUDED.remote, match_score = EXCLUDED.match_score, updated_at = now()
		RETURNING id, created_at, updated_at`

	err := r.db.QueryRow(ctx, query, uuid.NewString(), job.ExternalID, job.Source, job.Title, job.Company,
		job.Location, job.URL, job.Description, job.PostedAt, job.PostedLabel, job.SalaryMin, job.SalaryMax,
		job.SalaryText, nonNil(job.Tags), job.Remote, job.MatchScore).
		Scan(&job.ID, &job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		return "", fmt.Errorf("failed to save job: %w", err)
	}
	return job.ID, nil
}

// ---------------- APPLICATION OPERATIONS ----------------

// CreateApplicationAttempt inserts the attempt unless one already exists for the
// same user and job, in which case models.ErrDuplicateAttempt is returned.
func (r *Repository) CreateApplicationAttempt(ctx context.Context, a *models.ApplicationAttempt) (string, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	query := `
		INSERT INTO application_attempts (id, job_id, user_id, config_id, status, channel, cover_text,
			notes, reason, screenshot_ref)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (user_id, job_id) DO NOTHING
		RETURNING created_at`

	err := r.db.QueryRow(ctx, query, a.ID, a.JobID, a.UserID, a.ConfigID, string(a.Status), a.Channel,
		a.CoverText, a.Notes, string(a.Reason), a.ScreenshotRef).
		Scan(&a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", models.ErrDuplicateAttempt
	}
	if err != nil {
		return "", fmt.Errorf("failed to create application attempt: %w", err)
	}
	return a.ID, nil
}

func (r *Repository) AttemptExists(ctx context.Context, userID, jobID string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM application_attempts WHERE user_id = $1 AND job_id = $2)",
		userID, jobID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check attempt: %w", err)
	}
	return exists, nil
}

// CountAppliedSince counts APPLIED attempts of a configuration created at or after since.
func (r *Repository) CountAppliedSince(ctx context.Context, configID string, since time.Time) (int, error) {
	var n int
	err := r.db.QueryRow(ctx,
		"SELECT count(*) FROM application_attempts WHERE config_id = $1 AND status = $2 AND created_at >= $3",
		configID, string(models.StatusApplied), since).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count applications: %w", err)
	}
	return n, nil
}

// ListAttempts returns a user's attempts, newest first.
func (r *Repository) ListAttempts(ctx context.Context, userID string) ([]models.ApplicationAttempt, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, job_id, user_id, config_id, status, channel, cover_text, notes, reason, screenshot_ref, created_at
		FROM application_attempts WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list attempts: %w", err)
	}
	defer rows.Close()

	var out []models.ApplicationAttempt
	for rows.Next() {
		var a models.ApplicationAttempt
		var status, reason string
		if err := rows.Scan(&a.ID, &a.JobID, &a.UserID, &a.ConfigID, &status, &a.Channel, &a.CoverText,
			&a.Notes, &reason, &a.ScreenshotRef, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan attempt: %w", err)
		}
		a.Status = models.AttemptStatus(status)
		a.Reason = models.FailureReason(reason)
		out = append(out, a)
	}
	return out, rows.Err()
}

// TEXT[] NOT NULL columns reject a nil slice.
func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
