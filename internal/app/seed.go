package app

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"go-jobpilot/internal/models"
)

// SeedFile is the YAML layout accepted by LoadSeed: users and their
// automation configurations, edited outside the service.
type SeedFile struct {
	Users   []SeedUser   `yaml:"users"`
	Configs []SeedConfig `yaml:"configs"`
}

type SeedUser struct {
	ID         string `yaml:"id"`
	FullName   string `yaml:"full_name"`
	Email      string `yaml:"email"`
	Phone      string `yaml:"phone"`
	Address    string `yaml:"address"`
	PostalCode string `yaml:"postal_code"`
	City       string `yaml:"city"`
}

type SeedConfig struct {
	ID                    string   `yaml:"id"`
	UserID                string   `yaml:"user_id"`
	Site                  string   `yaml:"site"`
	Email                 string   `yaml:"email"`
	Password              string   `yaml:"password"`
	Skills                []string `yaml:"skills"`
	Locations             []string `yaml:"locations"`
	SalaryMin             int      `yaml:"salary_min"`
	SalaryMax             int      `yaml:"salary_max"`
	RemoteOnly            bool     `yaml:"remote_only"`
	MaxApplicationsPerDay *int     `yaml:"max_applications_per_day"`
	CoverLetterTemplate   string   `yaml:"cover_letter_template"`
	UseCoverLetter        bool     `yaml:"use_cover_letter"`
	SkillMatchThreshold   int      `yaml:"skill_match_threshold"`
	BlacklistKeywords     []string `yaml:"blacklist_keywords"`
	FallbackPhone         string   `yaml:"fallback_phone"`
	FallbackPostalCode    string   `yaml:"fallback_postal_code"`
	FallbackCity          string   `yaml:"fallback_city"`
	IsActive              *bool    `yaml:"is_active"`
}

const defaultMaxApplicationsPerDay = 10

func LoadSeed(path string) (*SeedFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var f SeedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	for i, c := range f.Configs {
		if c.ID == "" || c.UserID == "" {
			return nil, fmt.Errorf("%s: configs[%d] needs id and user_id", path, i)
		}
	}
	return &f, nil
}

// Apply upserts users first so configurations can reference them.
// Password values of the form ${VAR} are read from the environment.
func (f *SeedFile) Apply(ctx context.Context, store Store) error {
	for _, u := range f.Users {
		user := models.UserProfile(u)
		if err := store.SaveUser(ctx, &user); err != nil {
			return err
		}
	}
	for _, c := range f.Configs {
		cfg := c.toModel()
		if err := store.SaveConfig(ctx, &cfg); err != nil {
			return err
		}
	}
	return nil
}

func (c SeedConfig) toModel() models.AutomationConfig {
	maxPerDay := defaultMaxApplicationsPerDay
	if c.MaxApplicationsPerDay != nil {
		maxPerDay = *c.MaxApplicationsPerDay
	}
	active := true
	if c.IsActive != nil {
		active = *c.IsActive
	}
	return models.AutomationConfig{
		ID:                    c.ID,
		UserID:                c.UserID,
		Site:                  c.Site,
		Email:                 c.Email,
		Password:              os.ExpandEnv(c.Password),
		Skills:                c.Skills,
		Locations:             c.Locations,
		SalaryMin:             c.SalaryMin,
		SalaryMax:             c.SalaryMax,
		RemoteOnly:            c.RemoteOnly,
		MaxApplicationsPerDay: maxPerDay,
		CoverLetterTemplate:   c.CoverLetterTemplate,
		UseCoverLetter:        c.UseCoverLetter,
		SkillMatchThreshold:   c.SkillMatchThreshold,
		BlacklistKeywords:     c.BlacklistKeywords,
		FallbackPhone:         c.FallbackPhone,
		FallbackPostalCode:    c.FallbackPostalCode,
		FallbackCity:          c.FallbackCity,
		IsActive:              active,
	}
}
