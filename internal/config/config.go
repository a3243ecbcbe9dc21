package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/robfig/cron/v3"
)

// Config holds the application configuration
type Config struct {
	GitHubToken  string `envconfig:"GITHUB_TOKEN"`
	GitHubOwner  string `envconfig:"GITHUB_OWNER" validate:"required"`
	GitHubRepo   string `envconfig:"GITHUB_REPO" validate:"required"`
	GitHubAPIURL string `envconfig:"GITHUB_API_URL" validate:"omitempty,url"`

	// GitHub App installation auth, used when GITHUB_TOKEN is empty
	AppClientID       string `envconfig:"GITHUB_APP_CLIENT_ID"`
	AppPrivateKey     string `envconfig:"GITHUB_APP_PRIVATE_KEY"`
	AppInstallationID int64  `envconfig:"GITHUB_APP_INSTALLATION_ID" validate:"gte=0"`

	// Query window and fetch limits
	SinceDays         int `envconfig:"SINCE_DAYS" default:"90" validate:"gte=0"`
	PerPage           int `envconfig:"PER_PAGE" default:"100" validate:"gte=1,lte=100"`
	MaxPages          int `envconfig:"MAX_PAGES" default:"0" validate:"gte=0"`
	MaxDetailCommits  int `envconfig:"MAX_DETAIL_COMMITS" default:"200" validate:"gte=0"`
	DetailConcurrency int `envconfig:"DETAIL_CONCURRENCY" default:"5" validate:"gt=0"`
	RequestsPerMinute int `envconfig:"REQUESTS_PER_MINUTE" default:"600" validate:"gt=0"`
	CacheSize         int `envconfig:"CACHE_SIZE" default:"1000" validate:"gt=0"`

	// Closed pull requests scanned for merge metrics, 0 skips them
	MaxPullRequests int `envconfig:"MAX_PULL_REQUESTS" default:"2000" validate:"gte=0"`

	BusFactorThreshold float64 `envconfig:"BUS_FACTOR_THRESHOLD" default:"50" validate:"gt=0,lte=100"`

	// Output
	OutputDir  string `envconfig:"OUTPUT_DIR" default:"data" validate:"required"`
	WriteChart bool   `envconfig:"WRITE_CHART" default:"true"`
	LogLevel   string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`

	// Completion events, disabled when NATSUrl is empty
	NATSUrl     string `envconfig:"NATS_URL"`
	NATSSubject string `envconfig:"NATS_SUBJECT" default:"repo.activity.exported" validate:"required"`

	// Scheduling, a single export runs when CronSchedule is empty
	CronSchedule string `envconfig:"CRON_SCHEDULE"`
	RunOnStartup bool   `envconfig:"RUN_ON_STARTUP"`
}

// UsesGitHubApp reports whether GitHub App installation credentials are configured
func (c *Config) UsesGitHubApp() bool {
	return c.AppClientID != "" && c.AppPrivateKey != "" && c.AppInstallationID != 0
}

// Load loads configuration from .env files and environment variables
func Load() (*Config, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	if err := cfg.resolveRepository(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks required fields and value ranges
func (c *Config) Validate() error {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		return fld.Tag.Get("envconfig")
	})

	if err := v.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return describe(verrs[0])
		}
		return fmt.Errorf("config validation: %w", err)
	}

	if c.GitHubToken == "" && !c.UsesGitHubApp() {
		if c.AppClientID != "" || c.AppPrivateKey != "" || c.AppInstallationID != 0 {
			return fmt.Errorf("GITHUB_APP_CLIENT_ID, GITHUB_APP_PRIVATE_KEY and GITHUB_APP_INSTALLATION_ID must all be set for GitHub App auth")
		}
		return fmt.Errorf("GITHUB_TOKEN environment variable is required")
	}

	if c.CronSchedule != "" {
		if _, err := cron.ParseStandard(c.CronSchedule); err != nil {
			return fmt.Errorf("CRON_SCHEDULE %q is invalid: %w", c.CronSchedule, err)
		}
	}

	return nil
}

func describe(fe validator.FieldError) error {
	if fe.Tag() == "required" {
		return fmt.Errorf("%s environment variable is required", fe.Field())
	}
	return fmt.Errorf("%s has invalid value %v (must satisfy %s)", fe.Field(), fe.Value(), constraint(fe))
}

func constraint(fe validator.FieldError) string {
	if fe.Param() == "" {
		return fe.Tag()
	}
	return fe.Tag() + "=" + fe.Param()
}

// loadDotEnv loads .env and .env.<APP_ENV> when present. Variables already in
// the environment take precedence.
func loadDotEnv() error {
	files := []string{".env"}
	if appEnv := strings.TrimSpace(os.Getenv("APP_ENV")); appEnv != "" {
		files = append([]string{".env." + appEnv}, files...)
	}

	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	return nil
}
