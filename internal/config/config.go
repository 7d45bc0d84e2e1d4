package config

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/trussworks/terraform-aws-iam-sleuth/internal/audit"
	"github.com/trussworks/terraform-aws-iam-sleuth/internal/report"
)

// Config holds all environment-sourced configuration for the key auditor.
type Config struct {
	Policy audit.Policy
	Titles report.Titles

	SNSTopic          string
	SlackURL          string
	SlackURLSecretARN string

	Debug            bool
	FetchConcurrency int
}

// Load reads configuration from environment variables and validates required fields.
func Load() (*Config, error) {
	if err := validate(); err != nil {
		return nil, err
	}

	cfg := &Config{
		Titles: report.Titles{
			AgeTitle:        os.Getenv("NOTIFICATION_TITLE"),
			AgeBody:         os.Getenv("NOTIFICATION_TEXT"),
			InactivityTitle: os.Getenv("INACTIVITY_NOTIFICATION_TITLE"),
			InactivityBody:  os.Getenv("INACTIVITY_NOTIFICATION_TEXT"),
		},
		SNSTopic:          os.Getenv("SNS_TOPIC"),
		SlackURL:          os.Getenv("SLACK_URL"),
		SlackURLSecretARN: os.Getenv("SLACK_URL_SECRET_ARN"),
		Debug:             envBool("DEBUG"),
		FetchConcurrency:  1,
	}

	var err error
	if cfg.Policy.RotateAfterDays, err = envInt("WARNING_AGE"); err != nil {
		return nil, err
	}
	if cfg.Policy.ExpireAfterDays, err = envInt("EXPIRATION_AGE"); err != nil {
		return nil, err
	}
	if cfg.Policy.MaxInactivityDays, err = envInt("INACTIVITY_AGE"); err != nil {
		return nil, err
	}
	if cfg.Policy.InactivityWarnDays, err = envInt("INACTIVITY_WARNING_AGE"); err != nil {
		return nil, err
	}
	cfg.Policy.AutoExpire = os.Getenv("ENABLE_AUTO_EXPIRE") == "true"

	if v := os.Getenv("FETCH_CONCURRENCY"); v != "" {
		if cfg.FetchConcurrency, err = envInt("FETCH_CONCURRENCY"); err != nil {
			return nil, err
		}
		if cfg.FetchConcurrency < 1 {
			return nil, fmt.Errorf("FETCH_CONCURRENCY must be at least 1, got %d", cfg.FetchConcurrency)
		}
	}

	if err := cfg.Policy.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// WebhookConfigured reports whether a webhook URL is available directly or by
// secret reference.
func (c *Config) WebhookConfigured() bool {
	return c.SlackURL != "" || c.SlackURLSecretARN != ""
}

func validate() error {
	required := []string{"WARNING_AGE", "EXPIRATION_AGE"}
	if os.Getenv("INACTIVITY_AGE") != "" {
		required = append(required, "INACTIVITY_WARNING_AGE")
	}

	var missing []string
	for _, name := range required {
		if os.Getenv(name) == "" {
			missing = append(missing, name)
		}
	}

	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("missing required environment variables: %v", missing)
	}
	return nil
}

// envInt parses a whole number of days. Unset means zero.
func envInt(name string) (int, error) {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", name, v, err)
	}
	if n < 0 {
		return 0, fmt.Errorf("invalid %s %q: must not be negative", name, v)
	}
	return n, nil
}

func envBool(name string) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(name)))
	return v == "true" || v == "1"
}
