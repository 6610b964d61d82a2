package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
)

// Load resolves the configuration from the process environment and
// validates it. Callers that want .env support (local development, the
// job-runner CLI) load the dotenv file before calling Load.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	// The backoff table must cover every retry the cap allows. The last
	// entry is clamped for higher retry counts, so equality is not
	// required, but an empty table would leave retries unscheduled.
	if len(cfg.Retry.Backoff) < cfg.Retry.MaxRetryCount-1 {
		return nil, fmt.Errorf(
			"RETRY_BACKOFF has %d entries but RETRY_MAX_COUNT %d requires at least %d",
			len(cfg.Retry.Backoff), cfg.Retry.MaxRetryCount, cfg.Retry.MaxRetryCount-1,
		)
	}

	for _, days := range allThresholds(&cfg) {
		if days <= 0 {
			return nil, fmt.Errorf("reminder thresholds must be positive day counts, got %d", days)
		}
	}

	return &cfg, nil
}

func allThresholds(cfg *Config) []int {
	var out []int
	out = append(out, cfg.Reminder.LeaseThresholdDays...)
	out = append(out, cfg.Reminder.DocumentThresholdDays...)
	out = append(out, cfg.Reminder.ComplianceThresholdDays...)
	out = append(out, cfg.Reminder.ChequeThresholdDays...)
	return out
}
