// Package config defines the configuration for the dwellops scheduler.
// Configuration is loaded once at process start and is immutable thereafter.
// Values come from the OS environment (optionally seeded from a .env file in
// local development); any missing required value or invalid format fails the
// process immediately.
package config

import "time"

// Config is the top-level configuration struct. Sub-components receive only
// the specific subsets they require.
type Config struct {
	Environment string `envconfig:"APP_ENV" default:"local" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"dwellops-scheduler"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`

	Database  DatabaseConfig
	Mail      MailConfig
	Schedule  ScheduleConfig
	Retry     RetryConfig
	Reminder  ReminderConfig
	Lifecycle LifecycleConfig
	Retention RetentionConfig
	Stats     StatsConfig
	Ops       OpsConfig
}

// DatabaseConfig holds connection and pool tuning parameters.
type DatabaseConfig struct {
	URL               string        `envconfig:"DATABASE_URL" validate:"required"`
	MaxConns          int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns          int           `envconfig:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"`
}

// MailConfig holds the outbound mail gateway settings. The gateway is the
// only transmission interface the engine consumes.
type MailConfig struct {
	GatewayURL  string        `envconfig:"MAIL_GATEWAY_URL" validate:"required,url"`
	APIKey      string        `envconfig:"MAIL_GATEWAY_API_KEY" validate:"required"`
	FromAddress string        `envconfig:"MAIL_FROM_ADDRESS" default:"noreply@dwellops.io"`
	FromName    string        `envconfig:"MAIL_FROM_NAME" default:"Dwellops"`
	// SendTimeout bounds one Dispatcher call so a hung gateway cannot
	// stall a dispatch tick. A timeout counts as one retryable failure.
	SendTimeout time.Duration `envconfig:"MAIL_SEND_TIMEOUT" default:"10s"`
}

// ScheduleConfig holds the tick intervals. The three tick classes are
// independent and may overlap; work within a tick is sequential.
type ScheduleConfig struct {
	DispatchInterval  time.Duration `envconfig:"SCHEDULE_DISPATCH_INTERVAL" default:"15s"`
	DailyInterval     time.Duration `envconfig:"SCHEDULE_DAILY_INTERVAL" default:"24h"`
	StatsInterval     time.Duration `envconfig:"SCHEDULE_STATS_INTERVAL" default:"1h"`
	RetentionInterval time.Duration `envconfig:"SCHEDULE_RETENTION_INTERVAL" default:"24h"`
	// LockTTL bounds how long a tick's job lock is held before another
	// worker may reclaim it.
	LockTTL time.Duration `envconfig:"SCHEDULE_LOCK_TTL" default:"15m"`
}

// RetryConfig holds the notification retry policy. Backoff is a lookup
// table, not a formula: entry k applies to the k-th retry. With the default
// MaxRetryCount of 3 the third entry is unreachable; raising the cap makes
// it effective without a code change. The scheduler never retries past the
// cap.
type RetryConfig struct {
	MaxRetryCount int             `envconfig:"RETRY_MAX_COUNT" default:"3" validate:"min=1"`
	Backoff       []time.Duration `envconfig:"RETRY_BACKOFF" default:"1m,5m,15m" validate:"min=1"`
	BatchSize     int             `envconfig:"RETRY_BATCH_SIZE" default:"50" validate:"min=1"`
}

// ReminderConfig holds per-entity-kind threshold day counts and the scan
// window tuning.
type ReminderConfig struct {
	LeaseThresholdDays      []int `envconfig:"REMINDER_LEASE_THRESHOLDS" default:"60,30,14"`
	DocumentThresholdDays   []int `envconfig:"REMINDER_DOCUMENT_THRESHOLDS" default:"30,14"`
	ComplianceThresholdDays []int `envconfig:"REMINDER_COMPLIANCE_THRESHOLDS" default:"30,14"`
	ChequeThresholdDays     []int `envconfig:"REMINDER_CHEQUE_THRESHOLDS" default:"7"`
	// CatchupDays widens the scan window to [T-catchup, T] days before the
	// due date so scheduler downtime shorter than the window does not skip
	// a threshold. The ledger still guarantees at most one send per
	// threshold, so widening never duplicates.
	CatchupDays int `envconfig:"REMINDER_CATCHUP_DAYS" default:"1" validate:"min=1"`
	ScanLimit   int `envconfig:"REMINDER_SCAN_LIMIT" default:"200" validate:"min=1"`
}

// LifecycleConfig holds the date horizons for status transitions.
type LifecycleConfig struct {
	LeaseExpiryHorizonDays   int `envconfig:"LIFECYCLE_LEASE_HORIZON_DAYS" default:"60" validate:"min=1"`
	ChequeDueHorizonDays     int `envconfig:"LIFECYCLE_CHEQUE_HORIZON_DAYS" default:"7" validate:"min=1"`
	ComplianceDueHorizonDays int `envconfig:"LIFECYCLE_COMPLIANCE_HORIZON_DAYS" default:"30" validate:"min=1"`
	BatchLimit               int `envconfig:"LIFECYCLE_BATCH_LIMIT" default:"500" validate:"min=1"`
}

// RetentionConfig holds the terminal-notification retention policy.
// When ArchiveDir is set, purged batches are first written as
// zstd-compressed JSONL under that directory; an archive failure aborts
// the purge so data is never deleted unarchived.
type RetentionConfig struct {
	Window     time.Duration `envconfig:"RETENTION_WINDOW" default:"2160h"` // 90 days
	ArchiveDir string        `envconfig:"RETENTION_ARCHIVE_DIR"`
	BatchSize  int           `envconfig:"RETENTION_BATCH_SIZE" default:"500" validate:"min=1"`
}

// StatsConfig holds the observability tick settings. The warning
// thresholds are advisory: crossing them produces a log warning, nothing
// corrective.
type StatsConfig struct {
	PendingWarnThreshold int64  `envconfig:"STATS_PENDING_WARN" default:"1000"`
	FailedWarnThreshold  int64  `envconfig:"STATS_FAILED_WARN" default:"100"`
	MetricNamespace      string `envconfig:"METRIC_NAMESPACE" default:"Dwellops"`
	EnableCloudWatch     bool   `envconfig:"STATS_ENABLE_CLOUDWATCH" default:"false"`
}

// OpsConfig holds the health/stats HTTP listener settings.
type OpsConfig struct {
	Enabled bool   `envconfig:"OPS_ENABLED" default:"true"`
	Port    string `envconfig:"OPS_PORT" default:"8081"`
}
