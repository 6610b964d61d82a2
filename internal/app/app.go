// Package app is the composition root. It wires the configuration,
// database pool, repositories, and services into a task runner so the
// scheduler daemon and the job-runner CLI share identical wiring.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/jackc/pgx/v5/pgxpool"

	"dwellops/internal/config"
	"dwellops/internal/db"
	"dwellops/internal/dispatch"
	"dwellops/internal/lifecycle"
	"dwellops/internal/notify"
	"dwellops/internal/reminders"
	"dwellops/internal/runner"
	"dwellops/internal/types"
)

// DailySequence is the ordered daily task list. Transitions come first so
// the reminder scans observe post-transition statuses.
var DailySequence = []runner.TaskType{
	runner.TaskLeaseTransitions,
	runner.TaskChequeTransitions,
	runner.TaskComplianceTransitions,
	runner.TaskLeaseReminders,
	runner.TaskDocumentReminders,
	runner.TaskComplianceReminders,
	runner.TaskChequeReminders,
}

// App holds the wired process dependencies.
type App struct {
	Config *config.Config
	Pool   *pgxpool.Pool
	Runner *runner.Runner
	Stats  *notify.StatsService
	Logger *slog.Logger
}

// New connects to the database and wires every service and task. The clock
// is injected so tests and the CLI can pin the reference time.
func New(ctx context.Context, cfg *config.Config, clock types.Clock, logger *slog.Logger) (*App, error) {
	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	notifRepo := db.NewNotificationRepository(pool)
	leaseRepo := db.NewLeaseRepository(pool)
	chequeRepo := db.NewChequeRepository(pool)
	complianceRepo := db.NewComplianceRepository(pool)
	documentRepo := db.NewDocumentRepository(pool)
	lockRepo := db.NewJobLockRepository(pool)
	historyRepo := db.NewJobHistoryRepository(pool)

	dispatcher := dispatch.NewMailGatewayClient(cfg.Mail, logger)
	retrySched := notify.NewRetryScheduler(notifRepo, dispatcher, cfg.Retry, logger)

	var archiver notify.Archiver = notify.NopArchiver{}
	if cfg.Retention.ArchiveDir != "" {
		archiver = notify.NewZstdArchiver(cfg.Retention.ArchiveDir)
	}
	sweeper := notify.NewRetentionSweeper(notifRepo, archiver, cfg.Retention, logger)

	var metrics notify.QueueMetrics = notify.NopQueueMetrics{}
	if cfg.Stats.EnableCloudWatch {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("loading AWS configuration: %w", err)
		}
		metrics = notify.NewCloudWatchQueueMetrics(
			cloudwatch.NewFromConfig(awsCfg),
			cfg.Stats.MetricNamespace,
			logger,
		)
	}
	stats := notify.NewStatsService(notifRepo, metrics, cfg.Stats, logger)

	transitions := lifecycle.NewEngine(leaseRepo, chequeRepo, complianceRepo, cfg.Lifecycle, logger)
	remEngine := reminders.NewEngine(cfg.Reminder, logger)

	leaseSource := reminders.Source{
		Name:          string(runner.TaskLeaseReminders),
		Store:         leaseRepo,
		Template:      types.TemplateLeaseExpiryReminder,
		ThresholdDays: cfg.Reminder.LeaseThresholdDays,
	}
	documentSource := reminders.Source{
		Name:          string(runner.TaskDocumentReminders),
		Store:         documentRepo,
		Template:      types.TemplateDocumentExpiryReminder,
		ThresholdDays: cfg.Reminder.DocumentThresholdDays,
	}
	complianceSource := reminders.Source{
		Name:          string(runner.TaskComplianceReminders),
		Store:         complianceRepo,
		Template:      types.TemplateComplianceDueReminder,
		ThresholdDays: cfg.Reminder.ComplianceThresholdDays,
	}
	chequeSource := reminders.Source{
		Name:          string(runner.TaskChequeReminders),
		Store:         chequeRepo,
		Template:      types.TemplateChequeDueReminder,
		ThresholdDays: cfg.Reminder.ChequeThresholdDays,
	}

	run := runner.NewRunner(clock, lockRepo, historyRepo, cfg.Schedule.LockTTL, logger)

	run.Register(runner.Task{
		Type:     runner.TaskDispatchNotifications,
		Interval: cfg.Schedule.DispatchInterval,
		Run: func(ctx context.Context, now time.Time) (int, error) {
			sum, err := retrySched.ProcessDue(ctx, now)
			return sum.Items(), err
		},
	})

	daily := cfg.Schedule.DailyInterval
	run.Register(runner.Task{
		Type:     runner.TaskLeaseTransitions,
		Interval: daily,
		Run: func(ctx context.Context, now time.Time) (int, error) {
			sum, err := transitions.RunLeases(ctx, now)
			return sum.Items(), err
		},
	})
	run.Register(runner.Task{
		Type:     runner.TaskChequeTransitions,
		Interval: daily,
		Run: func(ctx context.Context, now time.Time) (int, error) {
			sum, err := transitions.RunCheques(ctx, now)
			return sum.Items(), err
		},
	})
	run.Register(runner.Task{
		Type:     runner.TaskComplianceTransitions,
		Interval: daily,
		Run: func(ctx context.Context, now time.Time) (int, error) {
			sum, err := transitions.RunCompliance(ctx, now)
			return sum.Items(), err
		},
	})

	registerReminder := func(taskType runner.TaskType, src reminders.Source) {
		run.Register(runner.Task{
			Type:     taskType,
			Interval: daily,
			Run: func(ctx context.Context, now time.Time) (int, error) {
				sum, err := remEngine.Run(ctx, src, now)
				return sum.Items(), err
			},
		})
	}
	registerReminder(runner.TaskLeaseReminders, leaseSource)
	registerReminder(runner.TaskDocumentReminders, documentSource)
	registerReminder(runner.TaskComplianceReminders, complianceSource)
	registerReminder(runner.TaskChequeReminders, chequeSource)

	run.Register(runner.Task{
		Type:     runner.TaskRetentionSweep,
		Interval: cfg.Schedule.RetentionInterval,
		Run: func(ctx context.Context, now time.Time) (int, error) {
			deleted, err := sweeper.Sweep(ctx, now)
			return int(deleted), err
		},
	})
	run.Register(runner.Task{
		Type:     runner.TaskNotificationStats,
		Interval: cfg.Schedule.StatsInterval,
		Run: func(ctx context.Context, now time.Time) (int, error) {
			_, err := stats.Collect(ctx, now)
			return 0, err
		},
	})

	return &App{
		Config: cfg,
		Pool:   pool,
		Runner: run,
		Stats:  stats,
		Logger: logger,
	}, nil
}

// Close releases the database pool.
func (a *App) Close() {
	a.Pool.Close()
}
