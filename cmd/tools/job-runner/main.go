// Package main implements the job-runner CLI tool for invoking scheduled
// tasks directly, bypassing the daemon's tick loops.
//
// This tool is intended for local development, manual backfilling, and
// operational debugging. It shares the daemon's wiring, so a manual run
// takes the same distributed lock and writes the same job history as a
// scheduled tick.
//
// Usage:
//
//	go run ./cmd/tools/job-runner --task=lease_transitions
//	go run ./cmd/tools/job-runner --task=lease_reminders --reference-time=2026-03-01T06:00:00Z
//	go run ./cmd/tools/job-runner --daily --reference-time=2026-03-01T06:00:00Z
//	go run ./cmd/tools/job-runner --dry-run --task=retention_sweep
//	go run ./cmd/tools/job-runner --list
//
// Configuration comes from the environment (or a .env file via godotenv),
// the same variables the daemon reads.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"dwellops/internal/app"
	"dwellops/internal/config"
	"dwellops/internal/runner"
	"dwellops/internal/types"
)

// taskDescriptions is the exhaustive task set, kept in sync with the
// registry in internal/app.
var taskDescriptions = map[runner.TaskType]string{
	runner.TaskDispatchNotifications: "Dispatch due pending notifications through the mail gateway",
	runner.TaskLeaseTransitions:      "Advance lease statuses (active -> expiring_soon -> expired)",
	runner.TaskChequeTransitions:     "Advance post-dated cheques (received -> due)",
	runner.TaskComplianceTransitions: "Advance compliance schedules (upcoming -> due -> overdue)",
	runner.TaskLeaseReminders:        "Enqueue lease expiry reminders for entered thresholds",
	runner.TaskDocumentReminders:     "Enqueue document and warranty expiry reminders",
	runner.TaskComplianceReminders:   "Enqueue compliance due reminders",
	runner.TaskChequeReminders:       "Enqueue cheque due reminders",
	runner.TaskRetentionSweep:        "Archive and purge terminal notifications past retention",
	runner.TaskNotificationStats:     "Sample queue depth and publish gauges",
}

type taskPayload struct {
	Task          runner.TaskType `json:"task"`
	ReferenceTime *time.Time      `json:"reference_time,omitempty"`
}

func main() {
	taskFlag := flag.String("task", "", "Task type to execute (e.g., lease_transitions)")
	refTimeFlag := flag.String("reference-time", "", "Override reference time (RFC3339, e.g., 2026-03-01T06:00:00Z)")
	dailyFlag := flag.Bool("daily", false, "Run the full daily sequence (transitions then reminders) in order")
	listFlag := flag.Bool("list", false, "List all available task types and exit")
	dryRunFlag := flag.Bool("dry-run", false, "Print the task payload without executing")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: job-runner [flags]\n\n")
		fmt.Fprintf(os.Stderr, "Invoke scheduled tasks directly, bypassing the daemon loops.\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nUse --list to see all available task types.\n")
	}

	flag.Parse()

	if *listFlag {
		printAvailableTasks()
		return
	}

	if *taskFlag == "" && !*dailyFlag {
		fmt.Fprintf(os.Stderr, "error: --task or --daily is required\n\n")
		flag.Usage()
		os.Exit(1)
	}
	if *taskFlag != "" && *dailyFlag {
		fmt.Fprintf(os.Stderr, "error: --task and --daily are mutually exclusive\n")
		os.Exit(1)
	}

	taskType := runner.TaskType(*taskFlag)
	if *taskFlag != "" {
		if _, ok := taskDescriptions[taskType]; !ok {
			fmt.Fprintf(os.Stderr, "error: unknown task type %q\n\n", *taskFlag)
			printAvailableTasks()
			os.Exit(1)
		}
	}

	var refTime *time.Time
	if *refTimeFlag != "" {
		t, err := time.Parse(time.RFC3339, *refTimeFlag)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: invalid --reference-time %q: %v\n", *refTimeFlag, err)
			fmt.Fprintf(os.Stderr, "  expected RFC3339 format, e.g., 2026-03-01T06:00:00Z\n")
			os.Exit(1)
		}
		u := t.UTC()
		refTime = &u
	}

	if *dryRunFlag {
		if *dailyFlag {
			for _, t := range app.DailySequence {
				printPayload(taskPayload{Task: t, ReferenceTime: refTime})
			}
			return
		}
		printPayload(taskPayload{Task: taskType, ReferenceTime: refTime})
		return
	}

	// .env support for local development (non-fatal if missing).
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := execute(ctx, taskType, *dailyFlag, refTime, logger); err != nil {
		logger.Error("task execution failed", "error", err)
		os.Exit(1)
	}
}

// execute wires the full application (the same wiring as the daemon) and
// runs the requested task or the daily sequence once.
func execute(ctx context.Context, taskType runner.TaskType, daily bool, refTime *time.Time, logger *slog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	var clock types.Clock = types.RealClock{}
	if refTime != nil {
		clock = types.FixedClock{T: *refTime}
	}

	application, err := app.New(ctx, cfg, clock, logger)
	if err != nil {
		return err
	}
	defer application.Close()

	now := clock.Now()
	logger.Info("executing",
		"daily", daily,
		"task", string(taskType),
		"reference_time", now.Format(time.RFC3339),
	)

	if daily {
		return application.Runner.RunSequence(ctx, app.DailySequence, now)
	}
	return application.Runner.RunTask(ctx, taskType, now)
}

// printAvailableTasks prints all valid task types and their descriptions
// to stderr, sorted alphabetically.
func printAvailableTasks() {
	fmt.Fprintf(os.Stderr, "Available task types:\n\n")

	tasks := make([]runner.TaskType, 0, len(taskDescriptions))
	for t := range taskDescriptions {
		tasks = append(tasks, t)
	}
	sort.Slice(tasks, func(i, j int) bool {
		return string(tasks[i]) < string(tasks[j])
	})

	maxLen := 0
	for _, t := range tasks {
		if len(string(t)) > maxLen {
			maxLen = len(string(t))
		}
	}

	for _, t := range tasks {
		fmt.Fprintf(os.Stderr, "  %-*s  %s\n", maxLen, string(t), taskDescriptions[t])
	}
	fmt.Fprintln(os.Stderr)
}

// printPayload writes the payload as pretty-printed JSON to stdout.
func printPayload(p taskPayload) {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to marshal payload: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(data))
}
