// Package runner drives the scheduled tasks. Every task is a plain
// function of (context, reference time), so the same code path serves the
// in-process tick loops, the manual job-runner CLI, and tests with a fixed
// clock.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"time"

	"github.com/google/uuid"

	"dwellops/internal/types"
)

// TaskType identifies a scheduled task.
type TaskType string

// The scheduled task registry. Transition tasks run before reminder tasks
// in the daily sequence so reminders see post-transition statuses.
const (
	TaskDispatchNotifications TaskType = "dispatch_notifications"
	TaskLeaseTransitions      TaskType = "lease_transitions"
	TaskChequeTransitions     TaskType = "cheque_transitions"
	TaskComplianceTransitions TaskType = "compliance_transitions"
	TaskLeaseReminders        TaskType = "lease_reminders"
	TaskDocumentReminders     TaskType = "document_reminders"
	TaskComplianceReminders   TaskType = "compliance_reminders"
	TaskChequeReminders       TaskType = "cheque_reminders"
	TaskRetentionSweep        TaskType = "retention_sweep"
	TaskNotificationStats     TaskType = "notification_stats"
)

// TaskFunc executes one tick of a task at the given reference time and
// returns the number of items it processed.
type TaskFunc func(ctx context.Context, now time.Time) (items int, err error)

// Task binds a task type to its tick interval and implementation.
type Task struct {
	Type     TaskType
	Interval time.Duration
	Run      TaskFunc
}

// LockStore is the distributed lock slice of the job repositories.
type LockStore interface {
	Acquire(ctx context.Context, lockID, workerID string, now time.Time, ttl time.Duration) (bool, error)
	Release(ctx context.Context, lockID, workerID string) error
}

// HistoryStore is the execution history slice of the job repositories.
type HistoryStore interface {
	Start(ctx context.Context, jobType string, startedAt time.Time) (int64, error)
	Finish(ctx context.Context, id int64, status string, items int, jobErr error) error
}

// Runner executes registered tasks under a distributed lock with execution
// history. Multiple scheduler instances may run the same loops; the lock
// ensures each tick bucket executes once.
type Runner struct {
	clock    types.Clock
	locks    LockStore
	history  HistoryStore
	workerID string
	lockTTL  time.Duration
	logger   *slog.Logger
	tasks    map[TaskType]Task
}

// NewRunner creates a Runner. The worker ID is derived from the hostname
// plus a per-process suffix so lock rows identify their holder.
func NewRunner(clock types.Clock, locks LockStore, history HistoryStore, lockTTL time.Duration, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	return &Runner{
		clock:    clock,
		locks:    locks,
		history:  history,
		workerID: host + "-" + uuid.NewString()[:8],
		lockTTL:  lockTTL,
		logger:   logger,
		tasks:    make(map[TaskType]Task),
	}
}

// Register adds a task to the registry, replacing any previous registration
// of the same type.
func (r *Runner) Register(t Task) {
	r.tasks[t.Type] = t
}

// Tasks returns the registered task types in sorted order.
func (r *Runner) Tasks() []TaskType {
	out := make([]TaskType, 0, len(r.tasks))
	for t := range r.tasks {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// RunTask executes one tick of the named task at the given reference time.
// The lock ID buckets the reference time by the task's interval, so two
// instances ticking inside the same bucket produce one execution. A held
// lock is not an error; the tick is simply skipped.
func (r *Runner) RunTask(ctx context.Context, taskType TaskType, now time.Time) error {
	task, ok := r.tasks[taskType]
	if !ok {
		return fmt.Errorf("unknown task type %q", taskType)
	}

	lockID := lockIDFor(task, now)
	acquired, err := r.locks.Acquire(ctx, lockID, r.workerID, now, r.lockTTL)
	if err != nil {
		return fmt.Errorf("acquiring lock for %s: %w", taskType, err)
	}
	if !acquired {
		r.logger.InfoContext(ctx, "task tick skipped, lock held elsewhere",
			"task", string(taskType),
			"lock_id", lockID,
		)
		return nil
	}
	defer func() {
		if relErr := r.locks.Release(ctx, lockID, r.workerID); relErr != nil {
			r.logger.WarnContext(ctx, "failed to release task lock",
				"task", string(taskType),
				"lock_id", lockID,
				"error", relErr,
			)
		}
	}()

	historyID, err := r.history.Start(ctx, string(taskType), now)
	if err != nil {
		return fmt.Errorf("recording task start for %s: %w", taskType, err)
	}

	start := r.clock.Now()
	items, runErr := task.Run(ctx, now)
	elapsed := r.clock.Now().Sub(start)

	status := "success"
	if runErr != nil {
		status = "failed"
	}
	if finErr := r.history.Finish(ctx, historyID, status, items, runErr); finErr != nil {
		r.logger.ErrorContext(ctx, "failed to record task finish",
			"task", string(taskType),
			"history_id", historyID,
			"error", finErr,
		)
	}

	if runErr != nil {
		r.logger.ErrorContext(ctx, "task tick failed",
			"task", string(taskType),
			"items", items,
			"duration_ms", elapsed.Milliseconds(),
			"error", runErr,
		)
		return fmt.Errorf("running %s: %w", taskType, runErr)
	}

	r.logger.InfoContext(ctx, "task tick succeeded",
		"task", string(taskType),
		"items", items,
		"duration_ms", elapsed.Milliseconds(),
	)
	return nil
}

// Loop runs the named task immediately and then on every interval tick
// until the context is cancelled. Tick errors are already logged by
// RunTask; the loop keeps going.
func (r *Runner) Loop(ctx context.Context, taskType TaskType) error {
	task, ok := r.tasks[taskType]
	if !ok {
		return fmt.Errorf("unknown task type %q", taskType)
	}

	runOnce := func() {
		if err := r.RunTask(ctx, taskType, r.clock.Now()); err != nil && ctx.Err() == nil {
			r.logger.ErrorContext(ctx, "task loop tick error",
				"task", string(taskType),
				"error", err,
			)
		}
	}

	runOnce()

	ticker := time.NewTicker(task.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			runOnce()
		}
	}
}

// RunSequence executes the given tasks in order at one shared reference
// time. A failing task does not stop the sequence; the errors are joined
// and returned at the end. Ordering matters for the daily sequence, where
// status transitions must land before reminder scans read the statuses.
func (r *Runner) RunSequence(ctx context.Context, taskTypes []TaskType, now time.Time) error {
	var errs []error
	for _, t := range taskTypes {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		if err := r.RunTask(ctx, t, now); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LoopSequence runs the task sequence immediately and then on every
// interval tick until the context is cancelled.
func (r *Runner) LoopSequence(ctx context.Context, interval time.Duration, taskTypes []TaskType) error {
	runOnce := func() {
		if err := r.RunSequence(ctx, taskTypes, r.clock.Now()); err != nil && ctx.Err() == nil {
			r.logger.ErrorContext(ctx, "task sequence tick error", "error", err)
		}
	}

	runOnce()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			runOnce()
		}
	}
}

// lockIDFor buckets the reference time by the task interval. Daily tasks
// get one lock per day, the dispatch task one per 15-second slot.
func lockIDFor(task Task, now time.Time) string {
	bucket := now.UTC().Truncate(task.Interval)
	return string(task.Type) + ":" + bucket.Format(time.RFC3339)
}
