package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"dwellops/internal/config"
	"dwellops/internal/types"
)

// RetryScheduler drains the due slice of the notification queue each
// dispatch tick. One tick fetches a bounded batch, oldest scheduled first,
// attempts each notification once, and records the outcome. A failure on
// one item never blocks the rest of the batch.
type RetryScheduler struct {
	queue      NotificationQueue
	dispatcher Dispatcher
	backoff    Backoff
	maxRetries int
	batchSize  int
	logger     *slog.Logger
}

// NewRetryScheduler creates a RetryScheduler from the retry configuration.
func NewRetryScheduler(
	queue NotificationQueue,
	dispatcher Dispatcher,
	cfg config.RetryConfig,
	logger *slog.Logger,
) *RetryScheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &RetryScheduler{
		queue:      queue,
		dispatcher: dispatcher,
		backoff:    NewBackoff(cfg.Backoff),
		maxRetries: cfg.MaxRetryCount,
		batchSize:  cfg.BatchSize,
		logger:     logger,
	}
}

// DispatchSummary reports what one dispatch tick did.
type DispatchSummary struct {
	Fetched   int
	Sent      int
	Retried   int
	Failed    int
	Conflicts int
	Errors    int
}

// Items returns the number of notifications the tick attempted.
func (s DispatchSummary) Items() int { return s.Fetched }

// ProcessDue runs one dispatch tick at the given reference time. It returns
// an error only when the batch itself cannot be fetched; per-item outcome
// recording failures are logged and counted, never propagated.
func (r *RetryScheduler) ProcessDue(ctx context.Context, now time.Time) (DispatchSummary, error) {
	var sum DispatchSummary

	batch, err := r.queue.FetchDueBatch(ctx, now, r.batchSize)
	if err != nil {
		return sum, fmt.Errorf("fetching due notifications: %w", err)
	}
	sum.Fetched = len(batch)

	for _, n := range batch {
		if ctx.Err() != nil {
			r.logger.WarnContext(ctx, "dispatch tick cancelled mid-batch",
				"processed", sum.Sent+sum.Retried+sum.Failed,
				"fetched", sum.Fetched,
			)
			return sum, nil
		}
		r.processOne(ctx, n, now, &sum)
	}

	r.logger.InfoContext(ctx, "dispatch tick complete",
		"fetched", sum.Fetched,
		"sent", sum.Sent,
		"retried", sum.Retried,
		"failed", sum.Failed,
		"conflicts", sum.Conflicts,
		"errors", sum.Errors,
	)
	return sum, nil
}

func (r *RetryScheduler) processOne(ctx context.Context, n *types.Notification, now time.Time, sum *DispatchSummary) {
	result := r.dispatcher.Send(ctx, n)

	switch result.Status {
	case types.DispatchDelivered:
		if err := r.queue.MarkSent(ctx, n.ID, n.RetryCount); err != nil {
			r.recordMarkError(ctx, n, "sent", err, sum)
			return
		}
		sum.Sent++

	case types.DispatchPermanentFailure:
		r.logger.WarnContext(ctx, "notification permanently failed",
			"notification_id", n.ID,
			"template_kind", string(n.TemplateKind),
			"reason", result.Reason,
		)
		if err := r.queue.MarkFailed(ctx, n.ID, n.RetryCount, result.Reason); err != nil {
			r.recordMarkError(ctx, n, "failed", err, sum)
			return
		}
		sum.Failed++

	case types.DispatchRetryableFailure:
		attempt := n.RetryCount + 1
		if attempt >= r.maxRetries {
			r.logger.WarnContext(ctx, "notification retries exhausted",
				"notification_id", n.ID,
				"template_kind", string(n.TemplateKind),
				"attempts", attempt,
				"reason", result.Reason,
			)
			if err := r.queue.MarkFailed(ctx, n.ID, n.RetryCount, result.Reason); err != nil {
				r.recordMarkError(ctx, n, "failed", err, sum)
				return
			}
			sum.Failed++
			return
		}

		nextRetryAt := now.Add(r.backoff.Delay(attempt))
		r.logger.InfoContext(ctx, "notification retry scheduled",
			"notification_id", n.ID,
			"attempt", attempt,
			"next_retry_at", nextRetryAt,
			"reason", result.Reason,
		)
		if err := r.queue.MarkRetry(ctx, n.ID, n.RetryCount, nextRetryAt, result.Reason); err != nil {
			r.recordMarkError(ctx, n, "retry", err, sum)
			return
		}
		sum.Retried++

	default:
		r.logger.ErrorContext(ctx, "dispatcher returned unknown status",
			"notification_id", n.ID,
			"status", string(result.Status),
		)
		sum.Errors++
	}
}

// recordMarkError classifies an outcome-recording failure. Conflicts mean a
// concurrent worker already recorded an outcome for this row; that is
// expected under multi-instance operation and only counted.
func (r *RetryScheduler) recordMarkError(ctx context.Context, n *types.Notification, outcome string, err error, sum *DispatchSummary) {
	var appErr *types.AppError
	if errors.As(err, &appErr) &&
		(appErr.Code == types.ErrCodeConflictConcurrent || appErr.Code == types.ErrCodeConflictTerminal) {
		r.logger.InfoContext(ctx, "notification outcome already recorded elsewhere",
			"notification_id", n.ID,
			"outcome", outcome,
			"code", string(appErr.Code),
		)
		sum.Conflicts++
		return
	}

	r.logger.ErrorContext(ctx, "failed to record notification outcome",
		"notification_id", n.ID,
		"outcome", outcome,
		"error", err,
	)
	sum.Errors++
}
