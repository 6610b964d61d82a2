// Package reminders implements the threshold reminder engine. For each
// configured threshold (days before an entity's due date) the engine scans
// for entities entering the window and enqueues reminder notifications at
// most once per (entity, threshold) pair. The once-only guarantee lives in
// the entity's reminder ledger, flipped in the same transaction that
// enqueues the notifications.
package reminders

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"dwellops/internal/config"
	"dwellops/internal/types"
)

// CandidateStore is the slice of an entity repository the engine needs: a
// windowed candidate scan and the atomic flag-and-enqueue operation. All
// entity repositories satisfy it.
type CandidateStore interface {
	ListReminderCandidates(ctx context.Context, threshold types.ThresholdID, windowStart, windowEnd time.Time, limit int) ([]types.ReminderCandidate, error)
	NotifyThreshold(ctx context.Context, entityID string, threshold types.ThresholdID, notifs []*types.Notification, now time.Time) (bool, error)
}

// Source binds one entity kind to its store, template, and threshold
// schedule.
type Source struct {
	// Name identifies the source in logs and job history, e.g.
	// "lease_reminders".
	Name          string
	Store         CandidateStore
	Template      types.TemplateKind
	ThresholdDays []int
}

// Engine runs threshold reminder scans. One Run covers every threshold of
// one source at one reference time; re-running is harmless because fired
// thresholds are excluded by the scan and re-checked by the ledger update.
type Engine struct {
	catchup time.Duration
	scanLim int
	logger  *slog.Logger
}

// NewEngine creates a reminder Engine from the reminder configuration.
func NewEngine(cfg config.ReminderConfig, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		catchup: time.Duration(cfg.CatchupDays) * 24 * time.Hour,
		scanLim: cfg.ScanLimit,
		logger:  logger,
	}
}

// ReminderSummary reports what one reminder tick did.
type ReminderSummary struct {
	Candidates int
	Notified   int
	Enqueued   int
	Skipped    int
	Errors     int
}

// Items returns the number of entities that produced reminders.
func (s ReminderSummary) Items() int { return s.Notified }

// Run scans one source at the given reference time. Each threshold scans
// the half-open window (due-catchup, due] so scheduler downtime shorter
// than the catchup span still picks the entity up. A failure on one entity
// is logged and counted; the rest of the scan continues.
func (e *Engine) Run(ctx context.Context, src Source, now time.Time) (ReminderSummary, error) {
	var sum ReminderSummary

	for _, days := range src.ThresholdDays {
		if err := ctx.Err(); err != nil {
			return sum, err
		}

		threshold := types.DaysThreshold(days)
		windowEnd := now.Add(time.Duration(days) * 24 * time.Hour)
		windowStart := windowEnd.Add(-e.catchup)

		candidates, err := src.Store.ListReminderCandidates(ctx, threshold, windowStart, windowEnd, e.scanLim)
		if err != nil {
			return sum, fmt.Errorf("scanning %s threshold %s: %w", src.Name, threshold, err)
		}
		sum.Candidates += len(candidates)

		for _, c := range candidates {
			e.notifyOne(ctx, src, c, threshold, days, now, &sum)
		}
	}

	e.logger.InfoContext(ctx, "reminder tick complete",
		"source", src.Name,
		"candidates", sum.Candidates,
		"notified", sum.Notified,
		"enqueued", sum.Enqueued,
		"skipped", sum.Skipped,
		"errors", sum.Errors,
	)
	return sum, nil
}

func (e *Engine) notifyOne(ctx context.Context, src Source, c types.ReminderCandidate, threshold types.ThresholdID, days int, now time.Time, sum *ReminderSummary) {
	notifs := buildNotifications(src.Template, c, threshold, days)
	if len(notifs) == 0 {
		e.logger.WarnContext(ctx, "reminder candidate has no recipients",
			"source", src.Name,
			"entity_id", c.EntityID,
			"threshold", string(threshold),
		)
		sum.Skipped++
		return
	}

	fired, err := src.Store.NotifyThreshold(ctx, c.EntityID, threshold, notifs, now)
	if err != nil {
		e.logger.ErrorContext(ctx, "failed to fire reminder threshold",
			"source", src.Name,
			"entity_id", c.EntityID,
			"threshold", string(threshold),
			"error", err,
		)
		sum.Errors++
		return
	}
	if !fired {
		// The scan raced another worker; the ledger already holds the flag.
		sum.Skipped++
		return
	}

	sum.Notified++
	sum.Enqueued += len(notifs)
	e.logger.InfoContext(ctx, "reminder threshold fired",
		"source", src.Name,
		"entity_id", c.EntityID,
		"threshold", string(threshold),
		"recipients", len(notifs),
	)
}

// buildNotifications produces one notification per distinct recipient: the
// tenant contact when the entity has one, plus every property manager.
func buildNotifications(template types.TemplateKind, c types.ReminderCandidate, threshold types.ThresholdID, days int) []*types.Notification {
	payload := types.Payload{
		"entity_id":   c.EntityID,
		"entity_kind": string(c.Kind),
		"label":       c.Label,
		"due_date":    c.DueDate.UTC().Format("2006-01-02"),
		"days_until":  days,
		"threshold":   string(threshold),
	}

	seen := make(map[string]bool)
	var notifs []*types.Notification

	add := func(email string) {
		if email == "" || seen[email] {
			return
		}
		seen[email] = true
		notifs = append(notifs, &types.Notification{
			Recipient:    email,
			TemplateKind: template,
			Payload:      payload,
		})
	}

	add(c.TenantEmail)
	for _, email := range c.ManagerEmails {
		add(email)
	}
	return notifs
}
