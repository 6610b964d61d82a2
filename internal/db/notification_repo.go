package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"dwellops/internal/types"
)

// NotificationRepository provides data access for the notifications table.
//
// Outcome updates (MarkSent, MarkRetry, MarkFailed) carry the retry count the
// caller observed when it fetched the row. The UPDATE re-checks both
// status='pending' and that retry count, so a concurrent worker that already
// recorded an outcome makes the second update a no-op instead of a double
// write. Callers treat the resulting ErrCodeConflictConcurrent as "someone
// else handled it" and move on.
type NotificationRepository struct {
	db DBTX
}

// NewNotificationRepository creates a NotificationRepository backed by the
// given database connection (pool or transaction).
func NewNotificationRepository(db DBTX) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// NewNotificationID returns a fresh prefixed notification identifier.
func NewNotificationID() string {
	return "ntf_" + uuid.NewString()
}

// Enqueue inserts a new pending notification. If the ID is empty one is
// generated. NextRetryAt is initialized to the creation instant so the row is
// immediately eligible for dispatch.
func (r *NotificationRepository) Enqueue(ctx context.Context, n *types.Notification, now time.Time) error {
	if err := enqueueNotification(ctx, r.db, n, now); err != nil {
		return err
	}
	return nil
}

// enqueueNotification is the shared insert used by Enqueue and by the entity
// repositories' ledger transactions.
func enqueueNotification(ctx context.Context, q DBTX, n *types.Notification, now time.Time) error {
	if n.Recipient == "" {
		return types.NewAppError(types.ErrCodeValidationMissingField, "notification recipient is required", nil)
	}
	if n.TemplateKind == "" {
		return types.NewAppError(types.ErrCodeValidationMissingField, "notification template kind is required", nil)
	}
	if n.ID == "" {
		n.ID = NewNotificationID()
	}
	n.Status = types.NotificationPending
	n.RetryCount = 0
	n.NextRetryAt = now
	n.CreatedAt = now

	_, err := q.Exec(ctx,
		`INSERT INTO notifications
		 (id, recipient, template_kind, payload, status, retry_count, next_retry_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		n.ID,
		n.Recipient,
		string(n.TemplateKind),
		payloadJSON(n.Payload),
		string(n.Status),
		n.RetryCount,
		n.NextRetryAt,
		n.CreatedAt,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to enqueue notification", err)
	}
	return nil
}

// FetchDueBatch retrieves pending notifications whose next_retry_at has
// passed, oldest scheduled first so retries never starve fresh work and
// vice versa. Ties break on created_at for stable ordering.
func (r *NotificationRepository) FetchDueBatch(ctx context.Context, now time.Time, limit int) ([]*types.Notification, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.Query(ctx,
		`SELECT id, recipient, template_kind, payload, status, retry_count,
		        next_retry_at, last_error, created_at
		 FROM notifications
		 WHERE status = 'pending' AND next_retry_at <= $1
		 ORDER BY next_retry_at, created_at
		 LIMIT $2`,
		now, limit,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to fetch due notifications", err)
	}
	defer rows.Close()

	return collectNotifications(rows)
}

// MarkSent records a successful delivery. fromRetryCount is the retry count
// the caller fetched; a mismatch means another worker got there first.
func (r *NotificationRepository) MarkSent(ctx context.Context, id string, fromRetryCount int) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE notifications SET status = 'sent', last_error = NULL
		 WHERE id = $1 AND status = 'pending' AND retry_count = $2`,
		id, fromRetryCount,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to mark notification sent", err)
	}
	return checkOutcomeTag(ctx, r.db, tag, id)
}

// MarkRetry records a failed attempt that leaves retries remaining: the
// retry count increments and next_retry_at moves to the scheduled instant.
func (r *NotificationRepository) MarkRetry(ctx context.Context, id string, fromRetryCount int, nextRetryAt time.Time, reason string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE notifications SET
			retry_count = retry_count + 1,
			next_retry_at = $3,
			last_error = $4
		 WHERE id = $1 AND status = 'pending' AND retry_count = $2`,
		id, fromRetryCount, nextRetryAt, truncateReason(reason),
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to schedule notification retry", err)
	}
	return checkOutcomeTag(ctx, r.db, tag, id)
}

// MarkFailed records a terminal failure, either because retries are
// exhausted or because the failure was permanent.
func (r *NotificationRepository) MarkFailed(ctx context.Context, id string, fromRetryCount int, reason string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE notifications SET status = 'failed', last_error = $3
		 WHERE id = $1 AND status = 'pending' AND retry_count = $2`,
		id, fromRetryCount, truncateReason(reason),
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to mark notification failed", err)
	}
	return checkOutcomeTag(ctx, r.db, tag, id)
}

// CountByStatus returns the number of notifications per status. Statuses
// with no rows are present in the map with a zero count.
func (r *NotificationRepository) CountByStatus(ctx context.Context) (map[types.NotificationStatus]int64, error) {
	rows, err := r.db.Query(ctx,
		`SELECT status, COUNT(*) FROM notifications GROUP BY status`,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to count notifications", err)
	}
	defer rows.Close()

	counts := map[types.NotificationStatus]int64{
		types.NotificationPending: 0,
		types.NotificationSent:    0,
		types.NotificationFailed:  0,
	}
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan status count row", err)
		}
		counts[types.NotificationStatus(status)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating status count rows", err)
	}
	return counts, nil
}

// ListTerminalBefore retrieves sent and failed notifications created before
// the cutoff, oldest first, for retention archiving.
func (r *NotificationRepository) ListTerminalBefore(ctx context.Context, cutoff time.Time, limit int) ([]*types.Notification, error) {
	if limit <= 0 {
		limit = 500
	}

	rows, err := r.db.Query(ctx,
		`SELECT id, recipient, template_kind, payload, status, retry_count,
		        next_retry_at, last_error, created_at
		 FROM notifications
		 WHERE status IN ('sent', 'failed') AND created_at < $1
		 ORDER BY created_at
		 LIMIT $2`,
		cutoff, limit,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list expired notifications", err)
	}
	defer rows.Close()

	return collectNotifications(rows)
}

// DeleteByIDs hard-deletes the given notifications. Only terminal rows are
// removed; a pending row that somehow appears in the list is left alone.
// Returns the count of deleted records.
func (r *NotificationRepository) DeleteByIDs(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := r.db.Exec(ctx,
		`DELETE FROM notifications
		 WHERE id = ANY($1) AND status IN ('sent', 'failed')`,
		ids,
	)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to delete notifications", err)
	}
	return tag.RowsAffected(), nil
}

// checkOutcomeTag distinguishes "row gone" from "row changed underneath us"
// when an outcome update matched nothing.
func checkOutcomeTag(ctx context.Context, q DBTX, tag pgconn.CommandTag, id string) error {
	if tag.RowsAffected() > 0 {
		return nil
	}

	var status string
	err := q.QueryRow(ctx, `SELECT status FROM notifications WHERE id = $1`, id).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return types.NewAppError(types.ErrCodeNotFoundNotification, "notification not found", nil)
	}
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to inspect notification after conflict", err)
	}
	if types.NotificationStatus(status).Terminal() {
		return types.NewAppError(types.ErrCodeConflictTerminal,
			fmt.Sprintf("notification already %s", status), nil)
	}
	return types.NewAppError(types.ErrCodeConflictConcurrent,
		"notification was modified by a concurrent worker", nil)
}

// collectNotifications drains a result set produced by the shared
// notification column list.
func collectNotifications(rows pgx.Rows) ([]*types.Notification, error) {
	var results []*types.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan notification row", err)
		}
		results = append(results, n)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating notification rows", err)
	}
	return results, nil
}

func scanNotification(rows pgx.Rows) (*types.Notification, error) {
	var (
		n            types.Notification
		templateKind string
		status       string
		payloadRaw   []byte
		lastError    *string
	)

	err := rows.Scan(
		&n.ID,
		&n.Recipient,
		&templateKind,
		&payloadRaw,
		&status,
		&n.RetryCount,
		&n.NextRetryAt,
		&lastError,
		&n.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	n.TemplateKind = types.TemplateKind(templateKind)
	n.Status = types.NotificationStatus(status)
	if lastError != nil {
		n.LastError = *lastError
	}
	if len(payloadRaw) > 0 {
		_ = json.Unmarshal(payloadRaw, &n.Payload)
	}
	return &n, nil
}

// payloadJSON renders the payload for the JSONB column, defaulting to an
// empty object.
func payloadJSON(p types.Payload) []byte {
	if p != nil {
		if b, err := json.Marshal(p); err == nil {
			return b
		}
	}
	return []byte("{}")
}

// truncateReason bounds last_error so a pathological provider response
// cannot bloat the row.
func truncateReason(reason string) string {
	const max = 1024
	reason = strings.TrimSpace(reason)
	if len(reason) > max {
		return reason[:max]
	}
	return reason
}
