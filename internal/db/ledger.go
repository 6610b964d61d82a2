package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"dwellops/internal/types"
)

// notifyThresholdTx flips one reminder-ledger flag and enqueues the
// reminder notifications in a single transaction. The UPDATE re-checks that
// the flag is still unset, so only one of any number of concurrent callers
// wins; the rest see zero rows and return (false, nil) without enqueueing.
//
// The table name comes from the fixed set of entity repositories in this
// package, never from input.
func notifyThresholdTx(ctx context.Context, db DB, table, entityID string, threshold types.ThresholdID, notifs []*types.Notification, now time.Time) (bool, error) {
	tx, err := db.Begin(ctx)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to begin reminder transaction", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		fmt.Sprintf(
			`UPDATE %s SET
				reminder_ledger = jsonb_set(COALESCE(reminder_ledger, '{}'::jsonb), ARRAY[$2], 'true'::jsonb)
			 WHERE id = $1
			   AND NOT COALESCE((reminder_ledger->>$2)::boolean, false)`,
			table,
		),
		entityID, string(threshold),
	)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to mark reminder threshold", err)
	}
	if tag.RowsAffected() == 0 {
		// Already notified, or the entity disappeared between scan and
		// update. Either way there is nothing to send.
		return false, nil
	}

	for _, n := range notifs {
		if err := enqueueNotification(ctx, tx, n, now); err != nil {
			return false, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to commit reminder transaction", err)
	}
	return true, nil
}

// scanLedger decodes a reminder_ledger JSONB column. NULL reads as an empty
// ledger.
func scanLedger(raw []byte) types.ReminderLedger {
	ledger := types.ReminderLedger{}
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &ledger)
	}
	return ledger
}
