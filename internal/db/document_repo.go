package db

import (
	"context"
	"time"

	"dwellops/internal/types"
)

// DocumentRepository provides the engine's access to the documents table,
// which covers both property documents and warranties. Documents have no
// lifecycle status to transition; they only feed the reminder engine.
type DocumentRepository struct {
	db DB
}

// NewDocumentRepository creates a DocumentRepository backed by the given
// pool.
func NewDocumentRepository(db DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

// ListReminderCandidates retrieves active documents expiring inside the scan
// window whose ledger has not fired for the threshold. The candidate Kind
// reflects the row's kind column, so warranties surface as KindWarranty.
func (r *DocumentRepository) ListReminderCandidates(ctx context.Context, threshold types.ThresholdID, windowStart, windowEnd time.Time, limit int) ([]types.ReminderCandidate, error) {
	rows, err := r.db.Query(ctx,
		`SELECT d.id, d.kind, d.expiry_date, d.name,
		        COALESCE(array_agg(pm.email) FILTER (WHERE pm.email IS NOT NULL), '{}')
		 FROM documents d
		 LEFT JOIN property_managers pm ON pm.property_id = d.property_id
		 WHERE d.active
		   AND d.expiry_date > $1 AND d.expiry_date <= $2
		   AND NOT COALESCE((d.reminder_ledger->>$3)::boolean, false)
		 GROUP BY d.id, d.kind, d.expiry_date, d.name
		 ORDER BY d.expiry_date
		 LIMIT $4`,
		windowStart, windowEnd, string(threshold), limit,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list document reminder candidates", err)
	}
	defer rows.Close()

	var results []types.ReminderCandidate
	for rows.Next() {
		var c types.ReminderCandidate
		var kind string
		if err := rows.Scan(&c.EntityID, &kind, &c.DueDate, &c.Label, &c.ManagerEmails); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan document candidate row", err)
		}
		c.Kind = types.EntityKind(kind)
		results = append(results, c)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating document candidate rows", err)
	}
	return results, nil
}

// NotifyThreshold atomically marks the threshold fired for the document and
// enqueues the reminder notifications.
func (r *DocumentRepository) NotifyThreshold(ctx context.Context, documentID string, threshold types.ThresholdID, notifs []*types.Notification, now time.Time) (bool, error) {
	return notifyThresholdTx(ctx, r.db, "documents", documentID, threshold, notifs, now)
}
