package db

import (
	"context"
	"time"

	"dwellops/internal/types"
)

// LeaseRepository provides the engine's access to the leases table:
// lifecycle candidate listing, guarded status updates, and reminder
// candidate scans with recipients resolved in SQL.
type LeaseRepository struct {
	db DB
}

// NewLeaseRepository creates a LeaseRepository backed by the given pool.
func NewLeaseRepository(db DB) *LeaseRepository {
	return &LeaseRepository{db: db}
}

// ListLifecycleCandidates retrieves leases whose status may need to advance:
// active or expiring_soon rows ending on or before the horizon, oldest end
// date first.
func (r *LeaseRepository) ListLifecycleCandidates(ctx context.Context, horizonEnd time.Time, limit int) ([]*types.Lease, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, property_id, unit_id, tenant_id, status, start_date, end_date, reminder_ledger
		 FROM leases
		 WHERE status IN ('active', 'expiring_soon') AND end_date <= $1
		 ORDER BY end_date
		 LIMIT $2`,
		horizonEnd, limit,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list lease lifecycle candidates", err)
	}
	defer rows.Close()

	var results []*types.Lease
	for rows.Next() {
		var (
			l         types.Lease
			status    string
			ledgerRaw []byte
		)
		if err := rows.Scan(&l.ID, &l.PropertyID, &l.UnitID, &l.TenantID,
			&status, &l.StartDate, &l.EndDate, &ledgerRaw); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan lease row", err)
		}
		l.Status = types.LeaseStatus(status)
		l.Ledger = scanLedger(ledgerRaw)
		results = append(results, &l)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating lease rows", err)
	}
	return results, nil
}

// UpdateStatus advances a lease's status only if it still holds the expected
// current status. Returns false when the row was already moved by another
// writer or by user action.
func (r *LeaseRepository) UpdateStatus(ctx context.Context, id string, from, to types.LeaseStatus) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE leases SET status = $3 WHERE id = $1 AND status = $2`,
		id, string(from), string(to),
	)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to update lease status", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ListReminderCandidates retrieves leases whose end date falls inside the
// scan window and whose ledger has not fired for the threshold. The tenant
// contact and property manager emails are resolved in the same query.
func (r *LeaseRepository) ListReminderCandidates(ctx context.Context, threshold types.ThresholdID, windowStart, windowEnd time.Time, limit int) ([]types.ReminderCandidate, error) {
	rows, err := r.db.Query(ctx,
		`SELECT l.id, l.end_date, COALESCE(u.label, l.unit_id), t.email,
		        COALESCE(array_agg(pm.email) FILTER (WHERE pm.email IS NOT NULL), '{}')
		 FROM leases l
		 JOIN tenants t ON t.id = l.tenant_id
		 LEFT JOIN units u ON u.id = l.unit_id
		 LEFT JOIN property_managers pm ON pm.property_id = l.property_id
		 WHERE l.status IN ('active', 'expiring_soon')
		   AND l.end_date > $1 AND l.end_date <= $2
		   AND NOT COALESCE((l.reminder_ledger->>$3)::boolean, false)
		 GROUP BY l.id, l.end_date, u.label, l.unit_id, t.email
		 ORDER BY l.end_date
		 LIMIT $4`,
		windowStart, windowEnd, string(threshold), limit,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list lease reminder candidates", err)
	}
	defer rows.Close()

	var results []types.ReminderCandidate
	for rows.Next() {
		c := types.ReminderCandidate{Kind: types.KindLease}
		if err := rows.Scan(&c.EntityID, &c.DueDate, &c.Label, &c.TenantEmail, &c.ManagerEmails); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan lease candidate row", err)
		}
		results = append(results, c)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating lease candidate rows", err)
	}
	return results, nil
}

// NotifyThreshold atomically marks the threshold fired for the lease and
// enqueues the reminder notifications. Returns false without enqueueing when
// the threshold had already fired.
func (r *LeaseRepository) NotifyThreshold(ctx context.Context, leaseID string, threshold types.ThresholdID, notifs []*types.Notification, now time.Time) (bool, error) {
	return notifyThresholdTx(ctx, r.db, "leases", leaseID, threshold, notifs, now)
}
