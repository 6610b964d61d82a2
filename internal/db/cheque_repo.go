package db

import (
	"context"
	"time"

	"dwellops/internal/types"
)

// ChequeRepository provides the engine's access to the cheques table.
// Post-dated cheques only ever advance received -> due here; deposits,
// clearances, and bounces are user actions elsewhere.
type ChequeRepository struct {
	db DB
}

// NewChequeRepository creates a ChequeRepository backed by the given pool.
func NewChequeRepository(db DB) *ChequeRepository {
	return &ChequeRepository{db: db}
}

// ListLifecycleCandidates retrieves received cheques whose cheque date falls
// on or before the horizon, oldest first.
func (r *ChequeRepository) ListLifecycleCandidates(ctx context.Context, horizonEnd time.Time, limit int) ([]*types.Cheque, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, lease_id, status, cheque_date, amount_minor, reminder_ledger
		 FROM cheques
		 WHERE status = 'received' AND cheque_date <= $1
		 ORDER BY cheque_date
		 LIMIT $2`,
		horizonEnd, limit,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list cheque lifecycle candidates", err)
	}
	defer rows.Close()

	var results []*types.Cheque
	for rows.Next() {
		var (
			c         types.Cheque
			status    string
			ledgerRaw []byte
		)
		if err := rows.Scan(&c.ID, &c.LeaseID, &status, &c.ChequeDate, &c.AmountMinor, &ledgerRaw); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan cheque row", err)
		}
		c.Status = types.ChequeStatus(status)
		c.Ledger = scanLedger(ledgerRaw)
		results = append(results, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating cheque rows", err)
	}
	return results, nil
}

// UpdateStatus advances a cheque's status only if it still holds the
// expected current status.
func (r *ChequeRepository) UpdateStatus(ctx context.Context, id string, from, to types.ChequeStatus) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE cheques SET status = $3 WHERE id = $1 AND status = $2`,
		id, string(from), string(to),
	)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to update cheque status", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ListReminderCandidates retrieves received cheques due inside the scan
// window whose ledger has not fired for the threshold. The tenant is
// resolved through the owning lease; managers come from the lease's
// property.
func (r *ChequeRepository) ListReminderCandidates(ctx context.Context, threshold types.ThresholdID, windowStart, windowEnd time.Time, limit int) ([]types.ReminderCandidate, error) {
	rows, err := r.db.Query(ctx,
		`SELECT c.id, c.cheque_date, COALESCE(u.label, l.unit_id), t.email,
		        COALESCE(array_agg(pm.email) FILTER (WHERE pm.email IS NOT NULL), '{}')
		 FROM cheques c
		 JOIN leases l ON l.id = c.lease_id
		 JOIN tenants t ON t.id = l.tenant_id
		 LEFT JOIN units u ON u.id = l.unit_id
		 LEFT JOIN property_managers pm ON pm.property_id = l.property_id
		 WHERE c.status = 'received'
		   AND c.cheque_date > $1 AND c.cheque_date <= $2
		   AND NOT COALESCE((c.reminder_ledger->>$3)::boolean, false)
		 GROUP BY c.id, c.cheque_date, u.label, l.unit_id, t.email
		 ORDER BY c.cheque_date
		 LIMIT $4`,
		windowStart, windowEnd, string(threshold), limit,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list cheque reminder candidates", err)
	}
	defer rows.Close()

	var results []types.ReminderCandidate
	for rows.Next() {
		c := types.ReminderCandidate{Kind: types.KindCheque}
		if err := rows.Scan(&c.EntityID, &c.DueDate, &c.Label, &c.TenantEmail, &c.ManagerEmails); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan cheque candidate row", err)
		}
		results = append(results, c)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating cheque candidate rows", err)
	}
	return results, nil
}

// NotifyThreshold atomically marks the threshold fired for the cheque and
// enqueues the reminder notifications.
func (r *ChequeRepository) NotifyThreshold(ctx context.Context, chequeID string, threshold types.ThresholdID, notifs []*types.Notification, now time.Time) (bool, error) {
	return notifyThresholdTx(ctx, r.db, "cheques", chequeID, threshold, notifs, now)
}
