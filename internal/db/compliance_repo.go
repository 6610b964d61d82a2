package db

import (
	"context"
	"time"

	"dwellops/internal/types"
)

// ComplianceRepository provides the engine's access to the
// compliance_schedules table. Compliance items notify property managers
// only; there is no tenant recipient.
type ComplianceRepository struct {
	db DB
}

// NewComplianceRepository creates a ComplianceRepository backed by the given
// pool.
func NewComplianceRepository(db DB) *ComplianceRepository {
	return &ComplianceRepository{db: db}
}

// ListLifecycleCandidates retrieves upcoming and due schedules with a due
// date on or before the horizon. Due rows stay in the result so they can
// advance to overdue once the due date passes.
func (r *ComplianceRepository) ListLifecycleCandidates(ctx context.Context, horizonEnd time.Time, limit int) ([]*types.ComplianceSchedule, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, property_id, name, status, due_date, reminder_ledger
		 FROM compliance_schedules
		 WHERE status IN ('upcoming', 'due') AND due_date <= $1
		 ORDER BY due_date
		 LIMIT $2`,
		horizonEnd, limit,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list compliance lifecycle candidates", err)
	}
	defer rows.Close()

	var results []*types.ComplianceSchedule
	for rows.Next() {
		var (
			s         types.ComplianceSchedule
			status    string
			ledgerRaw []byte
		)
		if err := rows.Scan(&s.ID, &s.PropertyID, &s.Name, &status, &s.DueDate, &ledgerRaw); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan compliance row", err)
		}
		s.Status = types.ComplianceStatus(status)
		s.Ledger = scanLedger(ledgerRaw)
		results = append(results, &s)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating compliance rows", err)
	}
	return results, nil
}

// UpdateStatus advances a schedule's status only if it still holds the
// expected current status.
func (r *ComplianceRepository) UpdateStatus(ctx context.Context, id string, from, to types.ComplianceStatus) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE compliance_schedules SET status = $3 WHERE id = $1 AND status = $2`,
		id, string(from), string(to),
	)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to update compliance status", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ListReminderCandidates retrieves schedules due inside the scan window
// whose ledger has not fired for the threshold.
func (r *ComplianceRepository) ListReminderCandidates(ctx context.Context, threshold types.ThresholdID, windowStart, windowEnd time.Time, limit int) ([]types.ReminderCandidate, error) {
	rows, err := r.db.Query(ctx,
		`SELECT s.id, s.due_date, s.name,
		        COALESCE(array_agg(pm.email) FILTER (WHERE pm.email IS NOT NULL), '{}')
		 FROM compliance_schedules s
		 LEFT JOIN property_managers pm ON pm.property_id = s.property_id
		 WHERE s.status IN ('upcoming', 'due')
		   AND s.due_date > $1 AND s.due_date <= $2
		   AND NOT COALESCE((s.reminder_ledger->>$3)::boolean, false)
		 GROUP BY s.id, s.due_date, s.name
		 ORDER BY s.due_date
		 LIMIT $4`,
		windowStart, windowEnd, string(threshold), limit,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list compliance reminder candidates", err)
	}
	defer rows.Close()

	var results []types.ReminderCandidate
	for rows.Next() {
		c := types.ReminderCandidate{Kind: types.KindComplianceSchedule}
		if err := rows.Scan(&c.EntityID, &c.DueDate, &c.Label, &c.ManagerEmails); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan compliance candidate row", err)
		}
		results = append(results, c)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating compliance candidate rows", err)
	}
	return results, nil
}

// NotifyThreshold atomically marks the threshold fired for the schedule and
// enqueues the reminder notifications.
func (r *ComplianceRepository) NotifyThreshold(ctx context.Context, scheduleID string, threshold types.ThresholdID, notifs []*types.Notification, now time.Time) (bool, error) {
	return notifyThresholdTx(ctx, r.db, "compliance_schedules", scheduleID, threshold, notifs, now)
}
