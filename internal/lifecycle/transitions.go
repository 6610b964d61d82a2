// Package lifecycle implements the date-driven status transition engine.
// Transition decisions are pure functions of the entity's current status,
// its driving date, and a reference time; the Engine applies them with
// guarded writes so a row is only updated when its status actually changes.
//
// Transitions only move forward. A lease that reached expired never goes
// back to expiring_soon even if its end date is edited later; reversals are
// explicit user actions in the surrounding platform.
package lifecycle

import (
	"time"

	"dwellops/internal/types"
)

// NextLeaseStatus returns the status a lease should hold at the reference
// time, and whether that differs from the current status. Terminated and
// expired leases never change.
func NextLeaseStatus(cur types.LeaseStatus, endDate, now time.Time, expiringWindow time.Duration) (types.LeaseStatus, bool) {
	switch cur {
	case types.LeaseActive, types.LeaseExpiringSoon:
	default:
		return cur, false
	}

	if endDate.Before(now) {
		return types.LeaseExpired, cur != types.LeaseExpired
	}
	if cur == types.LeaseActive && !endDate.After(now.Add(expiringWindow)) {
		return types.LeaseExpiringSoon, true
	}
	return cur, false
}

// NextChequeStatus returns the status a post-dated cheque should hold at
// the reference time. Only received cheques advance; deposited, cleared,
// and bounced are user actions.
func NextChequeStatus(cur types.ChequeStatus, chequeDate, now time.Time, dueWindow time.Duration) (types.ChequeStatus, bool) {
	if cur != types.ChequeReceived {
		return cur, false
	}
	if !chequeDate.After(now.Add(dueWindow)) {
		return types.ChequeDue, true
	}
	return cur, false
}

// NextComplianceStatus returns the status a compliance schedule should hold
// at the reference time. Completed schedules never change.
func NextComplianceStatus(cur types.ComplianceStatus, dueDate, now time.Time, dueWindow time.Duration) (types.ComplianceStatus, bool) {
	switch cur {
	case types.ComplianceUpcoming, types.ComplianceDue:
	default:
		return cur, false
	}

	if dueDate.Before(now) {
		return types.ComplianceOverdue, true
	}
	if cur == types.ComplianceUpcoming && !dueDate.After(now.Add(dueWindow)) {
		return types.ComplianceDue, true
	}
	return cur, false
}
