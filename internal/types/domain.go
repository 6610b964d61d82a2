// Package types defines the domain model shared by the notification store,
// the reminder engine, and the lifecycle transition engine. Entities carried
// here are the subset the engine reads and mutates; the full CRUD records
// (addresses, rent schedules, vendor details) belong to the surrounding
// platform and never pass through this code.
package types

import (
	"strconv"
	"time"
)

// Payload is the opaque key-value bag handed to the Dispatcher alongside a
// notification. It is stored as JSONB and never interpreted by the engine.
type Payload map[string]any

// ThresholdID names a reminder threshold, e.g. "60d" for sixty days before
// the due date. Thresholds are configuration; the ledger is keyed by this
// identifier so adding a threshold does not require a schema change.
type ThresholdID string

// DaysThreshold builds the canonical ThresholdID for a day count.
func DaysThreshold(days int) ThresholdID {
	return ThresholdID(strconv.Itoa(days) + "d")
}

// Notification is a row in the outbound notification queue.
//
// Status only ever moves forward: pending -> sent, or pending -> pending
// with an incremented RetryCount and a later NextRetryAt, or pending ->
// failed once retries are exhausted. Sent and failed are immutable.
type Notification struct {
	ID           string
	Recipient    string
	TemplateKind TemplateKind
	Payload      Payload
	Status       NotificationStatus
	RetryCount   int
	NextRetryAt  time.Time
	LastError    string
	CreatedAt    time.Time
}

// DispatchResult is the outcome of one Dispatcher.Send call.
type DispatchResult struct {
	Status DispatchStatus
	// Reason carries the provider failure detail for logs and the
	// notification's last_error column. Empty on delivery.
	Reason string
	// ProviderMsgID is the upstream message identifier on delivery.
	ProviderMsgID string
}

// ReminderLedger records which thresholds have already produced a reminder
// for the owning entity. Flags are monotonic: once a threshold is marked
// notified it is never cleared, even if the entity's due date later moves.
// This is what makes reminder dispatch idempotent across job runs, and it
// is also a known limitation: a due date edited to an earlier date after a
// threshold fired will not re-arm that threshold.
type ReminderLedger map[ThresholdID]bool

// Notified reports whether the threshold has already fired. A nil ledger
// reads as all-false.
func (l ReminderLedger) Notified(t ThresholdID) bool {
	return l[t]
}

// MarkNotified flips the flag for t and reports whether it changed. It
// never unsets a flag.
func (l ReminderLedger) MarkNotified(t ThresholdID) bool {
	if l[t] {
		return false
	}
	l[t] = true
	return true
}

// Lease is the engine's view of a lease record: lifecycle status, the end
// date driving transitions and reminders, and the reminder ledger.
type Lease struct {
	ID         string
	PropertyID string
	UnitID     string
	TenantID   string
	Status     LeaseStatus
	StartDate  time.Time
	EndDate    time.Time
	Ledger     ReminderLedger
}

// Cheque is the engine's view of a post-dated cheque.
type Cheque struct {
	ID          string
	LeaseID     string
	Status      ChequeStatus
	ChequeDate  time.Time
	AmountMinor int64
	Ledger      ReminderLedger
}

// ComplianceSchedule is the engine's view of a recurring compliance item
// (fire inspection, elevator certificate, and the like).
type ComplianceSchedule struct {
	ID         string
	PropertyID string
	Name       string
	Status     ComplianceStatus
	DueDate    time.Time
	Ledger     ReminderLedger
}

// ReminderCandidate is one entity whose due date falls inside a reminder
// scan window and whose ledger has not yet fired for the threshold. The
// repositories resolve recipients at scan time so the engine never joins
// tenant or manager tables itself.
type ReminderCandidate struct {
	EntityID string
	Kind     EntityKind
	// Label is the human-readable handle for the entity (unit label,
	// document name, compliance item name) used in notification payloads.
	Label   string
	DueDate time.Time
	// TenantEmail is empty for entity kinds that never notify tenants.
	TenantEmail   string
	ManagerEmails []string
}

// Document is the engine's view of an expiring document or warranty.
type Document struct {
	ID         string
	PropertyID string
	Name       string
	Kind       EntityKind // KindDocument or KindWarranty
	Active     bool
	ExpiryDate time.Time
	Ledger     ReminderLedger
}
