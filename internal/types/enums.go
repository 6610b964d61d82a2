package types

// NotificationStatus enumerates the delivery states of a queued notification.
// These values MUST match the CHECK constraint on the notifications table.
type NotificationStatus string

const (
	NotificationPending NotificationStatus = "pending"
	NotificationSent    NotificationStatus = "sent"
	NotificationFailed  NotificationStatus = "failed"
)

// Terminal reports whether the status is final. A terminal notification is
// immutable; the store rejects further outcome updates.
func (s NotificationStatus) Terminal() bool {
	return s == NotificationSent || s == NotificationFailed
}

// TemplateKind identifies the message template a notification renders with.
// The mail gateway resolves the kind to a provider template ID.
type TemplateKind string

const (
	TemplateLeaseExpiryReminder    TemplateKind = "lease_expiry_reminder"
	TemplateDocumentExpiryReminder TemplateKind = "document_expiry_reminder"
	TemplateComplianceDueReminder  TemplateKind = "compliance_due_reminder"
	TemplateChequeDueReminder      TemplateKind = "cheque_due_reminder"
	TemplatePasswordReset          TemplateKind = "password_reset"
	TemplateGeneric                TemplateKind = "generic"
)

// RecipientClass identifies who a reminder goes to. Each configured class
// yields one notification per reminder event.
type RecipientClass string

const (
	RecipientTenantContact    RecipientClass = "tenant_contact"
	RecipientPropertyManagers RecipientClass = "property_managers"
	RecipientOwner            RecipientClass = "owner"
)

// LeaseStatus represents the lifecycle state of a lease. The transition
// engine only advances active/expiring_soon/expired; terminated is set by
// user action in the surrounding CRUD system.
type LeaseStatus string

const (
	LeaseActive       LeaseStatus = "active"
	LeaseExpiringSoon LeaseStatus = "expiring_soon"
	LeaseExpired      LeaseStatus = "expired"
	LeaseTerminated   LeaseStatus = "terminated"
)

// ChequeStatus represents the lifecycle state of a post-dated cheque.
// The engine only performs received -> due; deposited/cleared/bounced are
// explicit user actions.
type ChequeStatus string

const (
	ChequeReceived  ChequeStatus = "received"
	ChequeDue       ChequeStatus = "due"
	ChequeDeposited ChequeStatus = "deposited"
	ChequeCleared   ChequeStatus = "cleared"
	ChequeBounced   ChequeStatus = "bounced"
)

// ComplianceStatus represents the lifecycle state of a compliance schedule.
type ComplianceStatus string

const (
	ComplianceUpcoming  ComplianceStatus = "upcoming"
	ComplianceDue       ComplianceStatus = "due"
	ComplianceOverdue   ComplianceStatus = "overdue"
	ComplianceCompleted ComplianceStatus = "completed"
)

// EntityKind identifies a monitored entity type in reminder scans and logs.
type EntityKind string

const (
	KindLease              EntityKind = "lease"
	KindDocument           EntityKind = "document"
	KindWarranty           EntityKind = "warranty"
	KindComplianceSchedule EntityKind = "compliance_schedule"
	KindCheque             EntityKind = "cheque"
)

// DispatchStatus categorizes the outcome of a single Dispatcher.Send call.
// The retry scheduler branches on this value instead of inspecting error
// types: retryable failures consume one retry, permanent failures mark the
// notification failed immediately.
type DispatchStatus string

const (
	DispatchDelivered        DispatchStatus = "delivered"
	DispatchRetryableFailure DispatchStatus = "retryable_failure"
	DispatchPermanentFailure DispatchStatus = "permanent_failure"
)
