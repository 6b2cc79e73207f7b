package constants

// DocumentStatus is the canonical processing status stored on documents.
type DocumentStatus string

// Stable values (store these exact strings in DB).
const (
	DocumentPending     DocumentStatus = "pending"      // uploaded, waiting for a process request
	DocumentProcessing  DocumentStatus = "processing"   // claimed by the orchestrator
	DocumentProcessed   DocumentStatus = "processed"    // extraction trusted
	DocumentNeedsReview DocumentStatus = "needs_review" // stored, below confidence threshold
	DocumentFailed      DocumentStatus = "failed"       // retriable via explicit retry
)

// Terminal reports whether the orchestrator is done with the document.
func (s DocumentStatus) Terminal() bool {
	return s == DocumentProcessed || s == DocumentNeedsReview || s == DocumentFailed
}

// RequirementStatus is always derived by the requirement state machine.
type RequirementStatus string

const (
	RequirementPending      RequirementStatus = "pending"
	RequirementCompliant    RequirementStatus = "compliant"
	RequirementExpiringSoon RequirementStatus = "expiring_soon"
	RequirementExpired      RequirementStatus = "expired"
)

// RequirementStatuses lists every derived status in display order.
var RequirementStatuses = []RequirementStatus{
	RequirementCompliant,
	RequirementExpiringSoon,
	RequirementExpired,
	RequirementPending,
}

// StatusSource distinguishes automatic derivation from operator overrides in the audit trail.
type StatusSource string

const (
	StatusSourceAuto           StatusSource = "auto"
	StatusSourceManualOverride StatusSource = "manual_override"
)

// NotificationType is the kind of alert a notification carries.
type NotificationType string

const (
	NotificationReminder          NotificationType = "reminder"
	NotificationExpiring          NotificationType = "expiring"
	NotificationOverdue           NotificationType = "overdue"
	NotificationEscalation        NotificationType = "escalation"
	NotificationStatusChange      NotificationType = "status_change"
	NotificationDocumentProcessed NotificationType = "document_processed"
)

// NotificationStatus is the delivery status of a notification.
type NotificationStatus string

const (
	NotificationPending NotificationStatus = "pending"
	NotificationSent    NotificationStatus = "sent"
	NotificationFailed  NotificationStatus = "failed" // permanently failed after max attempts
)

// SyncDirection is the direction of a CRM sync attempt.
type SyncDirection string

const (
	SyncPush SyncDirection = "push" // platform -> CRM
	SyncPull SyncDirection = "pull" // CRM -> platform
)

// SyncOperation names what a CRM sync attempt tried to do.
type SyncOperation string

const (
	SyncCreate          SyncOperation = "create"
	SyncUpdate          SyncOperation = "update"
	SyncCompliancePush  SyncOperation = "compliance_push"
	SyncTestConnection  SyncOperation = "test_connection"
	SyncWebhookReceived SyncOperation = "webhook_received"
	SyncLinkExternalID  SyncOperation = "link_external_id"
)

// SyncStatus is the outcome of one CRM sync attempt.
type SyncStatus string

const (
	SyncSuccess SyncStatus = "success"
	SyncFailed  SyncStatus = "failed"
)
