package domain

import (
	"time"

	"github.com/google/uuid"
)

// Audit actions. One entry exists per committed mutation to a consent
// record; rows are never updated or deleted.
const (
	AuditActionCreated           = "created"
	AuditActionUpdated           = "updated"
	AuditActionStatusChanged     = "status_changed"
	AuditActionComplianceChecked = "compliance_checked"
	AuditActionDeletionCompleted = "deletion_completed"
	AuditActionDeletionFailed    = "deletion_failed"
)

// AuditEntry is one immutable row in a consent record's history. Seq is a
// per-record sequence number assigned at append time; the full history is
// gap-free and ordered by Seq ascending.
type AuditEntry struct {
	ID            uuid.UUID
	RecordID      RecordID
	Seq           int64
	Action        string
	ChangedFields []string
	OldValues     map[string]string
	NewValues     map[string]string
	Actor         string
	Reason        string
	Timestamp     time.Time
}
