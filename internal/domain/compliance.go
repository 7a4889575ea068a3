package domain

import "time"

// ComplianceCheck is one evaluation run of a consent record against a named
// standard. Checks are append-only: re-evaluation inserts a new row so the
// compliance posture over time is preserved.
type ComplianceCheck struct {
	ID          CheckID
	RecordID    RecordID
	CheckType   string
	Standard    string
	Result      bool
	Issues      []string
	Remediation string
	CheckedBy   string
	CheckedAt   time.Time
}
