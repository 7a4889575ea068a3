package domain

import "time"

// DeletionStatus tracks physical erasure after a withdrawal. Transitions are
// forward-only: pending → in_progress → completed|failed.
type DeletionStatus string

const (
	DeletionPending    DeletionStatus = "pending"
	DeletionInProgress DeletionStatus = "in_progress"
	DeletionCompleted  DeletionStatus = "completed"
	DeletionFailed     DeletionStatus = "failed"
)

// CanAdvanceTo reports whether next is the legal successor of s. Skipping a
// step or moving backward is not permitted.
func (s DeletionStatus) CanAdvanceTo(next DeletionStatus) bool {
	switch s {
	case DeletionPending:
		return next == DeletionInProgress
	case DeletionInProgress:
		return next == DeletionCompleted || next == DeletionFailed
	default:
		return false
	}
}

// Terminal reports whether the deletion has reached its final outcome.
func (s DeletionStatus) Terminal() bool {
	return s == DeletionCompleted || s == DeletionFailed
}

// WithdrawalRecord tracks one right-to-withdraw request. At most one active
// withdrawal exists per consent record; a completed deletion is the
// lifecycle terminus.
type WithdrawalRecord struct {
	ID                  WithdrawalID
	RecordID            RecordID
	WithdrawnAt         time.Time
	Reason              string
	Method              string
	DeletionStatus      DeletionStatus
	DeletionCompletedAt *time.Time
	VerifiedBy          string
	CreatedAt           time.Time
}

// WithdrawalMethodUserRequest is the default withdrawal method when the
// caller does not name one.
const WithdrawalMethodUserRequest = "user_request"
