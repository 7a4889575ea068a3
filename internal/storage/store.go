// Package storage defines the persistence contracts for the six relations.
// Stores are interface-driven to keep the domain logic testable and to allow
// swapping in-memory and postgres implementations without rewiring business
// code. Stores return pkg/platform/sentinel errors; services translate them
// into coded domain errors.
package storage

import (
	"context"

	"assent/internal/domain"
)

type UserStore interface {
	Insert(ctx context.Context, user domain.User) error
	Get(ctx context.Context, id domain.UserID) (domain.User, error)
	FindByEmail(ctx context.Context, email string) (domain.User, error)
	Update(ctx context.Context, user domain.User) error
}

type ConsentStore interface {
	Insert(ctx context.Context, record domain.ConsentRecord) error
	Get(ctx context.Context, id domain.RecordID) (domain.ConsentRecord, error)
	ListByUser(ctx context.Context, userID domain.UserID) ([]domain.ConsentRecord, error)
	// SaveVersioned persists the record only when the stored version still
	// equals expectedVersion, bumping the version on success. A stale writer
	// gets sentinel.ErrConflict.
	SaveVersioned(ctx context.Context, record domain.ConsentRecord, expectedVersion int64) error
	CountByStatus(ctx context.Context) (map[domain.VerificationStatus]int, error)
	// CountActiveByKey counts non-withdrawn records referencing the key.
	CountActiveByKey(ctx context.Context, keyID domain.KeyID) (int, error)
}

type AuditStore interface {
	// Append assigns the entry the next per-record sequence number,
	// persists it, and returns the stored entry. There is no update or
	// delete.
	Append(ctx context.Context, entry domain.AuditEntry) (domain.AuditEntry, error)
	ListByRecord(ctx context.Context, recordID domain.RecordID) ([]domain.AuditEntry, error)
	// ListAfter returns up to limit entries with Seq > afterSeq, ascending.
	// Restarting from any sequence number yields the same suffix.
	ListAfter(ctx context.Context, recordID domain.RecordID, afterSeq int64, limit int) ([]domain.AuditEntry, error)
}

type ComplianceStore interface {
	Insert(ctx context.Context, check domain.ComplianceCheck) error
	ListByRecord(ctx context.Context, recordID domain.RecordID) ([]domain.ComplianceCheck, error)
}

type WithdrawalStore interface {
	Insert(ctx context.Context, w domain.WithdrawalRecord) error
	Get(ctx context.Context, id domain.WithdrawalID) (domain.WithdrawalRecord, error)
	// FindActiveByRecord returns the withdrawal whose deletion has not
	// failed, or sentinel.ErrNotFound when none exists.
	FindActiveByRecord(ctx context.Context, recordID domain.RecordID) (domain.WithdrawalRecord, error)
	Update(ctx context.Context, w domain.WithdrawalRecord) error
}

type KeyStore interface {
	Insert(ctx context.Context, key domain.EncryptionKey) error
	Get(ctx context.Context, id domain.KeyID) (domain.EncryptionKey, error)
	FindActiveByType(ctx context.Context, keyType string) (domain.EncryptionKey, error)
	Update(ctx context.Context, key domain.EncryptionKey) error
}

// Stores bundles all relations so a unit of work can touch several of them
// atomically. There is no cross-record transaction: callers mutate at most
// one consent record per unit of work.
type Stores struct {
	Users       UserStore
	Consents    ConsentStore
	Audit       AuditStore
	Compliance  ComplianceStore
	Withdrawals WithdrawalStore
	Keys        KeyStore
}

// Tx is the transactional boundary. A mutation and its audit entry always
// execute inside one RunInTx call; either both commit or neither does. fn
// must use the context it is handed — the postgres implementation carries
// the open transaction in it.
type Tx interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, s Stores) error) error
}
