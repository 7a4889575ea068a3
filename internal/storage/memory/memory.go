// Package memory provides in-memory store implementations. They keep the
// initial deployment and the test suite lightweight, and intentionally favor
// clarity over performance.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"assent/internal/domain"
	"assent/internal/storage"
	"assent/pkg/platform/sentinel"
)

type UserStore struct {
	mu    sync.RWMutex
	users map[domain.UserID]domain.User
}

func NewUserStore() *UserStore {
	return &UserStore{users: make(map[domain.UserID]domain.User)}
}

func (s *UserStore) Insert(_ context.Context, user domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if strings.EqualFold(existing.Email, user.Email) {
			return sentinel.ErrDuplicate
		}
	}
	s.users[user.ID] = user
	return nil
}

func (s *UserStore) Get(_ context.Context, id domain.UserID) (domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if user, ok := s.users[id]; ok {
		return user, nil
	}
	return domain.User{}, sentinel.ErrNotFound
}

func (s *UserStore) FindByEmail(_ context.Context, email string) (domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, user := range s.users {
		if strings.EqualFold(user.Email, email) {
			return user, nil
		}
	}
	return domain.User{}, sentinel.ErrNotFound
}

func (s *UserStore) Update(_ context.Context, user domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[user.ID]; !ok {
		return sentinel.ErrNotFound
	}
	s.users[user.ID] = user
	return nil
}

type ConsentStore struct {
	mu      sync.RWMutex
	records map[domain.RecordID]domain.ConsentRecord
}

func NewConsentStore() *ConsentStore {
	return &ConsentStore{records: make(map[domain.RecordID]domain.ConsentRecord)}
}

func (s *ConsentStore) Insert(_ context.Context, record domain.ConsentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[record.ID]; ok {
		return sentinel.ErrDuplicate
	}
	s.records[record.ID] = record
	return nil
}

func (s *ConsentStore) Get(_ context.Context, id domain.RecordID) (domain.ConsentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if record, ok := s.records[id]; ok {
		return record, nil
	}
	return domain.ConsentRecord{}, sentinel.ErrNotFound
}

func (s *ConsentStore) ListByUser(_ context.Context, userID domain.UserID) ([]domain.ConsentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var records []domain.ConsentRecord
	for _, record := range s.records {
		if record.UserID == userID {
			records = append(records, record)
		}
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.Before(records[j].CreatedAt)
	})
	return records, nil
}

func (s *ConsentStore) SaveVersioned(_ context.Context, record domain.ConsentRecord, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.records[record.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if stored.Version != expectedVersion {
		return sentinel.ErrConflict
	}
	record.Version = expectedVersion + 1
	s.records[record.ID] = record
	return nil
}

func (s *ConsentStore) CountByStatus(_ context.Context) (map[domain.VerificationStatus]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[domain.VerificationStatus]int)
	for _, record := range s.records {
		counts[record.Status]++
	}
	return counts, nil
}

func (s *ConsentStore) CountActiveByKey(_ context.Context, keyID domain.KeyID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, record := range s.records {
		if record.EncryptionKeyID == keyID && record.Status != domain.StatusWithdrawn {
			count++
		}
	}
	return count, nil
}

type AuditStore struct {
	mu      sync.RWMutex
	entries map[domain.RecordID][]domain.AuditEntry
}

func NewAuditStore() *AuditStore {
	return &AuditStore{entries: make(map[domain.RecordID][]domain.AuditEntry)}
}

func (s *AuditStore) Append(_ context.Context, entry domain.AuditEntry) (domain.AuditEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry.Seq = int64(len(s.entries[entry.RecordID])) + 1
	s.entries[entry.RecordID] = append(s.entries[entry.RecordID], entry)
	return entry, nil
}

func (s *AuditStore) ListByRecord(_ context.Context, recordID domain.RecordID) ([]domain.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.AuditEntry{}, s.entries[recordID]...), nil
}

func (s *AuditStore) ListAfter(_ context.Context, recordID domain.RecordID, afterSeq int64, limit int) ([]domain.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var page []domain.AuditEntry
	for _, entry := range s.entries[recordID] {
		if entry.Seq <= afterSeq {
			continue
		}
		page = append(page, entry)
		if limit > 0 && len(page) == limit {
			break
		}
	}
	return page, nil
}

type ComplianceStore struct {
	mu     sync.RWMutex
	checks map[domain.RecordID][]domain.ComplianceCheck
}

func NewComplianceStore() *ComplianceStore {
	return &ComplianceStore{checks: make(map[domain.RecordID][]domain.ComplianceCheck)}
}

func (s *ComplianceStore) Insert(_ context.Context, check domain.ComplianceCheck) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checks[check.RecordID] = append(s.checks[check.RecordID], check)
	return nil
}

func (s *ComplianceStore) ListByRecord(_ context.Context, recordID domain.RecordID) ([]domain.ComplianceCheck, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.ComplianceCheck{}, s.checks[recordID]...), nil
}

type WithdrawalStore struct {
	mu          sync.RWMutex
	withdrawals map[domain.WithdrawalID]domain.WithdrawalRecord
}

func NewWithdrawalStore() *WithdrawalStore {
	return &WithdrawalStore{withdrawals: make(map[domain.WithdrawalID]domain.WithdrawalRecord)}
}

func (s *WithdrawalStore) Insert(_ context.Context, w domain.WithdrawalRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.withdrawals[w.ID] = w
	return nil
}

func (s *WithdrawalStore) Get(_ context.Context, id domain.WithdrawalID) (domain.WithdrawalRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if w, ok := s.withdrawals[id]; ok {
		return w, nil
	}
	return domain.WithdrawalRecord{}, sentinel.ErrNotFound
}

func (s *WithdrawalStore) FindActiveByRecord(_ context.Context, recordID domain.RecordID) (domain.WithdrawalRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, w := range s.withdrawals {
		if w.RecordID == recordID && w.DeletionStatus != domain.DeletionFailed {
			return w, nil
		}
	}
	return domain.WithdrawalRecord{}, sentinel.ErrNotFound
}

func (s *WithdrawalStore) Update(_ context.Context, w domain.WithdrawalRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.withdrawals[w.ID]; !ok {
		return sentinel.ErrNotFound
	}
	s.withdrawals[w.ID] = w
	return nil
}

type KeyStore struct {
	mu   sync.RWMutex
	keys map[domain.KeyID]domain.EncryptionKey
}

func NewKeyStore() *KeyStore {
	return &KeyStore{keys: make(map[domain.KeyID]domain.EncryptionKey)}
}

func (s *KeyStore) Insert(_ context.Context, key domain.EncryptionKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.keys[key.ID]; ok {
		return sentinel.ErrDuplicate
	}
	s.keys[key.ID] = key
	return nil
}

func (s *KeyStore) Get(_ context.Context, id domain.KeyID) (domain.EncryptionKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if key, ok := s.keys[id]; ok {
		return key, nil
	}
	return domain.EncryptionKey{}, sentinel.ErrNotFound
}

func (s *KeyStore) FindActiveByType(_ context.Context, keyType string) (domain.EncryptionKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, key := range s.keys {
		if key.KeyType == keyType && key.Active {
			return key, nil
		}
	}
	return domain.EncryptionKey{}, sentinel.ErrNotFound
}

func (s *KeyStore) Update(_ context.Context, key domain.EncryptionKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.keys[key.ID]; !ok {
		return sentinel.ErrNotFound
	}
	s.keys[key.ID] = key
	return nil
}

// NewStores builds a full in-memory store bundle.
func NewStores() storage.Stores {
	return storage.Stores{
		Users:       NewUserStore(),
		Consents:    NewConsentStore(),
		Audit:       NewAuditStore(),
		Compliance:  NewComplianceStore(),
		Withdrawals: NewWithdrawalStore(),
		Keys:        NewKeyStore(),
	}
}
