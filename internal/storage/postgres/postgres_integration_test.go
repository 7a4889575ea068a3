//go:build integration

package postgres_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"assent/internal/domain"
	"assent/internal/storage"
	"assent/internal/storage/postgres"
	"assent/pkg/platform/sentinel"
	"assent/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	pg     *containers.PostgresContainer
	stores storage.Stores
	tx     *postgres.Tx
	seeded int
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.pg = containers.NewPostgresContainer(s.T())
	s.Require().NoError(postgres.EnsureSchema(context.Background(), s.pg.DB))
	s.stores = postgres.NewStores(s.pg.DB)
	s.tx = postgres.NewTx(s.pg.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	// Truncate in dependency order.
	_, err := s.pg.DB.ExecContext(context.Background(), `
		TRUNCATE withdrawal_records, compliance_checks, consent_audit_log,
			consent_records, encryption_keys, users
	`)
	s.Require().NoError(err)
}

func (s *PostgresStoreSuite) seedUser() domain.User {
	now := time.Now().UTC()
	u := domain.User{
		ID:        domain.NewUserID(),
		Email:     "user-" + uuid.NewString() + "@example.com",
		FullName:  "Asha Rao",
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.Require().NoError(s.stores.Users.Insert(context.Background(), u))
	return u
}

func (s *PostgresStoreSuite) seedConsent(userID domain.UserID) domain.ConsentRecord {
	// strictly increasing timestamps so created_at ordering is deterministic
	// at microsecond column resolution
	s.seeded++
	now := time.Now().UTC().Add(time.Duration(s.seeded) * time.Millisecond)
	record := domain.ConsentRecord{
		ID:                  domain.NewRecordID(),
		UserID:              userID,
		DocumentType:        "privacy_policy",
		DetectedEmotion:     "calm",
		EmotionConfidence:   0.92,
		FacialLandmarks:     []byte(`{"points":3}`),
		UserConsent:         true,
		ConsentTimestamp:    now,
		ConsentDuration:     48 * time.Hour,
		DataUsagePurpose:    "identity verification",
		DataRetentionPeriod: "5 years",
		RightToWithdraw:     true,
		Jurisdiction:        "India",
		Request:             domain.RequestMeta{ClientIP: "203.0.113.9", DeviceInfo: "Linux; Chrome", UserAgent: "test"},
		DigitalSignature:    "sig",
		SignatureAlgorithm:  "SHA-256",
		Status:              domain.StatusPending,
		Version:             1,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	s.Require().NoError(s.stores.Consents.Insert(context.Background(), record))
	return record
}

func (s *PostgresStoreSuite) TestUserRoundTrip() {
	ctx := context.Background()
	u := s.seedUser()

	got, err := s.stores.Users.Get(ctx, u.ID)
	s.Require().NoError(err)
	s.Equal(u.Email, got.Email)
	s.True(got.Active)

	s.Run("email lookup ignores case", func() {
		found, err := s.stores.Users.FindByEmail(ctx, strings.ToUpper(u.Email))
		s.Require().NoError(err)
		s.Equal(u.ID, found.ID)
	})

	s.Run("duplicate email rejected", func() {
		dup := u
		dup.ID = domain.NewUserID()
		s.ErrorIs(s.stores.Users.Insert(ctx, dup), sentinel.ErrDuplicate)
	})

	s.Run("update missing user", func() {
		ghost := u
		ghost.ID = domain.NewUserID()
		ghost.Email = "ghost-" + uuid.NewString() + "@example.com"
		s.ErrorIs(s.stores.Users.Update(ctx, ghost), sentinel.ErrNotFound)
	})

	s.Run("unknown id", func() {
		_, err := s.stores.Users.Get(ctx, domain.NewUserID())
		s.ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *PostgresStoreSuite) TestConsentRoundTrip() {
	ctx := context.Background()
	u := s.seedUser()
	record := s.seedConsent(u.ID)

	got, err := s.stores.Consents.Get(ctx, record.ID)
	s.Require().NoError(err)
	s.Equal(record.DocumentType, got.DocumentType)
	s.Equal(record.ConsentDuration, got.ConsentDuration)
	s.Equal(record.Request.ClientIP, got.Request.ClientIP)
	s.JSONEq(string(record.FacialLandmarks), string(got.FacialLandmarks))
	s.EqualValues(1, got.Version)
	s.WithinDuration(record.ConsentTimestamp, got.ConsentTimestamp, time.Millisecond)

	s.Run("duplicate id rejected", func() {
		s.ErrorIs(s.stores.Consents.Insert(ctx, record), sentinel.ErrDuplicate)
	})

	s.Run("unknown id", func() {
		_, err := s.stores.Consents.Get(ctx, domain.NewRecordID())
		s.ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *PostgresStoreSuite) TestConsentVersioning() {
	ctx := context.Background()
	u := s.seedUser()
	record := s.seedConsent(u.ID)

	record.DataRetentionPeriod = "7 years"
	record.UpdatedAt = time.Now().UTC()
	s.Require().NoError(s.stores.Consents.SaveVersioned(ctx, record, 1))

	got, err := s.stores.Consents.Get(ctx, record.ID)
	s.Require().NoError(err)
	s.Equal("7 years", got.DataRetentionPeriod)
	s.EqualValues(2, got.Version)

	s.Run("stale writer conflicts", func() {
		stale := record
		stale.DataRetentionPeriod = "1 year"
		s.ErrorIs(s.stores.Consents.SaveVersioned(ctx, stale, 1), sentinel.ErrConflict)

		unchanged, err := s.stores.Consents.Get(ctx, record.ID)
		s.Require().NoError(err)
		s.Equal("7 years", unchanged.DataRetentionPeriod)
	})

	s.Run("missing record distinguishable from stale", func() {
		ghost := record
		ghost.ID = domain.NewRecordID()
		s.ErrorIs(s.stores.Consents.SaveVersioned(ctx, ghost, 1), sentinel.ErrNotFound)
	})
}

func (s *PostgresStoreSuite) TestConsentQueries() {
	ctx := context.Background()
	u := s.seedUser()

	first := s.seedConsent(u.ID)
	second := s.seedConsent(u.ID)

	withdrawn := s.seedConsent(u.ID)
	withdrawn.Status = domain.StatusWithdrawn
	withdrawn.EncryptionKeyID = domain.KeyID("key-1")
	s.Require().NoError(s.stores.Consents.SaveVersioned(ctx, withdrawn, 1))

	referencing := s.seedConsent(u.ID)
	referencing.EncryptionKeyID = domain.KeyID("key-1")
	s.Require().NoError(s.stores.Consents.SaveVersioned(ctx, referencing, 1))

	s.Run("list by user ordered by creation", func() {
		records, err := s.stores.Consents.ListByUser(ctx, u.ID)
		s.Require().NoError(err)
		s.Require().Len(records, 4)
		s.Equal(first.ID, records[0].ID)
		s.Equal(second.ID, records[1].ID)
	})

	s.Run("count by status", func() {
		counts, err := s.stores.Consents.CountByStatus(ctx)
		s.Require().NoError(err)
		s.Equal(3, counts[domain.StatusPending])
		s.Equal(1, counts[domain.StatusWithdrawn])
	})

	s.Run("withdrawn records do not pin keys", func() {
		count, err := s.stores.Consents.CountActiveByKey(ctx, domain.KeyID("key-1"))
		s.Require().NoError(err)
		s.Equal(1, count)
	})
}

func (s *PostgresStoreSuite) TestAuditSequence() {
	ctx := context.Background()
	u := s.seedUser()
	record := s.seedConsent(u.ID)

	actions := []string{
		domain.AuditActionCreated,
		domain.AuditActionUpdated,
		domain.AuditActionStatusChanged,
		domain.AuditActionDeletionCompleted,
	}
	for i, action := range actions {
		entry, err := s.stores.Audit.Append(ctx, domain.AuditEntry{
			ID:        uuid.New(),
			RecordID:  record.ID,
			Action:    action,
			Actor:     "system",
			NewValues: map[string]string{"step": action},
			Timestamp: time.Now().UTC(),
		})
		s.Require().NoError(err)
		s.EqualValues(i+1, entry.Seq)
	}

	s.Run("history is ordered and gap-free", func() {
		entries, err := s.stores.Audit.ListByRecord(ctx, record.ID)
		s.Require().NoError(err)
		s.Require().Len(entries, 4)
		for i, entry := range entries {
			s.EqualValues(i+1, entry.Seq)
			s.Equal(actions[i], entry.Action)
		}
	})

	s.Run("resume from cursor", func() {
		entries, err := s.stores.Audit.ListAfter(ctx, record.ID, 2, 10)
		s.Require().NoError(err)
		s.Require().Len(entries, 2)
		s.EqualValues(3, entries[0].Seq)
	})

	s.Run("limit bounds the page", func() {
		entries, err := s.stores.Audit.ListAfter(ctx, record.ID, 0, 3)
		s.Require().NoError(err)
		s.Len(entries, 3)
	})
}

// TestAuditSequencesIsolatedPerRecord verifies concurrent appends to
// different records each start their own sequence. Appends to the same
// record are serialized by the services, never by this store.
func (s *PostgresStoreSuite) TestAuditSequencesIsolatedPerRecord() {
	ctx := context.Background()
	u := s.seedUser()

	const records = 10
	ids := make([]domain.RecordID, records)
	for i := range ids {
		ids[i] = s.seedConsent(u.ID).ID
	}

	var wg sync.WaitGroup
	errs := make(chan error, records)
	for _, id := range ids {
		wg.Add(1)
		go func(recordID domain.RecordID) {
			defer wg.Done()
			_, err := s.stores.Audit.Append(ctx, domain.AuditEntry{
				ID:        uuid.New(),
				RecordID:  recordID,
				Action:    domain.AuditActionCreated,
				Actor:     "system",
				Timestamp: time.Now().UTC(),
			})
			errs <- err
		}(id)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		s.NoError(err)
	}
	for _, id := range ids {
		entries, err := s.stores.Audit.ListByRecord(ctx, id)
		s.Require().NoError(err)
		s.Require().Len(entries, 1)
		s.EqualValues(1, entries[0].Seq)
	}
}

func (s *PostgresStoreSuite) TestWithdrawalRoundTrip() {
	ctx := context.Background()
	u := s.seedUser()
	record := s.seedConsent(u.ID)

	w := domain.WithdrawalRecord{
		ID:             domain.NewWithdrawalID(),
		RecordID:       record.ID,
		WithdrawnAt:    time.Now().UTC(),
		Reason:         "no longer consenting",
		Method:         domain.WithdrawalMethodUserRequest,
		DeletionStatus: domain.DeletionPending,
		VerifiedBy:     "system",
		CreatedAt:      time.Now().UTC(),
	}
	s.Require().NoError(s.stores.Withdrawals.Insert(ctx, w))

	active, err := s.stores.Withdrawals.FindActiveByRecord(ctx, record.ID)
	s.Require().NoError(err)
	s.Equal(w.ID, active.ID)
	s.Nil(active.DeletionCompletedAt)

	s.Run("completed deletion keeps the withdrawal active", func() {
		done := time.Now().UTC()
		active.DeletionStatus = domain.DeletionCompleted
		active.DeletionCompletedAt = &done
		s.Require().NoError(s.stores.Withdrawals.Update(ctx, active))

		got, err := s.stores.Withdrawals.Get(ctx, w.ID)
		s.Require().NoError(err)
		s.Equal(domain.DeletionCompleted, got.DeletionStatus)
		s.Require().NotNil(got.DeletionCompletedAt)
	})

	s.Run("failed deletion frees the record for retry", func() {
		active.DeletionStatus = domain.DeletionFailed
		s.Require().NoError(s.stores.Withdrawals.Update(ctx, active))

		_, err := s.stores.Withdrawals.FindActiveByRecord(ctx, record.ID)
		s.ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("unknown withdrawal", func() {
		_, err := s.stores.Withdrawals.Get(ctx, domain.NewWithdrawalID())
		s.ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *PostgresStoreSuite) TestKeyRotationLookup() {
	ctx := context.Background()

	v1 := domain.EncryptionKey{
		ID:        domain.NewKeyID(),
		KeyType:   "consent_payload",
		Algorithm: "XChaCha20-Poly1305",
		HandleRef: "handle-1",
		Version:   1,
		Active:    true,
		CreatedAt: time.Now().UTC(),
		CreatedBy: "system",
	}
	s.Require().NoError(s.stores.Keys.Insert(ctx, v1))

	found, err := s.stores.Keys.FindActiveByType(ctx, "consent_payload")
	s.Require().NoError(err)
	s.Equal(v1.ID, found.ID)

	rotated := time.Now().UTC()
	v1.Active = false
	v1.RotatedAt = &rotated
	s.Require().NoError(s.stores.Keys.Update(ctx, v1))

	v2 := v1
	v2.ID = domain.NewKeyID()
	v2.HandleRef = "handle-2"
	v2.Version = 2
	v2.Active = true
	v2.RotatedAt = nil
	s.Require().NoError(s.stores.Keys.Insert(ctx, v2))

	found, err = s.stores.Keys.FindActiveByType(ctx, "consent_payload")
	s.Require().NoError(err)
	s.Equal(v2.ID, found.ID)
	s.Equal(2, found.Version)

	s.Run("retired key still resolvable by id", func() {
		got, err := s.stores.Keys.Get(ctx, v1.ID)
		s.Require().NoError(err)
		s.False(got.Active)
		s.NotNil(got.RotatedAt)
	})

	s.Run("unknown type", func() {
		_, err := s.stores.Keys.FindActiveByType(ctx, "signing")
		s.ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *PostgresStoreSuite) TestComplianceChecksAppendOnly() {
	ctx := context.Background()
	u := s.seedUser()
	record := s.seedConsent(u.ID)

	for i := 0; i < 3; i++ {
		check := domain.ComplianceCheck{
			ID:        domain.NewCheckID(),
			RecordID:  record.ID,
			CheckType: "consent_verification",
			Standard:  "DPDPA 2023",
			Result:    i == 2,
			Issues:    []string{"digital signature is missing"},
			CheckedBy: "system",
			CheckedAt: time.Now().UTC().Add(time.Duration(i) * time.Millisecond),
		}
		if check.Result {
			check.Issues = nil
		}
		s.Require().NoError(s.stores.Compliance.Insert(ctx, check))
	}

	checks, err := s.stores.Compliance.ListByRecord(ctx, record.ID)
	s.Require().NoError(err)
	s.Require().Len(checks, 3)
	s.False(checks[0].Result)
	s.True(checks[2].Result)
	s.Empty(checks[2].Issues)
}

// TestUnitOfWorkAtomicity verifies a mutation and its audit entry commit or
// roll back together.
func (s *PostgresStoreSuite) TestUnitOfWorkAtomicity() {
	ctx := context.Background()
	u := s.seedUser()
	record := s.seedConsent(u.ID)

	s.Run("commit persists both writes", func() {
		err := s.tx.RunInTx(ctx, func(ctx context.Context, st storage.Stores) error {
			updated := record
			updated.Status = domain.StatusVerified
			updated.UpdatedAt = time.Now().UTC()
			if err := st.Consents.SaveVersioned(ctx, updated, 1); err != nil {
				return err
			}
			_, err := st.Audit.Append(ctx, domain.AuditEntry{
				ID:        uuid.New(),
				RecordID:  record.ID,
				Action:    domain.AuditActionStatusChanged,
				Actor:     "system",
				Timestamp: time.Now().UTC(),
			})
			return err
		})
		s.Require().NoError(err)

		got, err := s.stores.Consents.Get(ctx, record.ID)
		s.Require().NoError(err)
		s.Equal(domain.StatusVerified, got.Status)

		entries, err := s.stores.Audit.ListByRecord(ctx, record.ID)
		s.Require().NoError(err)
		s.Len(entries, 1)
	})

	s.Run("error rolls back both writes", func() {
		failed := errors.New("downstream failure")
		err := s.tx.RunInTx(ctx, func(ctx context.Context, st storage.Stores) error {
			updated := record
			updated.Status = domain.StatusRejected
			updated.UpdatedAt = time.Now().UTC()
			if err := st.Consents.SaveVersioned(ctx, updated, 2); err != nil {
				return err
			}
			if _, err := st.Audit.Append(ctx, domain.AuditEntry{
				ID:        uuid.New(),
				RecordID:  record.ID,
				Action:    domain.AuditActionStatusChanged,
				Actor:     "system",
				Timestamp: time.Now().UTC(),
			}); err != nil {
				return err
			}
			return failed
		})
		s.Require().ErrorIs(err, failed)

		got, err := s.stores.Consents.Get(ctx, record.ID)
		s.Require().NoError(err)
		s.Equal(domain.StatusVerified, got.Status)
		s.EqualValues(2, got.Version)

		entries, err := s.stores.Audit.ListByRecord(ctx, record.ID)
		s.Require().NoError(err)
		s.Len(entries, 1)
	})
}
