package ledger

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/suite"

	"assent/internal/audit"
	"assent/internal/domain"
	"assent/internal/platform/metrics"
	"assent/internal/storage"
	"assent/internal/storage/memory"
	pkgerrors "assent/pkg/domain-errors"
)

type LedgerServiceSuite struct {
	suite.Suite
	ctx      context.Context
	stores   storage.Stores
	recorder *audit.Recorder
	svc      *Service
	user     domain.User
	key      domain.EncryptionKey
}

func TestLedgerServiceSuite(t *testing.T) {
	suite.Run(t, new(LedgerServiceSuite))
}

func (s *LedgerServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.stores = memory.NewStores()
	s.recorder = audit.NewRecorder(s.stores.Audit)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := metrics.NewWith(prometheus.NewRegistry())
	s.svc = NewService(memory.NewTx(s.stores), s.stores, s.recorder, logger, m)

	s.user = domain.User{
		ID:        domain.NewUserID(),
		Email:     "asha@example.com",
		FullName:  "Asha Rao",
		Active:    true,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	s.Require().NoError(s.stores.Users.Insert(s.ctx, s.user))

	s.key = domain.EncryptionKey{
		ID:        domain.NewKeyID(),
		KeyType:   "consent_payload",
		Algorithm: "XChaCha20-Poly1305",
		HandleRef: "test-handle",
		Version:   1,
		Active:    true,
		CreatedAt: time.Now().UTC(),
		CreatedBy: "system",
	}
	s.Require().NoError(s.stores.Keys.Insert(s.ctx, s.key))
}

func (s *LedgerServiceSuite) validInput() CreateInput {
	return CreateInput{
		UserID:       s.user.ID,
		DocumentType: "privacy_policy",
		DocumentHash: "d2c1a3",
		Emotions: []domain.EmotionSignal{
			{Emotion: "calm", Confidence: 0.91},
		},
		VoiceSentiment:      "positive",
		VoiceConfidence:     0.8,
		UserConsent:         true,
		ConsentTimestamp:    time.Now().UTC(),
		ConsentDuration:     365 * 24 * time.Hour,
		DataUsagePurpose:    "identity verification",
		DataRetentionPeriod: "5 years",
		RightToWithdraw:     true,
		Jurisdiction:        "India",
		DigitalSignature:    "sig-bytes",
		SignatureAlgorithm:  "SHA-256",
	}
}

func (s *LedgerServiceSuite) TestCreate() {
	s.Run("new record starts pending with one created entry", func() {
		record, err := s.svc.Create(s.ctx, s.validInput())
		s.Require().NoError(err)

		s.Equal(domain.StatusPending, record.Status)
		s.EqualValues(1, record.Version)
		s.False(record.ID.IsNil())

		history, err := s.recorder.History(s.ctx, record.ID)
		s.Require().NoError(err)
		s.Require().Len(history, 1)
		s.Equal(domain.AuditActionCreated, history[0].Action)
		s.EqualValues(1, history[0].Seq)
		s.Equal("system", history[0].Actor)
		s.Equal("pending", history[0].NewValues["verification_status"])
	})

	s.Run("dominant emotion wins by confidence, earliest on tie", func() {
		in := s.validInput()
		in.Emotions = []domain.EmotionSignal{
			{Emotion: "anxious", Confidence: 0.60},
			{Emotion: "calm", Confidence: 0.90},
			{Emotion: "content", Confidence: 0.90},
		}
		record, err := s.svc.Create(s.ctx, in)
		s.Require().NoError(err)
		s.Equal("calm", record.DetectedEmotion)
		s.InDelta(0.90, record.EmotionConfidence, 1e-9)
	})

	s.Run("defaults signature algorithm when a signature is present", func() {
		in := s.validInput()
		in.SignatureAlgorithm = ""
		record, err := s.svc.Create(s.ctx, in)
		s.Require().NoError(err)
		s.Equal(DefaultSignatureAlgorithm, record.SignatureAlgorithm)
	})

	s.Run("rejects missing required fields", func() {
		in := s.validInput()
		in.DocumentType = ""
		_, err := s.svc.Create(s.ctx, in)
		s.True(pkgerrors.HasCode(err, pkgerrors.CodeValidation))
	})

	s.Run("rejects out-of-range confidence", func() {
		in := s.validInput()
		in.Emotions = []domain.EmotionSignal{{Emotion: "calm", Confidence: 1.5}}
		_, err := s.svc.Create(s.ctx, in)
		s.True(pkgerrors.HasCode(err, pkgerrors.CodeValidation))
	})

	s.Run("rejects payload without key reference", func() {
		in := s.validInput()
		in.EncryptedPayload = "ciphertext"
		in.EncryptionKeyID = ""
		_, err := s.svc.Create(s.ctx, in)
		s.True(pkgerrors.HasCode(err, pkgerrors.CodeValidation))
	})

	s.Run("rejects unknown encryption key", func() {
		in := s.validInput()
		in.EncryptedPayload = "ciphertext"
		in.EncryptionKeyID = domain.KeyID("no-such-key")
		_, err := s.svc.Create(s.ctx, in)
		s.True(pkgerrors.HasCode(err, pkgerrors.CodeKeyNotFound))
	})

	s.Run("accepts a known encryption key", func() {
		in := s.validInput()
		in.EncryptedPayload = "ciphertext"
		in.EncryptionKeyID = s.key.ID
		record, err := s.svc.Create(s.ctx, in)
		s.Require().NoError(err)
		s.Equal(s.key.ID, record.EncryptionKeyID)
	})

	s.Run("rejects unknown user", func() {
		in := s.validInput()
		in.UserID = domain.NewUserID()
		_, err := s.svc.Create(s.ctx, in)
		s.True(pkgerrors.HasCode(err, pkgerrors.CodeNotFound))
	})

	s.Run("rejects deactivated user", func() {
		inactive := s.user
		inactive.ID = domain.NewUserID()
		inactive.Email = "gone@example.com"
		inactive.Active = false
		s.Require().NoError(s.stores.Users.Insert(s.ctx, inactive))

		in := s.validInput()
		in.UserID = inactive.ID
		_, err := s.svc.Create(s.ctx, in)
		s.True(pkgerrors.HasCode(err, pkgerrors.CodeValidation))
	})
}

func (s *LedgerServiceSuite) TestReads() {
	record, err := s.svc.Create(s.ctx, s.validInput())
	s.Require().NoError(err)

	s.Run("get returns the record", func() {
		found, err := s.svc.Get(s.ctx, record.ID)
		s.Require().NoError(err)
		s.Equal(record.ID, found.ID)
	})

	s.Run("get of unknown id is not_found", func() {
		_, err := s.svc.Get(s.ctx, domain.NewRecordID())
		s.True(pkgerrors.HasCode(err, pkgerrors.CodeNotFound))
	})

	s.Run("list by user returns records oldest first", func() {
		second, err := s.svc.Create(s.ctx, s.validInput())
		s.Require().NoError(err)

		records, err := s.svc.ListByUser(s.ctx, s.user.ID)
		s.Require().NoError(err)
		s.Require().Len(records, 2)
		s.Equal(record.ID, records[0].ID)
		s.Equal(second.ID, records[1].ID)
	})

	s.Run("list for user without records is empty", func() {
		records, err := s.svc.ListByUser(s.ctx, domain.NewUserID())
		s.Require().NoError(err)
		s.Empty(records)
	})

	s.Run("count by status", func() {
		counts, err := s.svc.CountByStatus(s.ctx)
		s.Require().NoError(err)
		s.GreaterOrEqual(counts[domain.StatusPending], 1)
	})
}

func (s *LedgerServiceSuite) TestTransition() {
	s.Run("pending to verified succeeds and audits the edge", func() {
		record, err := s.svc.Create(s.ctx, s.validInput())
		s.Require().NoError(err)

		updated, err := s.svc.Transition(s.ctx, record.ID, domain.StatusVerified, "auditor-7", "manual review")
		s.Require().NoError(err)
		s.Equal(domain.StatusVerified, updated.Status)
		s.EqualValues(2, updated.Version)

		history, err := s.recorder.History(s.ctx, record.ID)
		s.Require().NoError(err)
		s.Require().Len(history, 2)
		last := history[1]
		s.Equal(domain.AuditActionStatusChanged, last.Action)
		s.Equal([]string{"verification_status"}, last.ChangedFields)
		s.Equal("pending", last.OldValues["verification_status"])
		s.Equal("verified", last.NewValues["verification_status"])
		s.Equal("auditor-7", last.Actor)
		s.Equal("manual review", last.Reason)
	})

	s.Run("rejected is absorbing", func() {
		record, err := s.svc.Create(s.ctx, s.validInput())
		s.Require().NoError(err)
		_, err = s.svc.Transition(s.ctx, record.ID, domain.StatusRejected, "", "")
		s.Require().NoError(err)

		for _, target := range []domain.VerificationStatus{
			domain.StatusPending, domain.StatusVerified, domain.StatusWithdrawn,
		} {
			_, err := s.svc.Transition(s.ctx, record.ID, target, "", "")
			s.True(pkgerrors.HasCode(err, pkgerrors.CodeIllegalTransition), string(target))
		}
	})

	s.Run("unknown status is a validation error", func() {
		record, err := s.svc.Create(s.ctx, s.validInput())
		s.Require().NoError(err)
		_, err = s.svc.Transition(s.ctx, record.ID, "approved", "", "")
		s.True(pkgerrors.HasCode(err, pkgerrors.CodeValidation))
	})

	s.Run("failed transition leaves no audit trace", func() {
		record, err := s.svc.Create(s.ctx, s.validInput())
		s.Require().NoError(err)
		_, err = s.svc.Transition(s.ctx, record.ID, domain.StatusVerified, "", "")
		s.Require().NoError(err)

		_, err = s.svc.Transition(s.ctx, record.ID, domain.StatusRejected, "", "")
		s.True(pkgerrors.HasCode(err, pkgerrors.CodeIllegalTransition))

		history, err := s.recorder.History(s.ctx, record.ID)
		s.Require().NoError(err)
		s.Len(history, 2) // created + the one successful transition
	})
}

func (s *LedgerServiceSuite) TestUpdate() {
	retention := "7 years"

	s.Run("pending record accepts updates and audits the diff", func() {
		record, err := s.svc.Create(s.ctx, s.validInput())
		s.Require().NoError(err)

		updated, err := s.svc.Update(s.ctx, record.ID, UpdateInput{DataRetentionPeriod: &retention}, "operator-1", "policy change")
		s.Require().NoError(err)
		s.Equal(retention, updated.DataRetentionPeriod)
		s.EqualValues(2, updated.Version)

		history, err := s.recorder.History(s.ctx, record.ID)
		s.Require().NoError(err)
		s.Require().Len(history, 2)
		s.Equal(domain.AuditActionUpdated, history[1].Action)
		s.Equal([]string{"data_retention_period"}, history[1].ChangedFields)
		s.Equal("5 years", history[1].OldValues["data_retention_period"])
		s.Equal(retention, history[1].NewValues["data_retention_period"])
	})

	s.Run("no-op update appends nothing", func() {
		record, err := s.svc.Create(s.ctx, s.validInput())
		s.Require().NoError(err)

		same := record.DataRetentionPeriod
		_, err = s.svc.Update(s.ctx, record.ID, UpdateInput{DataRetentionPeriod: &same}, "", "")
		s.Require().NoError(err)

		history, err := s.recorder.History(s.ctx, record.ID)
		s.Require().NoError(err)
		s.Len(history, 1)
	})

	s.Run("non-pending record is immutable", func() {
		record, err := s.svc.Create(s.ctx, s.validInput())
		s.Require().NoError(err)
		_, err = s.svc.Transition(s.ctx, record.ID, domain.StatusVerified, "", "")
		s.Require().NoError(err)

		_, err = s.svc.Update(s.ctx, record.ID, UpdateInput{DataRetentionPeriod: &retention}, "", "")
		s.True(pkgerrors.HasCode(err, pkgerrors.CodeRecordImmutable))
	})

	s.Run("invalid update leaves record and history untouched", func() {
		record, err := s.svc.Create(s.ctx, s.validInput())
		s.Require().NoError(err)

		bad := 1.7
		_, err = s.svc.Update(s.ctx, record.ID, UpdateInput{EmotionConfidence: &bad}, "", "")
		s.True(pkgerrors.HasCode(err, pkgerrors.CodeValidation))

		found, err := s.svc.Get(s.ctx, record.ID)
		s.Require().NoError(err)
		s.Equal(record.EmotionConfidence, found.EmotionConfidence)

		history, err := s.recorder.History(s.ctx, record.ID)
		s.Require().NoError(err)
		s.Len(history, 1)
	})
}

// barrierConsents forces the first two reads to observe the same version
// before either writer proceeds.
type barrierConsents struct {
	storage.ConsentStore
	remaining int32
	barrier   *sync.WaitGroup
}

func (b *barrierConsents) Get(ctx context.Context, id domain.RecordID) (domain.ConsentRecord, error) {
	if atomic.AddInt32(&b.remaining, -1) >= 0 {
		b.barrier.Done()
		b.barrier.Wait()
	}
	return b.ConsentStore.Get(ctx, id)
}

func (s *LedgerServiceSuite) TestConcurrentTransitions() {
	record, err := s.svc.Create(s.ctx, s.validInput())
	s.Require().NoError(err)

	barrier := &sync.WaitGroup{}
	barrier.Add(2)
	gated := s.stores
	gated.Consents = &barrierConsents{ConsentStore: s.stores.Consents, remaining: 2, barrier: barrier}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := metrics.NewWith(prometheus.NewRegistry())
	svc := NewService(memory.NewTx(gated), gated, audit.NewRecorder(gated.Audit), logger, m)

	errs := make(chan error, 2)
	var wg sync.WaitGroup
	for _, target := range []domain.VerificationStatus{domain.StatusVerified, domain.StatusRejected} {
		wg.Add(1)
		go func(target domain.VerificationStatus) {
			defer wg.Done()
			_, err := svc.Transition(s.ctx, record.ID, target, "", "")
			errs <- err
		}(target)
	}
	wg.Wait()
	close(errs)

	var succeeded, conflicted int
	for err := range errs {
		switch {
		case err == nil:
			succeeded++
		case pkgerrors.HasCode(err, pkgerrors.CodeConcurrentModification):
			conflicted++
		default:
			s.Failf("unexpected error", "%v", err)
		}
	}
	s.Equal(1, succeeded)
	s.Equal(1, conflicted)

	// exactly one transition landed
	history, err := s.recorder.History(s.ctx, record.ID)
	s.Require().NoError(err)
	s.Len(history, 2)

	found, err := s.svc.Get(s.ctx, record.ID)
	s.Require().NoError(err)
	s.EqualValues(2, found.Version)
	s.True(found.Status == domain.StatusVerified || found.Status == domain.StatusRejected)
}

func TestDominantEmotionEmptyInput(t *testing.T) {
	signal := DominantEmotion(nil)
	if signal.Emotion != "" || signal.Confidence != 0 {
		t.Fatalf("expected zero signal, got %+v", signal)
	}
}
