package compliance

import (
	"context"
	"io"
	"log/slog"
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

// storeResolver resolves keys straight from the key store, standing in for
// the key manager in these tests.
type storeResolver struct {
	keys storage.KeyStore
}

func (r storeResolver) Resolve(ctx context.Context, id domain.KeyID) (domain.EncryptionKey, error) {
	return r.keys.Get(ctx, id)
}

type EngineSuite struct {
	suite.Suite
	ctx      context.Context
	stores   storage.Stores
	recorder *audit.Recorder
	engine   *Engine
	key      domain.EncryptionKey
}

func TestEngineSuite(t *testing.T) {
	suite.Run(t, new(EngineSuite))
}

func (s *EngineSuite) SetupTest() {
	s.ctx = context.Background()
	s.stores = memory.NewStores()
	s.recorder = audit.NewRecorder(s.stores.Audit)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := metrics.NewWith(prometheus.NewRegistry())
	s.engine = NewEngine(memory.NewTx(s.stores), s.stores, DefaultRegistry(),
		storeResolver{keys: s.stores.Keys}, s.recorder, logger, m)

	s.key = domain.EncryptionKey{
		ID:        domain.NewKeyID(),
		KeyType:   "consent_payload",
		Algorithm: "XChaCha20-Poly1305",
		Version:   1,
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}
	s.Require().NoError(s.stores.Keys.Insert(s.ctx, s.key))
}

func (s *EngineSuite) compliantRecord() domain.ConsentRecord {
	record := domain.ConsentRecord{
		ID:                  domain.NewRecordID(),
		UserID:              domain.NewUserID(),
		DocumentType:        "privacy_policy",
		UserConsent:         true,
		ConsentTimestamp:    time.Now().UTC(),
		DataUsagePurpose:    "identity verification",
		DataRetentionPeriod: "5 years",
		RightToWithdraw:     true,
		Jurisdiction:        "India",
		DigitalSignature:    "sig-bytes",
		SignatureAlgorithm:  "SHA-256",
		Status:              domain.StatusPending,
		Version:             1,
		CreatedAt:           time.Now().UTC(),
		UpdatedAt:           time.Now().UTC(),
	}
	s.Require().NoError(s.stores.Consents.Insert(s.ctx, record))
	return record
}

func (s *EngineSuite) TestEvaluate() {
	s.Run("compliant record passes DPDPA 2023", func() {
		record := s.compliantRecord()

		ev, err := s.engine.Evaluate(s.ctx, record.ID, StandardDPDPA, "")
		s.Require().NoError(err)

		s.True(ev.Check.Result)
		s.Empty(ev.Check.Issues)
		s.Empty(ev.Check.Remediation)
		s.Equal(CheckTypeVerification, ev.Check.CheckType)
		s.Equal(StandardDPDPA, ev.Check.Standard)
		s.Equal("system", ev.Check.CheckedBy)
		for name, passed := range ev.Rules {
			s.True(passed, name)
		}
	})

	s.Run("violations collect issues across rules", func() {
		record := s.compliantRecord()
		record.UserConsent = false
		record.RightToWithdraw = false
		record.DataRetentionPeriod = "forever"
		s.Require().NoError(s.stores.Consents.SaveVersioned(s.ctx, record, 1))

		ev, err := s.engine.Evaluate(s.ctx, record.ID, StandardDPDPA, "auditor-3")
		s.Require().NoError(err)

		s.False(ev.Check.Result)
		s.Len(ev.Check.Issues, 3)
		s.NotEmpty(ev.Check.Remediation)
		s.Equal("auditor-3", ev.Check.CheckedBy)
		s.False(ev.Rules["affirmative_consent"])
		s.False(ev.Rules["right_to_withdraw"])
		s.False(ev.Rules["retention_plausible"])
		s.True(ev.Rules["required_fields"])
	})

	s.Run("evaluation never changes record state", func() {
		record := s.compliantRecord()
		record.UserConsent = false
		s.Require().NoError(s.stores.Consents.SaveVersioned(s.ctx, record, 1))

		_, err := s.engine.Evaluate(s.ctx, record.ID, StandardDPDPA, "")
		s.Require().NoError(err)

		found, err := s.stores.Consents.Get(s.ctx, record.ID)
		s.Require().NoError(err)
		s.Equal(domain.StatusPending, found.Status)
	})

	s.Run("each run appends a check and an audit entry", func() {
		record := s.compliantRecord()

		for i := 0; i < 3; i++ {
			_, err := s.engine.Evaluate(s.ctx, record.ID, StandardDPDPA, "")
			s.Require().NoError(err)
		}

		checks, err := s.engine.History(s.ctx, record.ID)
		s.Require().NoError(err)
		s.Len(checks, 3)

		entries, err := s.recorder.History(s.ctx, record.ID)
		s.Require().NoError(err)
		s.Require().Len(entries, 3)
		for _, entry := range entries {
			s.Equal(domain.AuditActionComplianceChecked, entry.Action)
			s.Equal(StandardDPDPA, entry.NewValues["compliance_standard"])
		}
	})

	s.Run("GDPR mandates an encrypted payload", func() {
		record := s.compliantRecord()

		ev, err := s.engine.Evaluate(s.ctx, record.ID, StandardGDPR, "")
		s.Require().NoError(err)
		s.False(ev.Check.Result)
		s.False(ev.Rules["encryption"])
	})

	s.Run("encrypted payload passes GDPR when key resolves", func() {
		record := s.compliantRecord()
		record.EncryptedPayload = "ciphertext"
		record.EncryptionKeyID = s.key.ID
		s.Require().NoError(s.stores.Consents.SaveVersioned(s.ctx, record, 1))

		ev, err := s.engine.Evaluate(s.ctx, record.ID, StandardGDPR, "")
		s.Require().NoError(err)
		s.True(ev.Check.Result)
	})

	s.Run("unresolvable key fails the encryption rule", func() {
		record := s.compliantRecord()
		record.EncryptedPayload = "ciphertext"
		record.EncryptionKeyID = domain.KeyID("missing")
		s.Require().NoError(s.stores.Consents.SaveVersioned(s.ctx, record, 1))

		ev, err := s.engine.Evaluate(s.ctx, record.ID, StandardDPDPA, "")
		s.Require().NoError(err)
		s.False(ev.Check.Result)
		s.False(ev.Rules["encryption"])
	})

	s.Run("unknown standard is a compliance_evaluation error", func() {
		record := s.compliantRecord()
		_, err := s.engine.Evaluate(s.ctx, record.ID, "CCPA", "")
		s.True(pkgerrors.HasCode(err, pkgerrors.CodeComplianceEvaluation))
	})

	s.Run("unknown record is not_found", func() {
		_, err := s.engine.Evaluate(s.ctx, domain.NewRecordID(), StandardDPDPA, "")
		s.True(pkgerrors.HasCode(err, pkgerrors.CodeNotFound))
	})
}

func TestRetentionPlausible(t *testing.T) {
	rule := retentionPlausible()
	cases := []struct {
		retention string
		ok        bool
	}{
		{"5 years", true},
		{"90 days", true},
		{"6 months", true},
		{"1 year", true},
		{"100 years", true},
		{"101 years", false},
		{"40000 days", false},
		{"forever", false},
		{"-5 years", false},
		{"", true}, // absence is required_fields' concern
	}
	for _, tc := range cases {
		record := domain.ConsentRecord{DataRetentionPeriod: tc.retention}
		issues := rule.Check(context.Background(), record, Env{})
		if tc.ok && len(issues) != 0 {
			t.Errorf("%q: unexpected issues %v", tc.retention, issues)
		}
		if !tc.ok && len(issues) == 0 {
			t.Errorf("%q: expected an issue", tc.retention)
		}
	}
}

func TestSignatureWhitelist(t *testing.T) {
	rule := signatureWhitelisted()

	record := domain.ConsentRecord{DigitalSignature: "sig", SignatureAlgorithm: "SHA-256"}
	if issues := rule.Check(context.Background(), record, Env{}); len(issues) != 0 {
		t.Fatalf("unexpected issues %v", issues)
	}

	record.SignatureAlgorithm = "MD5"
	if issues := rule.Check(context.Background(), record, Env{}); len(issues) == 0 {
		t.Fatal("expected MD5 to be rejected")
	}

	record.DigitalSignature = ""
	if issues := rule.Check(context.Background(), record, Env{}); len(issues) == 0 {
		t.Fatal("expected missing signature to be rejected")
	}
}

func TestRegistry(t *testing.T) {
	registry := DefaultRegistry()

	if _, ok := registry.Get(StandardDPDPA); !ok {
		t.Fatal("DPDPA 2023 should be registered")
	}
	if _, ok := registry.Get(StandardGDPR); !ok {
		t.Fatal("GDPR should be registered")
	}
	if _, ok := registry.Get("CCPA"); ok {
		t.Fatal("CCPA should not be registered")
	}
	if got := len(registry.Standards()); got != 2 {
		t.Fatalf("expected 2 standards, got %d", got)
	}
}
