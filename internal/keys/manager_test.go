package keys

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/suite"

	"assent/internal/domain"
	"assent/internal/platform/metrics"
	"assent/internal/storage"
	"assent/internal/storage/memory"
	pkgerrors "assent/pkg/domain-errors"
)

type ManagerSuite struct {
	suite.Suite
	ctx     context.Context
	stores  storage.Stores
	manager *Manager
}

func TestManagerSuite(t *testing.T) {
	suite.Run(t, new(ManagerSuite))
}

func (s *ManagerSuite) SetupTest() {
	s.ctx = context.Background()
	s.stores = memory.NewStores()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := metrics.NewWith(prometheus.NewRegistry())
	s.manager = NewManager(memory.NewTx(s.stores), s.stores, nil, NewCrypter(), logger, m)
}

func (s *ManagerSuite) TestIssue() {
	s.Run("issues version 1 active", func() {
		key, err := s.manager.Issue(s.ctx, "consent_payload", "", "ops-1")
		s.Require().NoError(err)

		s.Equal(1, key.Version)
		s.True(key.Active)
		s.Equal(DefaultAlgorithm, key.Algorithm)
		s.Equal("ops-1", key.CreatedBy)
		s.NotEmpty(key.HandleRef)
	})

	s.Run("second active key of a type is a conflict", func() {
		_, err := s.manager.Issue(s.ctx, "signing", "", "")
		s.Require().NoError(err)

		_, err = s.manager.Issue(s.ctx, "signing", "", "")
		s.True(pkgerrors.HasCode(err, pkgerrors.CodeConflict))
	})

	s.Run("key type is required", func() {
		_, err := s.manager.Issue(s.ctx, "", "", "")
		s.True(pkgerrors.HasCode(err, pkgerrors.CodeValidation))
	})
}

func (s *ManagerSuite) TestRotate() {
	s.Run("rotation preserves historical resolution", func() {
		v1, err := s.manager.Issue(s.ctx, "consent_payload", "", "")
		s.Require().NoError(err)

		v2, err := s.manager.Rotate(s.ctx, "consent_payload", "ops-2")
		s.Require().NoError(err)

		s.Equal(2, v2.Version)
		s.True(v2.Active)
		s.NotEqual(v1.ID, v2.ID)
		s.NotEqual(v1.HandleRef, v2.HandleRef)

		// the old key still resolves, inactive, with its rotation time set
		old, err := s.manager.Resolve(s.ctx, v1.ID)
		s.Require().NoError(err)
		s.False(old.Active)
		s.NotNil(old.RotatedAt)

		active, err := s.stores.Keys.FindActiveByType(s.ctx, "consent_payload")
		s.Require().NoError(err)
		s.Equal(v2.ID, active.ID)
	})

	s.Run("rotating a type with no active key is key_not_found", func() {
		_, err := s.manager.Rotate(s.ctx, "nonexistent", "")
		s.True(pkgerrors.HasCode(err, pkgerrors.CodeKeyNotFound))
	})
}

func (s *ManagerSuite) TestResolve() {
	s.Run("unknown id is key_not_found", func() {
		_, err := s.manager.Resolve(s.ctx, domain.KeyID("missing"))
		s.True(pkgerrors.HasCode(err, pkgerrors.CodeKeyNotFound))
	})
}

func (s *ManagerSuite) TestExpire() {
	s.Run("expires an unreferenced key", func() {
		key, err := s.manager.Issue(s.ctx, "consent_payload", "", "")
		s.Require().NoError(err)

		expired, err := s.manager.Expire(s.ctx, key.ID, "ops-1")
		s.Require().NoError(err)
		s.False(expired.Active)
		s.NotNil(expired.ExpiresAt)
	})

	s.Run("refuses while consent records reference the key", func() {
		key, err := s.manager.Issue(s.ctx, "consent_payload", "", "")
		s.Require().NoError(err)

		record := domain.ConsentRecord{
			ID:              domain.NewRecordID(),
			UserID:          domain.NewUserID(),
			EncryptionKeyID: key.ID,
			Status:          domain.StatusPending,
			Version:         1,
			CreatedAt:       time.Now().UTC(),
		}
		s.Require().NoError(s.stores.Consents.Insert(s.ctx, record))

		_, err = s.manager.Expire(s.ctx, key.ID, "")
		s.True(pkgerrors.HasCode(err, pkgerrors.CodeConflict))

		// a withdrawn record no longer blocks expiry
		record.Status = domain.StatusWithdrawn
		s.Require().NoError(s.stores.Consents.SaveVersioned(s.ctx, record, 1))

		_, err = s.manager.Expire(s.ctx, key.ID, "")
		s.Require().NoError(err)
	})

	s.Run("unknown key is key_not_found", func() {
		_, err := s.manager.Expire(s.ctx, domain.KeyID("missing"), "")
		s.True(pkgerrors.HasCode(err, pkgerrors.CodeKeyNotFound))
	})
}

func TestCrypterRoundTrip(t *testing.T) {
	crypter := NewCrypter()

	handle, err := crypter.Mint()
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if !crypter.Has(handle) {
		t.Fatal("minted handle should exist")
	}

	plaintext := []byte("facial landmark payload")
	aad := []byte("record-id")

	sealed, err := crypter.Seal(handle, plaintext, aad)
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	opened, err := crypter.Open(handle, sealed, aad)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if string(opened) != string(plaintext) {
		t.Fatalf("round trip mismatch: %q", opened)
	}

	if _, err := crypter.Open(handle, sealed, []byte("other-record")); err == nil {
		t.Fatal("expected AAD mismatch to fail")
	}
	if _, err := crypter.Seal("unknown-handle", plaintext, nil); err == nil {
		t.Fatal("expected unknown handle to fail")
	}
	if _, err := crypter.Open(handle, sealed[:3], nil); err == nil {
		t.Fatal("expected truncated ciphertext to fail")
	}
}
