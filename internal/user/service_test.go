package user

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/suite"

	"assent/internal/domain"
	"assent/internal/storage"
	"assent/internal/storage/memory"
	pkgerrors "assent/pkg/domain-errors"
)

type UserServiceSuite struct {
	suite.Suite
	ctx    context.Context
	stores storage.Stores
	svc    *Service
}

func TestUserServiceSuite(t *testing.T) {
	suite.Run(t, new(UserServiceSuite))
}

func (s *UserServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.stores = memory.NewStores()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.svc = NewService(memory.NewTx(s.stores), s.stores, logger)
}

func (s *UserServiceSuite) TestRegister() {
	s.Run("registers with normalized email", func() {
		u, err := s.svc.Register(s.ctx, RegisterInput{Email: "  Asha@Example.COM ", FullName: "Asha Rao"})
		s.Require().NoError(err)
		s.Equal("asha@example.com", u.Email)
		s.True(u.Active)
		s.False(u.ID.IsNil())
	})

	s.Run("duplicate email is a conflict", func() {
		_, err := s.svc.Register(s.ctx, RegisterInput{Email: "ravi@example.com", FullName: "Ravi Menon"})
		s.Require().NoError(err)

		_, err = s.svc.Register(s.ctx, RegisterInput{Email: "RAVI@example.com", FullName: "Other Ravi"})
		s.True(pkgerrors.HasCode(err, pkgerrors.CodeConflict))
	})

	s.Run("rejects invalid input", func() {
		_, err := s.svc.Register(s.ctx, RegisterInput{Email: "not-an-email", FullName: "X"})
		s.True(pkgerrors.HasCode(err, pkgerrors.CodeValidation))

		_, err = s.svc.Register(s.ctx, RegisterInput{Email: "ok@example.com", FullName: "  "})
		s.True(pkgerrors.HasCode(err, pkgerrors.CodeValidation))
	})
}

func (s *UserServiceSuite) TestDeactivate() {
	s.Run("soft-deletes without touching consent records", func() {
		u, err := s.svc.Register(s.ctx, RegisterInput{Email: "asha@example.com", FullName: "Asha Rao"})
		s.Require().NoError(err)

		record := domain.ConsentRecord{
			ID:      domain.NewRecordID(),
			UserID:  u.ID,
			Status:  domain.StatusPending,
			Version: 1,
		}
		s.Require().NoError(s.stores.Consents.Insert(s.ctx, record))

		deactivated, err := s.svc.Deactivate(s.ctx, u.ID)
		s.Require().NoError(err)
		s.False(deactivated.Active)

		kept, err := s.stores.Consents.Get(s.ctx, record.ID)
		s.Require().NoError(err)
		s.Equal(domain.StatusPending, kept.Status)
	})

	s.Run("deactivating twice is a no-op", func() {
		u, err := s.svc.Register(s.ctx, RegisterInput{Email: "ravi@example.com", FullName: "Ravi Menon"})
		s.Require().NoError(err)

		_, err = s.svc.Deactivate(s.ctx, u.ID)
		s.Require().NoError(err)
		again, err := s.svc.Deactivate(s.ctx, u.ID)
		s.Require().NoError(err)
		s.False(again.Active)
	})

	s.Run("unknown user is not_found", func() {
		_, err := s.svc.Deactivate(s.ctx, domain.NewUserID())
		s.True(pkgerrors.HasCode(err, pkgerrors.CodeNotFound))
	})
}
