// Package user is the directory of data subjects consent records belong to.
package user

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"assent/internal/domain"
	"assent/internal/storage"
	pkgerrors "assent/pkg/domain-errors"
	"assent/pkg/platform/sentinel"
)

type Service struct {
	tx     storage.Tx
	stores storage.Stores
	logger *slog.Logger
	now    func() time.Time
}

func NewService(tx storage.Tx, stores storage.Stores, logger *slog.Logger) *Service {
	return &Service{
		tx:     tx,
		stores: stores,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// RegisterInput carries the fields for a new data subject.
type RegisterInput struct {
	Email       string
	FullName    string
	PhoneNumber string
	Address     string
}

// Register creates a user. Email uniqueness is case-insensitive.
func (s *Service) Register(ctx context.Context, in RegisterInput) (domain.User, error) {
	email := strings.TrimSpace(strings.ToLower(in.Email))
	if email == "" || !strings.Contains(email, "@") {
		return domain.User{}, pkgerrors.New(pkgerrors.CodeValidation, "a valid email is required")
	}
	if strings.TrimSpace(in.FullName) == "" {
		return domain.User{}, pkgerrors.New(pkgerrors.CodeValidation, "full name is required")
	}

	now := s.now()
	u := domain.User{
		ID:          domain.NewUserID(),
		Email:       email,
		FullName:    in.FullName,
		PhoneNumber: in.PhoneNumber,
		Address:     in.Address,
		Active:      true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	ctx = storage.WithMutationKey(ctx, "user:"+email)
	err := s.tx.RunInTx(ctx, func(ctx context.Context, st storage.Stores) error {
		if err := st.Users.Insert(ctx, u); err != nil {
			if errors.Is(err, sentinel.ErrDuplicate) {
				return pkgerrors.Newf(pkgerrors.CodeConflict, "a user with email %s already exists", email)
			}
			return pkgerrors.Wrap(err, pkgerrors.CodeUnavailable, "persist user")
		}
		return nil
	})
	if err != nil {
		return domain.User{}, err
	}

	s.logger.InfoContext(ctx, "user registered", "user_id", u.ID.String())
	return u, nil
}

func (s *Service) Get(ctx context.Context, id domain.UserID) (domain.User, error) {
	u, err := s.stores.Users.Get(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return domain.User{}, pkgerrors.New(pkgerrors.CodeNotFound, "user not found").WithEntity(id.String())
		}
		return domain.User{}, pkgerrors.Wrap(err, pkgerrors.CodeUnavailable, "read user")
	}
	return u, nil
}

// Deactivate soft-deletes a user. Consent records and their audit history
// are retained untouched; the ledger is the compliance evidence.
func (s *Service) Deactivate(ctx context.Context, id domain.UserID) (domain.User, error) {
	var u domain.User
	ctx = storage.WithMutationKey(ctx, "user:"+id.String())
	err := s.tx.RunInTx(ctx, func(ctx context.Context, st storage.Stores) error {
		var err error
		u, err = st.Users.Get(ctx, id)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "user not found").WithEntity(id.String())
			}
			return pkgerrors.Wrap(err, pkgerrors.CodeUnavailable, "read user")
		}
		if !u.Active {
			return nil
		}
		u.Active = false
		u.UpdatedAt = s.now()
		if err := st.Users.Update(ctx, u); err != nil {
			return pkgerrors.Wrap(err, pkgerrors.CodeUnavailable, "save user")
		}
		return nil
	})
	if err != nil {
		return domain.User{}, err
	}

	s.logger.InfoContext(ctx, "user deactivated", "user_id", id.String())
	return u, nil
}
