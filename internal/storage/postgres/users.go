package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"assent/internal/domain"
	"assent/pkg/platform/sentinel"
)

type UserStore struct {
	db *sql.DB
}

func NewUserStore(db *sql.DB) *UserStore {
	return &UserStore{db: db}
}

const userColumns = `id, email, full_name, phone_number, address, is_active, created_at, updated_at`

func (s *UserStore) Insert(ctx context.Context, user domain.User) error {
	query := `
		INSERT INTO users (` + userColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := execer(ctx, s.db).ExecContext(ctx, query,
		uuid.UUID(user.ID), user.Email, user.FullName, user.PhoneNumber,
		user.Address, user.Active, user.CreatedAt, user.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return sentinel.ErrDuplicate
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *UserStore) Get(ctx context.Context, id domain.UserID) (domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return s.one(ctx, query, uuid.UUID(id))
}

func (s *UserStore) FindByEmail(ctx context.Context, email string) (domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE lower(email) = lower($1)`
	return s.one(ctx, query, email)
}

func (s *UserStore) Update(ctx context.Context, user domain.User) error {
	query := `
		UPDATE users SET
			email = $2, full_name = $3, phone_number = $4, address = $5,
			is_active = $6, updated_at = $7
		WHERE id = $1
	`
	res, err := execer(ctx, s.db).ExecContext(ctx, query,
		uuid.UUID(user.ID), user.Email, user.FullName, user.PhoneNumber,
		user.Address, user.Active, user.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *UserStore) one(ctx context.Context, query string, arg any) (domain.User, error) {
	var (
		user domain.User
		id   uuid.UUID
	)
	err := execer(ctx, s.db).QueryRowContext(ctx, query, arg).Scan(
		&id, &user.Email, &user.FullName, &user.PhoneNumber,
		&user.Address, &user.Active, &user.CreatedAt, &user.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.User{}, sentinel.ErrNotFound
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("get user: %w", err)
	}
	user.ID = domain.UserID(id)
	return user, nil
}
