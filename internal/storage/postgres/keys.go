package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"assent/internal/domain"
	"assent/pkg/platform/sentinel"
)

type KeyStore struct {
	db *sql.DB
}

func NewKeyStore(db *sql.DB) *KeyStore {
	return &KeyStore{db: db}
}

const keyColumns = `id, key_type, algorithm, handle_ref, key_version, is_active,
	created_at, rotated_at, expires_at, created_by`

func (s *KeyStore) Insert(ctx context.Context, key domain.EncryptionKey) error {
	query := `
		INSERT INTO encryption_keys (` + keyColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := execer(ctx, s.db).ExecContext(ctx, query,
		string(key.ID),
		key.KeyType,
		key.Algorithm,
		key.HandleRef,
		key.Version,
		key.Active,
		key.CreatedAt,
		key.RotatedAt,
		key.ExpiresAt,
		key.CreatedBy,
	)
	if err != nil {
		return fmt.Errorf("insert encryption key: %w", err)
	}
	return nil
}

func (s *KeyStore) Get(ctx context.Context, id domain.KeyID) (domain.EncryptionKey, error) {
	query := `SELECT ` + keyColumns + ` FROM encryption_keys WHERE id = $1`
	row := execer(ctx, s.db).QueryRowContext(ctx, query, string(id))
	key, err := scanKey(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.EncryptionKey{}, sentinel.ErrNotFound
	}
	if err != nil {
		return domain.EncryptionKey{}, fmt.Errorf("get encryption key: %w", err)
	}
	return key, nil
}

func (s *KeyStore) FindActiveByType(ctx context.Context, keyType string) (domain.EncryptionKey, error) {
	// FOR UPDATE serializes rotations of the same key type when called
	// inside a transaction.
	query := `
		SELECT ` + keyColumns + ` FROM encryption_keys
		WHERE key_type = $1 AND is_active
		ORDER BY key_version DESC
		LIMIT 1
		FOR UPDATE
	`
	row := execer(ctx, s.db).QueryRowContext(ctx, query, keyType)
	key, err := scanKey(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.EncryptionKey{}, sentinel.ErrNotFound
	}
	if err != nil {
		return domain.EncryptionKey{}, fmt.Errorf("find active key: %w", err)
	}
	return key, nil
}

func (s *KeyStore) Update(ctx context.Context, key domain.EncryptionKey) error {
	query := `
		UPDATE encryption_keys SET
			is_active = $2, rotated_at = $3, expires_at = $4
		WHERE id = $1
	`
	res, err := execer(ctx, s.db).ExecContext(ctx, query,
		string(key.ID), key.Active, key.RotatedAt, key.ExpiresAt)
	if err != nil {
		return fmt.Errorf("update encryption key: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update encryption key: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func scanKey(row rowScanner) (domain.EncryptionKey, error) {
	var (
		key       domain.EncryptionKey
		id        string
		rotatedAt sql.NullTime
		expiresAt sql.NullTime
	)
	err := row.Scan(&id, &key.KeyType, &key.Algorithm, &key.HandleRef, &key.Version,
		&key.Active, &key.CreatedAt, &rotatedAt, &expiresAt, &key.CreatedBy)
	if err != nil {
		return domain.EncryptionKey{}, err
	}
	key.ID = domain.KeyID(id)
	if rotatedAt.Valid {
		key.RotatedAt = &rotatedAt.Time
	}
	if expiresAt.Valid {
		key.ExpiresAt = &expiresAt.Time
	}
	return key, nil
}
