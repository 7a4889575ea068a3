package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"assent/internal/domain"
	"assent/pkg/platform/sentinel"
)

type WithdrawalStore struct {
	db *sql.DB
}

func NewWithdrawalStore(db *sql.DB) *WithdrawalStore {
	return &WithdrawalStore{db: db}
}

const withdrawalColumns = `id, consent_record_id, withdrawal_timestamp, withdrawal_reason,
	withdrawal_method, data_deletion_status, data_deletion_timestamp, verified_by, created_at`

func (s *WithdrawalStore) Insert(ctx context.Context, w domain.WithdrawalRecord) error {
	query := `
		INSERT INTO withdrawal_records (` + withdrawalColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := execer(ctx, s.db).ExecContext(ctx, query,
		uuid.UUID(w.ID),
		uuid.UUID(w.RecordID),
		w.WithdrawnAt,
		w.Reason,
		w.Method,
		string(w.DeletionStatus),
		w.DeletionCompletedAt,
		w.VerifiedBy,
		w.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert withdrawal record: %w", err)
	}
	return nil
}

func (s *WithdrawalStore) Get(ctx context.Context, id domain.WithdrawalID) (domain.WithdrawalRecord, error) {
	query := `SELECT ` + withdrawalColumns + ` FROM withdrawal_records WHERE id = $1`
	row := execer(ctx, s.db).QueryRowContext(ctx, query, uuid.UUID(id))
	w, err := scanWithdrawal(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.WithdrawalRecord{}, sentinel.ErrNotFound
	}
	if err != nil {
		return domain.WithdrawalRecord{}, fmt.Errorf("get withdrawal record: %w", err)
	}
	return w, nil
}

func (s *WithdrawalStore) FindActiveByRecord(ctx context.Context, recordID domain.RecordID) (domain.WithdrawalRecord, error) {
	query := `
		SELECT ` + withdrawalColumns + ` FROM withdrawal_records
		WHERE consent_record_id = $1 AND data_deletion_status <> 'failed'
		ORDER BY created_at DESC
		LIMIT 1
	`
	row := execer(ctx, s.db).QueryRowContext(ctx, query, uuid.UUID(recordID))
	w, err := scanWithdrawal(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.WithdrawalRecord{}, sentinel.ErrNotFound
	}
	if err != nil {
		return domain.WithdrawalRecord{}, fmt.Errorf("find active withdrawal: %w", err)
	}
	return w, nil
}

func (s *WithdrawalStore) Update(ctx context.Context, w domain.WithdrawalRecord) error {
	query := `
		UPDATE withdrawal_records SET
			data_deletion_status = $2, data_deletion_timestamp = $3, verified_by = $4
		WHERE id = $1
	`
	res, err := execer(ctx, s.db).ExecContext(ctx, query,
		uuid.UUID(w.ID), string(w.DeletionStatus), w.DeletionCompletedAt, w.VerifiedBy)
	if err != nil {
		return fmt.Errorf("update withdrawal record: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update withdrawal record: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func scanWithdrawal(row rowScanner) (domain.WithdrawalRecord, error) {
	var (
		w         domain.WithdrawalRecord
		id        uuid.UUID
		recordUID uuid.UUID
		status    string
		completed sql.NullTime
	)
	err := row.Scan(&id, &recordUID, &w.WithdrawnAt, &w.Reason, &w.Method,
		&status, &completed, &w.VerifiedBy, &w.CreatedAt)
	if err != nil {
		return domain.WithdrawalRecord{}, err
	}
	w.ID = domain.WithdrawalID(id)
	w.RecordID = domain.RecordID(recordUID)
	w.DeletionStatus = domain.DeletionStatus(status)
	if completed.Valid {
		w.DeletionCompletedAt = &completed.Time
	}
	return w, nil
}
