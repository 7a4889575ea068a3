package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"assent/internal/domain"
	"assent/pkg/platform/sentinel"
)

type ConsentStore struct {
	db *sql.DB
}

func NewConsentStore(db *sql.DB) *ConsentStore {
	return &ConsentStore{db: db}
}

const consentColumns = `id, user_id, document_type, document_hash, detected_emotion,
	emotion_confidence, voice_sentiment, voice_confidence, facial_landmarks,
	user_consent, consent_timestamp, consent_duration_seconds, data_usage_purpose,
	data_retention_period, right_to_withdraw, jurisdiction, client_ip, device_info,
	user_agent, encrypted_payload, encryption_key_id, digital_signature,
	signature_algorithm, verification_status, version, created_at, updated_at`

func (s *ConsentStore) Insert(ctx context.Context, record domain.ConsentRecord) error {
	query := `
		INSERT INTO consent_records (` + consentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
			$15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27)
	`
	_, err := execer(ctx, s.db).ExecContext(ctx, query, consentArgs(record)...)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return sentinel.ErrDuplicate
		}
		return fmt.Errorf("insert consent record: %w", err)
	}
	return nil
}

func (s *ConsentStore) Get(ctx context.Context, id domain.RecordID) (domain.ConsentRecord, error) {
	query := `SELECT ` + consentColumns + ` FROM consent_records WHERE id = $1`
	row := execer(ctx, s.db).QueryRowContext(ctx, query, uuid.UUID(id))
	record, err := scanConsent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ConsentRecord{}, sentinel.ErrNotFound
	}
	if err != nil {
		return domain.ConsentRecord{}, fmt.Errorf("get consent record: %w", err)
	}
	return record, nil
}

func (s *ConsentStore) ListByUser(ctx context.Context, userID domain.UserID) ([]domain.ConsentRecord, error) {
	query := `SELECT ` + consentColumns + ` FROM consent_records WHERE user_id = $1 ORDER BY created_at`
	rows, err := execer(ctx, s.db).QueryContext(ctx, query, uuid.UUID(userID))
	if err != nil {
		return nil, fmt.Errorf("list consent records: %w", err)
	}
	defer rows.Close()

	var records []domain.ConsentRecord
	for rows.Next() {
		record, err := scanConsent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan consent record: %w", err)
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

func (s *ConsentStore) SaveVersioned(ctx context.Context, record domain.ConsentRecord, expectedVersion int64) error {
	query := `
		UPDATE consent_records SET
			document_type = $2, document_hash = $3, detected_emotion = $4,
			emotion_confidence = $5, voice_sentiment = $6, voice_confidence = $7,
			facial_landmarks = $8, consent_duration_seconds = $9,
			data_usage_purpose = $10, data_retention_period = $11,
			right_to_withdraw = $12, jurisdiction = $13, encrypted_payload = $14,
			encryption_key_id = $15, digital_signature = $16,
			signature_algorithm = $17, verification_status = $18,
			version = version + 1, updated_at = $19
		WHERE id = $1 AND version = $20
	`
	res, err := execer(ctx, s.db).ExecContext(ctx, query,
		uuid.UUID(record.ID),
		record.DocumentType,
		record.DocumentHash,
		record.DetectedEmotion,
		record.EmotionConfidence,
		record.VoiceSentiment,
		record.VoiceConfidence,
		nullableJSON(record.FacialLandmarks),
		int64(record.ConsentDuration/time.Second),
		record.DataUsagePurpose,
		record.DataRetentionPeriod,
		record.RightToWithdraw,
		record.Jurisdiction,
		record.EncryptedPayload,
		string(record.EncryptionKeyID),
		record.DigitalSignature,
		record.SignatureAlgorithm,
		string(record.Status),
		record.UpdatedAt,
		expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("save consent record: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("save consent record: %w", err)
	}
	if affected == 0 {
		// Distinguish a stale version from a missing row.
		if _, getErr := s.Get(ctx, record.ID); errors.Is(getErr, sentinel.ErrNotFound) {
			return sentinel.ErrNotFound
		}
		return sentinel.ErrConflict
	}
	return nil
}

func (s *ConsentStore) CountByStatus(ctx context.Context) (map[domain.VerificationStatus]int, error) {
	query := `SELECT verification_status, COUNT(*) FROM consent_records GROUP BY verification_status`
	rows, err := execer(ctx, s.db).QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("count by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.VerificationStatus]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		counts[domain.VerificationStatus(status)] = count
	}
	return counts, rows.Err()
}

func (s *ConsentStore) CountActiveByKey(ctx context.Context, keyID domain.KeyID) (int, error) {
	query := `
		SELECT COUNT(*) FROM consent_records
		WHERE encryption_key_id = $1 AND verification_status <> 'withdrawn'
	`
	var count int
	err := execer(ctx, s.db).QueryRowContext(ctx, query, string(keyID)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count records by key: %w", err)
	}
	return count, nil
}

func consentArgs(record domain.ConsentRecord) []any {
	return []any{
		uuid.UUID(record.ID),
		uuid.UUID(record.UserID),
		record.DocumentType,
		record.DocumentHash,
		record.DetectedEmotion,
		record.EmotionConfidence,
		record.VoiceSentiment,
		record.VoiceConfidence,
		nullableJSON(record.FacialLandmarks),
		record.UserConsent,
		record.ConsentTimestamp,
		int64(record.ConsentDuration / time.Second),
		record.DataUsagePurpose,
		record.DataRetentionPeriod,
		record.RightToWithdraw,
		record.Jurisdiction,
		record.Request.ClientIP,
		record.Request.DeviceInfo,
		record.Request.UserAgent,
		record.EncryptedPayload,
		string(record.EncryptionKeyID),
		record.DigitalSignature,
		record.SignatureAlgorithm,
		string(record.Status),
		record.Version,
		record.CreatedAt,
		record.UpdatedAt,
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConsent(row rowScanner) (domain.ConsentRecord, error) {
	var (
		record          domain.ConsentRecord
		recordID        uuid.UUID
		userID          uuid.UUID
		landmarks       []byte
		durationSeconds int64
		keyID           string
		status          string
	)
	err := row.Scan(
		&recordID,
		&userID,
		&record.DocumentType,
		&record.DocumentHash,
		&record.DetectedEmotion,
		&record.EmotionConfidence,
		&record.VoiceSentiment,
		&record.VoiceConfidence,
		&landmarks,
		&record.UserConsent,
		&record.ConsentTimestamp,
		&durationSeconds,
		&record.DataUsagePurpose,
		&record.DataRetentionPeriod,
		&record.RightToWithdraw,
		&record.Jurisdiction,
		&record.Request.ClientIP,
		&record.Request.DeviceInfo,
		&record.Request.UserAgent,
		&record.EncryptedPayload,
		&keyID,
		&record.DigitalSignature,
		&record.SignatureAlgorithm,
		&status,
		&record.Version,
		&record.CreatedAt,
		&record.UpdatedAt,
	)
	if err != nil {
		return domain.ConsentRecord{}, err
	}
	record.ID = domain.RecordID(recordID)
	record.UserID = domain.UserID(userID)
	record.FacialLandmarks = landmarks
	record.ConsentDuration = time.Duration(durationSeconds) * time.Second
	record.EncryptionKeyID = domain.KeyID(keyID)
	record.Status = domain.VerificationStatus(status)
	return record, nil
}

func nullableJSON(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return raw
}
