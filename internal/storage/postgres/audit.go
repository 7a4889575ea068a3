package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"assent/internal/domain"
)

// AuditStore is append-only by construction: no update or delete statement
// exists in this file. Seq is assigned inside the insert so the per-record
// history stays gap-free under the ledger's per-record serialization.
type AuditStore struct {
	db *sql.DB
}

func NewAuditStore(db *sql.DB) *AuditStore {
	return &AuditStore{db: db}
}

func (s *AuditStore) Append(ctx context.Context, entry domain.AuditEntry) (domain.AuditEntry, error) {
	oldValues, err := json.Marshal(valuesOrEmpty(entry.OldValues))
	if err != nil {
		return domain.AuditEntry{}, fmt.Errorf("marshal old values: %w", err)
	}
	newValues, err := json.Marshal(valuesOrEmpty(entry.NewValues))
	if err != nil {
		return domain.AuditEntry{}, fmt.Errorf("marshal new values: %w", err)
	}

	query := `
		INSERT INTO consent_audit_log
			(id, consent_record_id, seq, action, changed_fields, old_values, new_values, actor, reason, created_at)
		SELECT $1, $2, COALESCE(MAX(seq), 0) + 1, $3, $4, $5, $6, $7, $8, $9
		FROM consent_audit_log WHERE consent_record_id = $2
		RETURNING seq
	`
	err = execer(ctx, s.db).QueryRowContext(ctx, query,
		entry.ID,
		uuid.UUID(entry.RecordID),
		entry.Action,
		pq.Array(fieldsOrEmpty(entry.ChangedFields)),
		oldValues,
		newValues,
		entry.Actor,
		entry.Reason,
		entry.Timestamp,
	).Scan(&entry.Seq)
	if err != nil {
		return domain.AuditEntry{}, fmt.Errorf("append audit entry: %w", err)
	}
	return entry, nil
}

func (s *AuditStore) ListByRecord(ctx context.Context, recordID domain.RecordID) ([]domain.AuditEntry, error) {
	return s.list(ctx, recordID, 0, 0)
}

func (s *AuditStore) ListAfter(ctx context.Context, recordID domain.RecordID, afterSeq int64, limit int) ([]domain.AuditEntry, error) {
	return s.list(ctx, recordID, afterSeq, limit)
}

func (s *AuditStore) list(ctx context.Context, recordID domain.RecordID, afterSeq int64, limit int) ([]domain.AuditEntry, error) {
	query := `
		SELECT id, consent_record_id, seq, action, changed_fields, old_values, new_values, actor, reason, created_at
		FROM consent_audit_log
		WHERE consent_record_id = $1 AND seq > $2
		ORDER BY seq
	`
	args := []any{uuid.UUID(recordID), afterSeq}
	if limit > 0 {
		query += ` LIMIT $3`
		args = append(args, limit)
	}
	rows, err := execer(ctx, s.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()

	var entries []domain.AuditEntry
	for rows.Next() {
		var (
			entry     domain.AuditEntry
			recordUID uuid.UUID
			fields    pq.StringArray
			oldValues []byte
			newValues []byte
		)
		err := rows.Scan(&entry.ID, &recordUID, &entry.Seq, &entry.Action,
			&fields, &oldValues, &newValues, &entry.Actor, &entry.Reason, &entry.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		entry.RecordID = domain.RecordID(recordUID)
		entry.ChangedFields = fields
		if err := json.Unmarshal(oldValues, &entry.OldValues); err != nil {
			return nil, fmt.Errorf("unmarshal old values: %w", err)
		}
		if err := json.Unmarshal(newValues, &entry.NewValues); err != nil {
			return nil, fmt.Errorf("unmarshal new values: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func valuesOrEmpty(values map[string]string) map[string]string {
	if values == nil {
		return map[string]string{}
	}
	return values
}

func fieldsOrEmpty(fields []string) []string {
	if fields == nil {
		return []string{}
	}
	return fields
}
