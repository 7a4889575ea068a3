package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"assent/internal/domain"
)

type ComplianceStore struct {
	db *sql.DB
}

func NewComplianceStore(db *sql.DB) *ComplianceStore {
	return &ComplianceStore{db: db}
}

func (s *ComplianceStore) Insert(ctx context.Context, check domain.ComplianceCheck) error {
	query := `
		INSERT INTO compliance_checks
			(id, consent_record_id, check_type, compliance_standard, check_result,
			 issues_found, remediation_steps, checked_by, check_timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := execer(ctx, s.db).ExecContext(ctx, query,
		uuid.UUID(check.ID),
		uuid.UUID(check.RecordID),
		check.CheckType,
		check.Standard,
		check.Result,
		pq.Array(fieldsOrEmpty(check.Issues)),
		check.Remediation,
		check.CheckedBy,
		check.CheckedAt,
	)
	if err != nil {
		return fmt.Errorf("insert compliance check: %w", err)
	}
	return nil
}

func (s *ComplianceStore) ListByRecord(ctx context.Context, recordID domain.RecordID) ([]domain.ComplianceCheck, error) {
	query := `
		SELECT id, consent_record_id, check_type, compliance_standard, check_result,
		       issues_found, remediation_steps, checked_by, check_timestamp
		FROM compliance_checks
		WHERE consent_record_id = $1
		ORDER BY check_timestamp
	`
	rows, err := execer(ctx, s.db).QueryContext(ctx, query, uuid.UUID(recordID))
	if err != nil {
		return nil, fmt.Errorf("list compliance checks: %w", err)
	}
	defer rows.Close()

	var checks []domain.ComplianceCheck
	for rows.Next() {
		var (
			check     domain.ComplianceCheck
			checkID   uuid.UUID
			recordUID uuid.UUID
			issues    pq.StringArray
		)
		err := rows.Scan(&checkID, &recordUID, &check.CheckType, &check.Standard,
			&check.Result, &issues, &check.Remediation, &check.CheckedBy, &check.CheckedAt)
		if err != nil {
			return nil, fmt.Errorf("scan compliance check: %w", err)
		}
		check.ID = domain.CheckID(checkID)
		check.RecordID = domain.RecordID(recordUID)
		check.Issues = issues
		checks = append(checks, check)
	}
	return checks, rows.Err()
}
