// Package postgres implements the storage contracts on PostgreSQL via
// database/sql and lib/pq. Stores join an open transaction when one is
// carried in the context (pkg/platform/tx); otherwise they run against the
// pool directly.
package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"

	_ "github.com/lib/pq"

	"assent/internal/storage"
	txcontext "assent/pkg/platform/tx"
)

//go:embed schema.sql
var schema string

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func execer(ctx context.Context, db *sql.DB) querier {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return db
}

// Open connects to postgres and verifies the connection.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// EnsureSchema creates the six relations when they do not exist yet.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// NewStores builds the full postgres store bundle over one pool.
func NewStores(db *sql.DB) storage.Stores {
	return storage.Stores{
		Users:       NewUserStore(db),
		Consents:    NewConsentStore(db),
		Audit:       NewAuditStore(db),
		Compliance:  NewComplianceStore(db),
		Withdrawals: NewWithdrawalStore(db),
		Keys:        NewKeyStore(db),
	}
}
