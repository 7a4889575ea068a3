package postgres

import (
	"context"
	"database/sql"
	"time"

	"assent/internal/storage"
	pkgerrors "assent/pkg/domain-errors"
	txcontext "assent/pkg/platform/tx"
)

const defaultTxTimeout = 5 * time.Second

// Tx runs units of work inside a SQL transaction. The *sql.Tx travels in
// the context so every store in the bundle joins the same transaction.
type Tx struct {
	db      *sql.DB
	stores  storage.Stores
	timeout time.Duration
}

func NewTx(db *sql.DB) *Tx {
	return &Tx{db: db, stores: NewStores(db)}
}

func (t *Tx) RunInTx(ctx context.Context, fn func(ctx context.Context, s storage.Stores) error) error {
	if err := ctx.Err(); err != nil {
		return pkgerrors.Wrap(err, pkgerrors.CodeUnavailable, "unit of work aborted: context cancelled")
	}

	timeout := t.timeout
	if timeout == 0 {
		timeout = defaultTxTimeout
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return pkgerrors.Wrap(err, pkgerrors.CodeUnavailable, "begin transaction")
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(txcontext.WithTx(ctx, tx), t.stores); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return pkgerrors.Wrap(err, pkgerrors.CodeUnavailable, "commit transaction")
	}
	return nil
}
