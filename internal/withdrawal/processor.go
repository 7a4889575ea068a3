// Package withdrawal handles the right-to-withdraw flow: revoking a consent
// record and tracking the subsequent data deletion through to its terminal
// outcome.
package withdrawal

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"assent/internal/audit"
	"assent/internal/domain"
	"assent/internal/ledger"
	"assent/internal/platform/metrics"
	"assent/internal/storage"
	pkgerrors "assent/pkg/domain-errors"
	"assent/pkg/platform/sentinel"
)

// Processor executes withdrawals. The status flip to withdrawn and the
// withdrawal record itself commit in one unit of work so there is never a
// withdrawn record without a deletion tracker, or vice versa.
type Processor struct {
	tx       storage.Tx
	stores   storage.Stores
	recorder *audit.Recorder
	logger   *slog.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

func NewProcessor(tx storage.Tx, stores storage.Stores, recorder *audit.Recorder, logger *slog.Logger, m *metrics.Metrics) *Processor {
	return &Processor{
		tx:       tx,
		stores:   stores,
		recorder: recorder,
		logger:   logger,
		metrics:  m,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Withdraw revokes a consent record. The record must grant the right to
// withdraw and must not already have an active withdrawal. On success the
// record is withdrawn, a deletion tracker exists in pending state, and
// exactly one status_changed audit entry records the flip.
func (p *Processor) Withdraw(ctx context.Context, recordID domain.RecordID, reason, method, actor string) (domain.WithdrawalRecord, error) {
	record, err := p.stores.Consents.Get(ctx, recordID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return domain.WithdrawalRecord{}, pkgerrors.New(pkgerrors.CodeNotFound, "consent record not found").WithEntity(recordID.String())
		}
		return domain.WithdrawalRecord{}, pkgerrors.Wrap(err, pkgerrors.CodeUnavailable, "read consent record")
	}
	if !record.RightToWithdraw {
		return domain.WithdrawalRecord{}, pkgerrors.New(pkgerrors.CodeWithdrawalNotAllowed,
			"record does not grant the right to withdraw").WithEntity(recordID.String())
	}
	if record.Status == domain.StatusWithdrawn {
		return domain.WithdrawalRecord{}, pkgerrors.New(pkgerrors.CodeAlreadyWithdrawn,
			"consent already withdrawn").WithEntity(recordID.String())
	}
	if _, err := p.stores.Withdrawals.FindActiveByRecord(ctx, recordID); err == nil {
		return domain.WithdrawalRecord{}, pkgerrors.New(pkgerrors.CodeAlreadyWithdrawn,
			"an active withdrawal already exists").WithEntity(recordID.String())
	} else if !errors.Is(err, sentinel.ErrNotFound) {
		return domain.WithdrawalRecord{}, pkgerrors.Wrap(err, pkgerrors.CodeUnavailable, "check existing withdrawals")
	}

	if method == "" {
		method = domain.WithdrawalMethodUserRequest
	}
	now := p.now()
	withdrawal := domain.WithdrawalRecord{
		ID:             domain.NewWithdrawalID(),
		RecordID:       recordID,
		WithdrawnAt:    now,
		Reason:         reason,
		Method:         method,
		DeletionStatus: domain.DeletionPending,
		VerifiedBy:     actorOrSystem(actor),
		CreatedAt:      now,
	}

	var entry domain.AuditEntry
	ctx = storage.WithMutationKey(ctx, recordID.String())
	err = p.tx.RunInTx(ctx, func(ctx context.Context, st storage.Stores) error {
		_, entry, err = ledger.ApplyTransition(ctx, st, p.recorder, record, domain.StatusWithdrawn, withdrawal.VerifiedBy, reason, now)
		if err != nil {
			return err
		}
		if err := st.Withdrawals.Insert(ctx, withdrawal); err != nil {
			return pkgerrors.Wrap(err, pkgerrors.CodeUnavailable, "persist withdrawal record")
		}
		return nil
	})
	if err != nil {
		return domain.WithdrawalRecord{}, err
	}

	p.recorder.Publish(entry)
	if p.metrics != nil {
		p.metrics.Withdrawals.Inc()
	}
	p.logger.InfoContext(ctx, "consent withdrawn",
		"record_id", recordID.String(),
		"withdrawal_id", withdrawal.ID.String(),
		"method", method,
	)
	return withdrawal, nil
}

// Get returns one withdrawal record; polling it is how callers observe
// intermediate deletion progress.
func (p *Processor) Get(ctx context.Context, id domain.WithdrawalID) (domain.WithdrawalRecord, error) {
	w, err := p.stores.Withdrawals.Get(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return domain.WithdrawalRecord{}, pkgerrors.New(pkgerrors.CodeNotFound, "withdrawal record not found").WithEntity(id.String())
		}
		return domain.WithdrawalRecord{}, pkgerrors.Wrap(err, pkgerrors.CodeUnavailable, "read withdrawal record")
	}
	return w, nil
}

// MarkDeletionStatus advances the deletion tracker one step. Backward moves
// and skipped steps are rejected. Only terminal outcomes are written to the
// audit history; in-progress is observable by polling the withdrawal.
func (p *Processor) MarkDeletionStatus(ctx context.Context, id domain.WithdrawalID, status domain.DeletionStatus, verifier string) (domain.WithdrawalRecord, error) {
	switch status {
	case domain.DeletionInProgress, domain.DeletionCompleted, domain.DeletionFailed:
	default:
		return domain.WithdrawalRecord{}, pkgerrors.Newf(pkgerrors.CodeValidation, "unknown deletion status %q", status)
	}

	var (
		withdrawal domain.WithdrawalRecord
		entry      domain.AuditEntry
		audited    bool
	)
	ctx = storage.WithMutationKey(ctx, id.String())
	err := p.tx.RunInTx(ctx, func(ctx context.Context, st storage.Stores) error {
		w, err := st.Withdrawals.Get(ctx, id)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "withdrawal record not found").WithEntity(id.String())
			}
			return pkgerrors.Wrap(err, pkgerrors.CodeUnavailable, "read withdrawal record")
		}
		if !w.DeletionStatus.CanAdvanceTo(status) {
			return pkgerrors.Newf(pkgerrors.CodeIllegalTransition,
				"cannot advance deletion from %s to %s", w.DeletionStatus, status).WithEntity(id.String())
		}

		prev := w.DeletionStatus
		now := p.now()
		w.DeletionStatus = status
		if verifier != "" {
			w.VerifiedBy = verifier
		}
		if status == domain.DeletionCompleted {
			w.DeletionCompletedAt = &now
		}
		if err := st.Withdrawals.Update(ctx, w); err != nil {
			return pkgerrors.Wrap(err, pkgerrors.CodeUnavailable, "save withdrawal record")
		}

		if status.Terminal() {
			action := domain.AuditActionDeletionCompleted
			if status == domain.DeletionFailed {
				action = domain.AuditActionDeletionFailed
			}
			entry, err = p.recorder.Append(ctx, st.Audit, domain.AuditEntry{
				RecordID:      w.RecordID,
				Action:        action,
				ChangedFields: []string{"deletion_status"},
				OldValues:     map[string]string{"deletion_status": string(prev)},
				NewValues:     map[string]string{"deletion_status": string(status)},
				Actor:         actorOrSystem(verifier),
				Timestamp:     now,
			})
			if err != nil {
				return pkgerrors.Wrap(err, pkgerrors.CodeUnavailable, "append deletion audit entry")
			}
			audited = true
		}
		withdrawal = w
		return nil
	})
	if err != nil {
		return domain.WithdrawalRecord{}, err
	}

	if audited {
		p.recorder.Publish(entry)
	}
	if status == domain.DeletionCompleted && p.metrics != nil {
		p.metrics.DeletionsCompleted.Inc()
	}
	p.logger.InfoContext(ctx, "deletion status advanced",
		"withdrawal_id", id.String(),
		"deletion_status", string(status),
	)
	return withdrawal, nil
}

func actorOrSystem(actor string) string {
	if actor == "" {
		return audit.DefaultActor
	}
	return actor
}
