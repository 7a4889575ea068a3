// Package audit guarantees a complete, ordered, immutable history per
// consent record. Appends happen through the tx-scoped store handed to the
// mutating unit of work, so a mutation and its audit entry commit together
// or not at all. Committed entries are additionally fanned out to Kafka for
// the regulator-facing export pipeline; the database remains the source of
// truth.
package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"assent/internal/domain"
	"assent/internal/storage"
	pkgerrors "assent/pkg/domain-errors"
)

// DefaultActor is recorded when no actor identity accompanies a mutation.
const DefaultActor = "system"

type Recorder struct {
	store  storage.AuditStore
	inbox  chan domain.AuditEntry
	logger *slog.Logger
}

// Option configures the Recorder.
type Option func(*Recorder)

// WithFanOut buffers committed entries for the Kafka worker. Entries are
// dropped (and counted) when the buffer is full; the store keeps them.
func WithFanOut(buffer int) Option {
	return func(r *Recorder) {
		r.inbox = make(chan domain.AuditEntry, buffer)
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Recorder) {
		r.logger = logger
	}
}

// NewRecorder builds a Recorder over the read-path audit store.
func NewRecorder(store storage.AuditStore, opts ...Option) *Recorder {
	r := &Recorder{store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Append normalizes and persists an entry through the tx-scoped sink,
// returning the stored entry with its sequence number. It is called inside
// the same unit of work as the mutation it describes; if it fails, the
// whole mutation must fail.
func (r *Recorder) Append(ctx context.Context, sink storage.AuditStore, entry domain.AuditEntry) (domain.AuditEntry, error) {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	if entry.Actor == "" {
		entry.Actor = DefaultActor
	}
	return sink.Append(ctx, entry)
}

// Publish hands committed entries to the fan-out worker. Non-blocking: a
// full buffer drops the fan-out copy, never the caller.
func (r *Recorder) Publish(entries ...domain.AuditEntry) {
	if r.inbox == nil {
		return
	}
	for _, entry := range entries {
		select {
		case r.inbox <- entry:
		default:
			r.logger.Warn("audit fan-out buffer full, dropping entry",
				"record_id", entry.RecordID.String(),
				"action", entry.Action,
			)
		}
	}
}

// Inbox exposes the fan-out channel to the worker. Nil when fan-out is
// disabled.
func (r *Recorder) Inbox() <-chan domain.AuditEntry {
	return r.inbox
}

// History returns the full ordered history of a record.
func (r *Recorder) History(ctx context.Context, recordID domain.RecordID) ([]domain.AuditEntry, error) {
	entries, err := r.store.ListByRecord(ctx, recordID)
	if err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.CodeUnavailable, "read audit history")
	}
	return entries, nil
}

// Page returns up to limit entries after the given sequence number,
// ascending. Restarting from any cursor yields the same suffix, which makes
// the export stream resumable.
func (r *Recorder) Page(ctx context.Context, recordID domain.RecordID, afterSeq int64, limit int) ([]domain.AuditEntry, error) {
	entries, err := r.store.ListAfter(ctx, recordID, afterSeq, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.CodeUnavailable, "read audit page")
	}
	return entries, nil
}
