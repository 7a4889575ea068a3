package audit

import (
	"context"
	"log/slog"

	"assent/internal/domain"
)

// sink is where the worker delivers entries; satisfied by *Publisher.
type sink interface {
	Publish(ctx context.Context, entry domain.AuditEntry) error
}

// Worker consumes committed audit entries from the recorder's inbox and
// delivers them to the fan-out sink. Delivery is best-effort: the database
// row already committed, so a failed publish is logged and counted rather
// than retried forever.
type Worker struct {
	sink     sink
	inbox    <-chan domain.AuditEntry
	logger   *slog.Logger
	onFailed func()
}

func NewWorker(sink sink, inbox <-chan domain.AuditEntry, logger *slog.Logger, onFailed func()) *Worker {
	return &Worker{sink: sink, inbox: inbox, logger: logger, onFailed: onFailed}
}

func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case entry := <-w.inbox:
			if err := w.sink.Publish(ctx, entry); err != nil {
				w.logger.Error("audit fan-out publish failed",
					"record_id", entry.RecordID.String(),
					"seq", entry.Seq,
					"error", err,
				)
				if w.onFailed != nil {
					w.onFailed()
				}
			}
		}
	}
}
