package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"fintrack/internal/amqp"
	"fintrack/internal/core"
	applog "fintrack/internal/log"
	"fintrack/internal/sheets"
	"fintrack/internal/storage"
)

// MirrorWorker keeps the backup spreadsheet in step with SQLite. It serves
// AMQP messages as they arrive and periodically re-drives rows whose
// sync_status is still pending, which covers lost messages and downtime.
type MirrorWorker struct {
	storage   *storage.SQLiteRepository
	mirror    sheets.MirrorWriter
	batchSize int
}

func NewMirrorWorker(repo *storage.SQLiteRepository, mirror sheets.MirrorWriter, batchSize int) *MirrorWorker {
	return &MirrorWorker{
		storage:   repo,
		mirror:    mirror,
		batchSize: batchSize,
	}
}

// HandleSyncMessage mirrors one record named by an AMQP sync message.
func (w *MirrorWorker) HandleSyncMessage(ctx context.Context, msg *amqp.RecordSyncMessage) error {
	slog.InfoContext(ctx, "Processing sync message",
		"kind", msg.Kind,
		"id", msg.ID,
		"message_id", msg.MessageID)

	if err := msg.Kind.Validate(); err != nil {
		return fmt.Errorf("sync message kind: %w", err)
	}
	return w.mirrorRecord(ctx, msg.Kind, msg.ID)
}

// HandleDeleteMessage appends a tombstone for a record already removed from
// the database.
func (w *MirrorWorker) HandleDeleteMessage(ctx context.Context, msg *amqp.RecordDeleteMessage) error {
	slog.InfoContext(ctx, "Processing delete message",
		"kind", msg.Kind,
		"id", msg.ID,
		"message_id", msg.MessageID)

	if err := msg.Kind.Validate(); err != nil {
		return fmt.Errorf("delete message kind: %w", err)
	}

	ref, err := w.mirror.AppendTombstone(ctx, msg.Kind, msg.ID, msg.Title)
	if err != nil {
		return fmt.Errorf("append tombstone: %w", err)
	}

	slog.InfoContext(ctx, "Recorded deletion",
		"kind", msg.Kind,
		"id", msg.ID,
		"sheets_ref", ref)
	return nil
}

// ProcessPending mirrors up to one batch of rows still marked pending.
// Failures are logged per row; the batch keeps going.
func (w *MirrorWorker) ProcessPending(ctx context.Context) error {
	pending, err := w.storage.ListPendingMirror(ctx, w.batchSize)
	if err != nil {
		return fmt.Errorf("list pending records: %w", err)
	}
	if len(pending) == 0 {
		return nil
	}

	slog.InfoContext(ctx, "Processing pending records", "count", len(pending))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, p := range pending {
		g.Go(func() error {
			if err := w.mirrorRecord(ctx, p.Kind, p.ID); err != nil {
				slog.ErrorContext(ctx, "Failed to mirror pending record",
					"kind", p.Kind, "id", p.ID, "error", err)
			}
			return nil
		})
	}
	return g.Wait()
}

// StartupSyncCheck drains a larger pending backlog once at worker start.
func (w *MirrorWorker) StartupSyncCheck(ctx context.Context) error {
	pending, err := w.storage.ListPendingMirror(ctx, w.batchSize*5)
	if err != nil {
		return fmt.Errorf("list pending records for startup check: %w", err)
	}
	if len(pending) == 0 {
		slog.InfoContext(ctx, "No pending records found on startup")
		return nil
	}

	slog.InfoContext(ctx, "Found pending records on startup", "count", len(pending))

	successCount := 0
	errorCount := 0
	for _, p := range pending {
		if err := w.mirrorRecord(ctx, p.Kind, p.ID); err != nil {
			slog.ErrorContext(ctx, "Failed to mirror record during startup",
				"kind", p.Kind, "id", p.ID, "error", err)
			errorCount++
			continue
		}
		successCount++
	}

	slog.InfoContext(ctx, "Startup sync completed",
		"total", len(pending),
		"synced", successCount,
		"errors", errorCount)
	return nil
}

func (w *MirrorWorker) mirrorRecord(ctx context.Context, kind core.Kind, id int64) error {
	rec, err := w.storage.GetRecordAnyOwner(ctx, kind, id)
	if err != nil {
		// Deleted between publish and consume. Nothing to mirror.
		if errors.Is(err, storage.ErrNotFound) {
			slog.WarnContext(ctx, "Record vanished before mirroring", "kind", kind, "id", id)
			return nil
		}
		return fmt.Errorf("get record from storage: %w", err)
	}

	tx := core.Transaction{MoneyRecord: rec, Kind: kind}
	ref, err := w.mirror.AppendRecord(ctx, tx)
	if err != nil {
		if markErr := w.storage.MarkMirrorError(ctx, kind, id); markErr != nil {
			slog.ErrorContext(ctx, "Failed to mark mirror error", "kind", kind, "id", id, "error", markErr)
		}
		return fmt.Errorf("append to sheets: %w", err)
	}

	if err := w.storage.MarkMirrored(ctx, kind, id); err != nil {
		// The append worked; leave the row pending rather than fail.
		slog.ErrorContext(ctx, "Failed to mark as mirrored", "kind", kind, "id", id, "error", err)
	}

	slog.InfoContext(ctx, "Mirrored record",
		applog.FieldKind, kind,
		applog.FieldRecordID, id,
		"sheets_ref", ref,
		applog.FieldAmountCents, rec.Amount.Cents)
	return nil
}
