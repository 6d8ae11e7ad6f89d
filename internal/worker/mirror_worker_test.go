package worker

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"fintrack/internal/amqp"
	"fintrack/internal/core"
	"fintrack/internal/sheets/memory"
	"fintrack/internal/storage"
)

func newTestWorker(t *testing.T) (*MirrorWorker, *storage.SQLiteRepository, *memory.Store, int64) {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	u, err := repo.CreateUser(context.Background(), core.User{
		Username: "tester", Email: "t@example.com", PasswordHash: "x",
	})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	store := memory.New()
	return NewMirrorWorker(repo, store, 10), repo, store, u.ID
}

func createTestRecord(t *testing.T, repo *storage.SQLiteRepository, kind core.Kind, userID int64, title string) core.MoneyRecord {
	t.Helper()
	rec, err := repo.CreateRecord(context.Background(), kind, core.MoneyRecord{
		UserID:     userID,
		Title:      title,
		Amount:     core.Money{Cents: 1500},
		Category:   "Misc",
		OccurredOn: core.NewDate(2026, 8, 15),
	})
	if err != nil {
		t.Fatalf("create record: %v", err)
	}
	return rec
}

func pendingCount(t *testing.T, repo *storage.SQLiteRepository) int {
	t.Helper()
	pending, err := repo.ListPendingMirror(context.Background(), 100)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	return len(pending)
}

func TestHandleSyncMessage(t *testing.T) {
	w, repo, store, userID := newTestWorker(t)
	ctx := context.Background()
	rec := createTestRecord(t, repo, core.KindExpense, userID, "rent")

	msg := amqp.NewRecordSyncMessage(core.KindExpense, rec.ID)
	if err := w.HandleSyncMessage(ctx, msg); err != nil {
		t.Fatalf("handle: %v", err)
	}

	rows := store.Rows()
	if len(rows) != 1 || rows[0].ID != rec.ID || rows[0].Title != "rent" {
		t.Errorf("mirrored rows = %+v", rows)
	}
	if pendingCount(t, repo) != 0 {
		t.Error("record should be marked mirrored")
	}
}

func TestHandleSyncMessageVanishedRecord(t *testing.T) {
	w, _, store, _ := newTestWorker(t)

	// The record was deleted between publish and consume. Not an error.
	msg := amqp.NewRecordSyncMessage(core.KindIncome, 12345)
	if err := w.HandleSyncMessage(context.Background(), msg); err != nil {
		t.Fatalf("vanished record should not error: %v", err)
	}
	if len(store.Rows()) != 0 {
		t.Error("nothing should be mirrored")
	}
}

func TestHandleSyncMessageAppendFailure(t *testing.T) {
	w, repo, store, userID := newTestWorker(t)
	ctx := context.Background()
	rec := createTestRecord(t, repo, core.KindExpense, userID, "rent")

	store.FailWith(errors.New("sheets unavailable"))
	msg := amqp.NewRecordSyncMessage(core.KindExpense, rec.ID)
	if err := w.HandleSyncMessage(ctx, msg); err == nil {
		t.Fatal("expected error from failing sheet")
	}

	// Marked as error, so it is no longer in the pending queue but is not
	// silently lost either.
	if pendingCount(t, repo) != 0 {
		t.Error("failed record should be marked, not left pending")
	}
}

func TestHandleDeleteMessage(t *testing.T) {
	w, _, store, _ := newTestWorker(t)

	msg := amqp.NewRecordDeleteMessage(core.KindExpense, 7, "old subscription")
	if err := w.HandleDeleteMessage(context.Background(), msg); err != nil {
		t.Fatalf("handle: %v", err)
	}

	rows := store.Rows()
	if len(rows) != 1 || !rows[0].Tombstone || rows[0].Title != "old subscription" {
		t.Errorf("rows = %+v, want one tombstone", rows)
	}
}

func TestHandleMessageRejectsBadKind(t *testing.T) {
	w, _, _, _ := newTestWorker(t)
	ctx := context.Background()

	sync := &amqp.RecordSyncMessage{Kind: core.Kind("junk"), ID: 1}
	if err := w.HandleSyncMessage(ctx, sync); err == nil {
		t.Error("expected error for bad kind in sync message")
	}
	del := &amqp.RecordDeleteMessage{Kind: core.Kind(""), ID: 1}
	if err := w.HandleDeleteMessage(ctx, del); err == nil {
		t.Error("expected error for bad kind in delete message")
	}
}

func TestProcessPending(t *testing.T) {
	w, repo, store, userID := newTestWorker(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		createTestRecord(t, repo, core.KindExpense, userID, "expense")
	}
	createTestRecord(t, repo, core.KindIncome, userID, "income")

	if err := w.ProcessPending(ctx); err != nil {
		t.Fatalf("process pending: %v", err)
	}
	if got := len(store.Rows()); got != 6 {
		t.Errorf("mirrored %d rows, want 6", got)
	}
	if pendingCount(t, repo) != 0 {
		t.Error("all records should be mirrored")
	}

	// A second pass finds nothing to do.
	if err := w.ProcessPending(ctx); err != nil {
		t.Fatalf("second pass: %v", err)
	}
	if got := len(store.Rows()); got != 6 {
		t.Errorf("second pass mirrored extra rows: %d", got)
	}
}

func TestProcessPendingRespectsBatchSize(t *testing.T) {
	w, repo, store, userID := newTestWorker(t)
	w.batchSize = 2
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		createTestRecord(t, repo, core.KindExpense, userID, "expense")
	}

	if err := w.ProcessPending(ctx); err != nil {
		t.Fatalf("process pending: %v", err)
	}
	if got := len(store.Rows()); got != 2 {
		t.Errorf("mirrored %d rows, want batch of 2", got)
	}
}

func TestStartupSyncCheck(t *testing.T) {
	w, repo, store, userID := newTestWorker(t)
	ctx := context.Background()

	createTestRecord(t, repo, core.KindExpense, userID, "a")
	createTestRecord(t, repo, core.KindIncome, userID, "b")

	if err := w.StartupSyncCheck(ctx); err != nil {
		t.Fatalf("startup check: %v", err)
	}
	if got := len(store.Rows()); got != 2 {
		t.Errorf("mirrored %d rows, want 2", got)
	}
}
