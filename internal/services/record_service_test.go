package services

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"fintrack/internal/core"
	"fintrack/internal/storage"
)

type fakePublisher struct {
	mu      sync.Mutex
	syncs   []int64
	deletes []string
	err     error
}

func (f *fakePublisher) PublishRecordSync(_ context.Context, _ core.Kind, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.syncs = append(f.syncs, id)
	return nil
}

func (f *fakePublisher) PublishRecordDelete(_ context.Context, _ core.Kind, _ int64, title string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.deletes = append(f.deletes, title)
	return nil
}

func newTestService(t *testing.T, pub Publisher) (*RecordService, int64) {
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
	return NewRecordService(repo, pub), u.ID
}

func sampleRecord(userID int64) core.MoneyRecord {
	return core.MoneyRecord{
		UserID:     userID,
		Title:      "groceries",
		Amount:     core.Money{Cents: 4250},
		Category:   "Food",
		OccurredOn: core.NewDate(2026, 8, 20),
	}
}

func TestCreateRecordPublishesSync(t *testing.T) {
	pub := &fakePublisher{}
	svc, userID := newTestService(t, pub)

	created, err := svc.CreateRecord(context.Background(), core.KindExpense, sampleRecord(userID))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(pub.syncs) != 1 || pub.syncs[0] != created.ID {
		t.Errorf("syncs = %v, want [%d]", pub.syncs, created.ID)
	}
}

func TestCreateRecordSurvivesPublishFailure(t *testing.T) {
	pub := &fakePublisher{err: errors.New("broker down")}
	svc, userID := newTestService(t, pub)
	ctx := context.Background()

	created, err := svc.CreateRecord(ctx, core.KindExpense, sampleRecord(userID))
	if err != nil {
		t.Fatalf("create should not fail on publish error: %v", err)
	}

	// The record is durable even though the message was lost.
	if _, err := svc.GetRecord(ctx, core.KindExpense, created.ID, userID); err != nil {
		t.Errorf("record not persisted: %v", err)
	}
}

func TestCreateRecordWithoutPublisher(t *testing.T) {
	svc, userID := newTestService(t, nil)

	if _, err := svc.CreateRecord(context.Background(), core.KindIncome, sampleRecord(userID)); err != nil {
		t.Fatalf("create without publisher: %v", err)
	}
}

func TestDeleteRecordPublishesTombstone(t *testing.T) {
	pub := &fakePublisher{}
	svc, userID := newTestService(t, pub)
	ctx := context.Background()

	created, err := svc.CreateRecord(ctx, core.KindExpense, sampleRecord(userID))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := svc.DeleteRecord(ctx, core.KindExpense, created.ID, userID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(pub.deletes) != 1 || pub.deletes[0] != "groceries" {
		t.Errorf("deletes = %v, want the record title", pub.deletes)
	}

	if _, err := svc.GetRecord(ctx, core.KindExpense, created.ID, userID); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("get after delete: %v", err)
	}
}

func TestDeleteMissingRecordDoesNotPublish(t *testing.T) {
	pub := &fakePublisher{}
	svc, userID := newTestService(t, pub)

	err := svc.DeleteRecord(context.Background(), core.KindExpense, 999, userID)
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
	if len(pub.deletes) != 0 {
		t.Errorf("no tombstone expected, got %v", pub.deletes)
	}
}

func TestUpdateRecordPublishesSync(t *testing.T) {
	pub := &fakePublisher{}
	svc, userID := newTestService(t, pub)
	ctx := context.Background()

	created, err := svc.CreateRecord(ctx, core.KindExpense, sampleRecord(userID))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	created.Title = "weekly groceries"
	if _, err := svc.UpdateRecord(ctx, core.KindExpense, created); err != nil {
		t.Fatalf("update: %v", err)
	}
	if len(pub.syncs) != 2 {
		t.Errorf("syncs = %v, want create and update", pub.syncs)
	}
}
