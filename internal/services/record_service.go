package services

import (
	"context"
	"fmt"
	"log/slog"

	"fintrack/internal/core"
	"fintrack/internal/storage"
)

// Publisher is the slice of the AMQP client the service needs.
type Publisher interface {
	PublishRecordSync(ctx context.Context, kind core.Kind, id int64) error
	PublishRecordDelete(ctx context.Context, kind core.Kind, id int64, title string) error
}

// RecordService orchestrates record operations across SQLite and AMQP.
// SQLite is the source of truth; mirror messages are best-effort and never
// fail a request.
type RecordService struct {
	storage   *storage.SQLiteRepository
	publisher Publisher
}

func NewRecordService(repo *storage.SQLiteRepository, publisher Publisher) *RecordService {
	return &RecordService{
		storage:   repo,
		publisher: publisher,
	}
}

func (s *RecordService) CreateRecord(ctx context.Context, kind core.Kind, rec core.MoneyRecord) (core.MoneyRecord, error) {
	created, err := s.storage.CreateRecord(ctx, kind, rec)
	if err != nil {
		return core.MoneyRecord{}, fmt.Errorf("save record: %w", err)
	}

	if err := s.publishSync(ctx, kind, created.ID); err != nil {
		slog.ErrorContext(ctx, "Failed to publish sync message",
			"kind", kind, "id", created.ID, "error", err)
	}

	return created, nil
}

func (s *RecordService) UpdateRecord(ctx context.Context, kind core.Kind, rec core.MoneyRecord) (core.MoneyRecord, error) {
	updated, err := s.storage.UpdateRecord(ctx, kind, rec)
	if err != nil {
		return core.MoneyRecord{}, err
	}

	if err := s.publishSync(ctx, kind, updated.ID); err != nil {
		slog.ErrorContext(ctx, "Failed to publish sync message",
			"kind", kind, "id", updated.ID, "error", err)
	}

	return updated, nil
}

func (s *RecordService) DeleteRecord(ctx context.Context, kind core.Kind, id, userID int64) error {
	// Load first: the tombstone message needs the title and the row is
	// gone after the delete.
	rec, err := s.storage.GetRecord(ctx, kind, id, userID)
	if err != nil {
		return err
	}

	if err := s.storage.DeleteRecord(ctx, kind, id, userID); err != nil {
		return err
	}

	if err := s.publishDelete(ctx, kind, id, rec.Title); err != nil {
		slog.ErrorContext(ctx, "Failed to publish delete message",
			"kind", kind, "id", id, "error", err)
	}

	return nil
}

func (s *RecordService) GetRecord(ctx context.Context, kind core.Kind, id, userID int64) (core.MoneyRecord, error) {
	return s.storage.GetRecord(ctx, kind, id, userID)
}

func (s *RecordService) ListRecords(ctx context.Context, kind core.Kind, userID int64) ([]core.MoneyRecord, error) {
	return s.storage.ListRecords(ctx, kind, userID)
}

func (s *RecordService) ListRecordsSince(ctx context.Context, kind core.Kind, userID int64, cutoff core.Date) ([]core.MoneyRecord, error) {
	return s.storage.ListRecordsSince(ctx, kind, userID, cutoff)
}

// ListRecordSets loads both collections for the derived transaction views.
func (s *RecordService) ListRecordSets(ctx context.Context, userID int64) (expenses, incomes []core.MoneyRecord, err error) {
	return s.storage.ListRecordSets(ctx, userID)
}

func (s *RecordService) publishSync(ctx context.Context, kind core.Kind, id int64) error {
	if s.publisher == nil {
		slog.WarnContext(ctx, "Publisher not available, skipping sync message")
		return nil
	}
	return s.publisher.PublishRecordSync(ctx, kind, id)
}

func (s *RecordService) publishDelete(ctx context.Context, kind core.Kind, id int64, title string) error {
	if s.publisher == nil {
		slog.WarnContext(ctx, "Publisher not available, skipping delete message")
		return nil
	}
	return s.publisher.PublishRecordDelete(ctx, kind, id, title)
}
