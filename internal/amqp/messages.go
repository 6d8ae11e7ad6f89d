package amqp

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"fintrack/internal/core"
)

// AMQP message type names, carried in the delivery Type field so the worker
// can dispatch without sniffing the body.
const (
	TypeRecordSync   = "record.sync"
	TypeRecordDelete = "record.delete"
)

// RecordSyncMessage asks the worker to mirror one record to the backup
// spreadsheet. It carries only the key; the worker fetches the current row
// from the database, so a burst of updates collapses into one fresh read.
type RecordSyncMessage struct {
	Kind      core.Kind `json:"kind"`
	ID        int64     `json:"id"`
	MessageID string    `json:"message_id"`
	Timestamp time.Time `json:"timestamp"`
}

func NewRecordSyncMessage(kind core.Kind, id int64) *RecordSyncMessage {
	return &RecordSyncMessage{
		Kind:      kind,
		ID:        id,
		MessageID: uuid.NewString(),
		Timestamp: time.Now().UTC(),
	}
}

func (m *RecordSyncMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func RecordSyncMessageFromJSON(data []byte) (*RecordSyncMessage, error) {
	var msg RecordSyncMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// RecordDeleteMessage is self-contained: by the time the worker sees it the
// row is gone from the database, so the message carries what the tombstone
// needs.
type RecordDeleteMessage struct {
	Kind      core.Kind `json:"kind"`
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	MessageID string    `json:"message_id"`
	Timestamp time.Time `json:"timestamp"`
}

func NewRecordDeleteMessage(kind core.Kind, id int64, title string) *RecordDeleteMessage {
	return &RecordDeleteMessage{
		Kind:      kind,
		ID:        id,
		Title:     title,
		MessageID: uuid.NewString(),
		Timestamp: time.Now().UTC(),
	}
}

func (m *RecordDeleteMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func RecordDeleteMessageFromJSON(data []byte) (*RecordDeleteMessage, error) {
	var msg RecordDeleteMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
