package sheets

import (
	"context"

	"fintrack/internal/core"
)

// Ports for outbound adapters.
type (
	// RecordWriter appends one record to the backup spreadsheet.
	RecordWriter interface {
		AppendRecord(ctx context.Context, tx core.Transaction) (rowRef string, err error)
	}

	// TombstoneWriter appends a deletion marker. The mirror is append-only,
	// so deletes are recorded rather than erased.
	TombstoneWriter interface {
		AppendTombstone(ctx context.Context, kind core.Kind, id int64, title string) (rowRef string, err error)
	}
)

// MirrorWriter is what the worker needs from a spreadsheet backend.
type MirrorWriter interface {
	RecordWriter
	TombstoneWriter
}
