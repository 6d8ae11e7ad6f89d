package memory

import (
	"context"
	"fmt"
	"sync"

	"fintrack/internal/core"
)

// Row is one mirrored entry, either a record or a tombstone.
type Row struct {
	Kind      core.Kind
	ID        int64
	Title     string
	Tombstone bool
}

// Store is an in-memory MirrorWriter used by tests.
type Store struct {
	mu   sync.Mutex
	rows []Row
	err  error
}

func New() *Store {
	return &Store{}
}

// FailWith makes every subsequent append return err. Pass nil to recover.
func (s *Store) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *Store) AppendRecord(_ context.Context, tx core.Transaction) (string, error) {
	if err := tx.Validate(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	s.rows = append(s.rows, Row{Kind: tx.Kind, ID: tx.ID, Title: tx.Title})
	return fmt.Sprintf("mem:%d", len(s.rows)), nil
}

func (s *Store) AppendTombstone(_ context.Context, kind core.Kind, id int64, title string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	s.rows = append(s.rows, Row{Kind: kind, ID: id, Title: title, Tombstone: true})
	return fmt.Sprintf("mem:%d", len(s.rows)), nil
}

// Rows returns a copy of everything appended so far.
func (s *Store) Rows() []Row {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Row(nil), s.rows...)
}
