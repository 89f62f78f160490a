// Package memory is an in-process fake of ports.OutboxRepository used by
// application-layer tests, mirroring the in-memory adapters used throughout
// this repository's test suites.
package memory

import (
	"context"
	"sync"
	"time"

	"corehub/contexts/outbox-relay/ports"
	"corehub/internal/shared/outbox"
)

// Store holds outbox rows in memory, simulating row-level locking with a
// mutex held for the lifetime of each claimed transaction.
type Store struct {
	mu   sync.Mutex
	rows []outbox.Row
}

func NewStore(rows []outbox.Row) *Store {
	return &Store{rows: rows}
}

func (s *Store) Insert(row outbox.Row) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, row)
}

// AppendRow is the producer-facing write path, deduping on EventID the same
// way the Postgres adapter's ON CONFLICT (event_id) DO NOTHING does.
func (s *Store) AppendRow(_ context.Context, row outbox.Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.rows {
		if existing.EventID == row.EventID {
			return nil
		}
	}
	row.ID = int64(len(s.rows) + 1)
	row.CreatedAt = time.Now().UTC()
	row.Status = outbox.StatusPending
	s.rows = append(s.rows, row)
	return nil
}

func (s *Store) ClaimBatch(_ context.Context, limit int) ([]outbox.Row, ports.Tx, error) {
	s.mu.Lock()
	var claimed []outbox.Row
	for i := range s.rows {
		if s.rows[i].PublishedAt != nil {
			continue
		}
		claimed = append(claimed, s.rows[i])
		if len(claimed) >= limit {
			break
		}
	}
	return claimed, &memTx{store: s}, nil
}

type memTx struct {
	store     *Store
	committed bool
}

func (t *memTx) MarkPublished(_ context.Context, rowID int64, publishedAt time.Time) error {
	for i := range t.store.rows {
		if t.store.rows[i].ID == rowID {
			ts := publishedAt
			t.store.rows[i].PublishedAt = &ts
		}
	}
	return nil
}

func (t *memTx) Commit() error {
	t.committed = true
	t.store.mu.Unlock()
	return nil
}

func (t *memTx) Rollback() error {
	t.store.mu.Unlock()
	return nil
}

// Rows returns a snapshot, for assertions in tests.
func (s *Store) Rows() []outbox.Row {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]outbox.Row, len(s.rows))
	copy(out, s.rows)
	return out
}
