// Package ports declares the dependencies the outbox relay's application
// layer is built against; adapters implement them.
package ports

import (
	"context"
	"time"

	"corehub/internal/shared/outbox"
)

// Clock is a time source abstraction. The relay does not take one; it reads
// time.Now directly.
type Clock interface {
	Now() time.Time
}

// Router maps an outbox row to the stream it should be published on. The
// default rule (spec §4.3) is one stream per vertical.
type Router interface {
	StreamFor(row outbox.Row) string
}

// OutboxRepository is the C3 durable queue: callers claim a batch under
// row-level locks that let multiple relay replicas partition work without
// blocking each other (SELECT ... FOR UPDATE SKIP LOCKED), then report back
// which of the claimed rows were actually published.
type OutboxRepository interface {
	// ClaimBatch locks and returns up to limit unpublished rows, ordered by
	// created_at ascending, within a transaction identified by returned tx.
	// The caller must call Commit or Rollback on tx exactly once.
	ClaimBatch(ctx context.Context, limit int) (rows []outbox.Row, tx Tx, err error)
}

// Tx is the transaction handle returned by ClaimBatch.
type Tx interface {
	MarkPublished(ctx context.Context, rowID int64, publishedAt time.Time) error
	Commit() error
	Rollback() error
}
