// Package ports declares the one dependency the sample vertical's producer
// needs: somewhere durable to append an outbox row.
package ports

import (
	"context"

	"corehub/internal/shared/outbox"
)

// OutboxWriter appends a producer's domain event as a pending outbox row,
// in the same table the relay drains (spec §4.3). Both
// contexts/outbox-relay's Postgres repository and its in-memory fake
// satisfy this structurally.
type OutboxWriter interface {
	AppendRow(ctx context.Context, row outbox.Row) error
}
