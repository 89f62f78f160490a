// Package bus implements the stream bus abstraction (C4): named streams
// with consumer groups, supporting append, group-read, acknowledge, list
// pending, and claim. The wire format is the string-keyed record in
// spec §6: event_id, event_type, tenant_id, vertical, occurred_at,
// version, payload, correlation_id, metadata.
package bus

import (
	"context"
	"time"

	"corehub/internal/shared/events"
)

// Message is one bus entry read under a consumer group, decoded back into
// an Envelope with its bus message id stamped into Metadata.
type Message struct {
	ID       string
	Envelope events.Envelope
}

// PendingEntry describes one unacknowledged delivery, as reported by
// XPENDING, for reclaim decisions.
type PendingEntry struct {
	ID         string
	Consumer   string
	Idle       time.Duration
	DeliveryCount int64
}

// Bus is the abstraction every producer and consumer in this repository
// depends on. The only production implementation is the Redis Streams
// adapter; tests use MemoryBus, the in-memory fake in membus.go of this
// package.
type Bus interface {
	// EnsureGroup creates stream+group if absent (idempotent). startID is
	// "0" to replay the whole stream from the start, "$" to only deliver
	// entries appended after group creation.
	EnsureGroup(ctx context.Context, stream, group, startID string) error

	// Publish appends env to stream, approximately trimming to maxLen
	// (0 disables trimming), and returns the assigned stream entry id.
	Publish(ctx context.Context, stream string, env events.Envelope, maxLen int64) (string, error)

	// ReadGroup blocks up to block for up to count new entries delivered to
	// consumer under group on stream. A zero-length, nil-error result means
	// the block elapsed with nothing delivered.
	ReadGroup(ctx context.Context, stream, group, consumer string, count int64, block time.Duration) ([]Message, error)

	// Ack acknowledges one or more delivered entries.
	Ack(ctx context.Context, stream, group string, ids ...string) error

	// ListPending returns entries idle at least minIdle, for reclaim.
	ListPending(ctx context.Context, stream, group string, minIdle time.Duration, count int64) ([]PendingEntry, error)

	// Claim reassigns the named entries to consumer, returning their
	// decoded envelopes so the caller can reprocess them.
	Claim(ctx context.Context, stream, group, consumer string, minIdle time.Duration, ids ...string) ([]Message, error)
}

// Reclaim-loop defaults, documented in spec §6.
const (
	DefaultReclaimIdle     = 30 * time.Second
	DefaultReclaimInterval = 15 * time.Second
)
