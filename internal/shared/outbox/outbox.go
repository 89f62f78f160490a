// Package outbox defines the shared outbox row shape (E2): rows persisted
// inside the same transaction as a domain change, drained by the relay.
package outbox

import "time"

// Status values for a Row's lifecycle. Rows are written as pending; the
// relay records a publish by setting PublishedAt and leaves Status as it
// is. No code in this repository sets processing, processed or failed.
const (
	StatusPending   = "pending"
	StatusProcessing = "processing"
	StatusProcessed = "processed"
	StatusFailed    = "failed"
)

// Row is a durable outbox entry: one row per domain event, inserted in the
// same transaction as the state change that produced it.
type Row struct {
	ID           int64
	EventID      string
	TenantID     string
	EventType    string
	Vertical     string
	Payload      []byte // JSON
	Version      int
	Status       string
	CreatedAt    time.Time
	PublishedAt  *time.Time
	FailedAt     *time.Time
	ErrorMessage string
	RetryCount   int
}
