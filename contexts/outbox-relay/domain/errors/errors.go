// Package errors holds the outbox relay's sentinel errors. Adapters
// translate infrastructure errors into these at the boundary.
package errors

import "errors"

var (
	// ErrNoRows names the empty-batch case. No adapter returns it:
	// ClaimBatch reports an empty batch as zero rows with a nil error.
	ErrNoRows = errors.New("outbox-relay: no unpublished rows")
)
