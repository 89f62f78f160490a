// Package errors defines the sentinel errors the engine platform's domain
// layer returns, mirroring the flat sentinel style used across this
// repository's bounded contexts.
package errors

import "errors"

// ErrAlreadyProcessed is returned by the idempotency guard when an event_id
// has already been recorded in engine_processed_events; callers treat this
// as a successful no-op, never a failure.
var ErrAlreadyProcessed = errors.New("engine-platform: event already processed")

// ErrNoSalesHistory signals a product has no sales facts in the lookback
// window, so no stock alert can be computed.
var ErrNoSalesHistory = errors.New("engine-platform: no sales history for product")
