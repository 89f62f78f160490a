// Package events defines the envelope shared by every stream in the
// pipeline: outbox relay output, engine consumption, and messaging
// inbound/outbound/domain traffic all marshal this one shape.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	v1 "corehub/contracts/gen/events/v1"
)

// EventType tags the shape of Payload. Consumers switch on it; an unknown
// value is never an error, only a no-op (the stream evolves ahead of
// individual consumers).
type EventType string

const (
	EventSaleRecorded       EventType = "sale_recorded"
	EventQuoteConverted     EventType = "quote_converted"
	EventOrderStatusChanged EventType = "order_status_changed"
	EventStockUpdated       EventType = "stock_updated"

	EventQuoteCreated      EventType = "quote_created"
	EventDeliveryStarted   EventType = "delivery_started"
	EventDeliveryCompleted EventType = "delivery_completed"

	EventActionRequested EventType = "action_requested"
	EventOptedOut        EventType = "opted_out"
	EventDeliveryFailed  EventType = "delivery_failed"

	EventMessageReceived      EventType = "message_received"
	EventDeliveryStatusNoted  EventType = "delivery_status_noted"
	EventMessageSendRequested EventType = "message_send_requested"
)

// MetadataRetryCount is the metadata key read by RetryCount and bumped by
// WithIncrementedRetry. The outbound worker does not use it; it counts
// delivery attempts from the stream's pending-entry delivery count.
const MetadataRetryCount = "retry_count"

// MetadataBusMessageID is the metadata key holding the stream entry id
// assigned by the bus after a read, used to ack/claim the right entry.
const MetadataBusMessageID = "bus_message_id"

// Envelope is the in-process, decoded form of the wire contract in
// corehub/contracts/gen/events/v1. Payload and Metadata are decoded maps;
// Encode/Decode convert to/from that contract as one JSON document. The
// Redis bus does not call them: it writes each envelope field as its own
// stream field.
type Envelope struct {
	EventID       string
	EventType     EventType
	TenantID      string
	Vertical      string
	OccurredAt    time.Time
	Version       int
	CorrelationID string
	Payload       map[string]any
	Metadata      map[string]any
}

// RetryCount reads metadata["retry_count"], defaulting to zero.
func (e *Envelope) RetryCount() int {
	if e.Metadata == nil {
		return 0
	}
	switch v := e.Metadata[MetadataRetryCount].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return 0
	}
}

// WithIncrementedRetry returns a shallow copy with retry_count bumped by one.
func (e Envelope) WithIncrementedRetry() Envelope {
	out := e
	out.Metadata = cloneMap(e.Metadata)
	out.Metadata[MetadataRetryCount] = e.RetryCount() + 1
	return out
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Encode renders the envelope into the canonical wire contract as one JSON
// document.
func (e Envelope) Encode() ([]byte, error) {
	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return nil, fmt.Errorf("events: encode payload: %w", err)
	}
	wire := v1.Envelope{
		EventID:       e.EventID,
		EventType:     string(e.EventType),
		TenantID:      e.TenantID,
		Vertical:      e.Vertical,
		OccurredAt:    e.OccurredAt.UTC(),
		Version:       e.Version,
		CorrelationID: e.CorrelationID,
		Payload:       payload,
		Metadata:      e.Metadata,
	}
	return json.Marshal(wire)
}

// Decode parses the canonical wire contract. Unknown fields in the source
// JSON are ignored by encoding/json already; this never fails on an
// unrecognized event_type, only on malformed JSON.
func Decode(raw []byte) (Envelope, error) {
	var wire v1.Envelope
	if err := json.Unmarshal(raw, &wire); err != nil {
		return Envelope{}, fmt.Errorf("events: decode: %w", err)
	}
	var payload map[string]any
	if len(wire.Payload) > 0 {
		if err := json.Unmarshal(wire.Payload, &payload); err != nil {
			return Envelope{}, fmt.Errorf("events: decode payload: %w", err)
		}
	}
	if payload == nil {
		payload = map[string]any{}
	}
	metadata := wire.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	return Envelope{
		EventID:       wire.EventID,
		EventType:     EventType(wire.EventType),
		TenantID:      wire.TenantID,
		Vertical:      wire.Vertical,
		OccurredAt:    wire.OccurredAt,
		Version:       wire.Version,
		CorrelationID: wire.CorrelationID,
		Payload:       payload,
		Metadata:      metadata,
	}, nil
}
