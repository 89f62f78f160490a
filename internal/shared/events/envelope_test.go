package events

import (
	"testing"
	"time"
)

func TestEnvelopeEncodeDecodeRoundTrip(t *testing.T) {
	in := Envelope{
		EventID:       "evt-1",
		EventType:     EventSaleRecorded,
		TenantID:      "tenant-a",
		Vertical:      "materials",
		OccurredAt:    time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Version:       1,
		CorrelationID: "corr-1",
		Payload:       map[string]any{"order_id": "ord-1"},
		Metadata:      map[string]any{"retry_count": 0},
	}

	raw, err := in.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	out, err := Decode(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	if out.EventID != in.EventID || out.EventType != in.EventType || out.TenantID != in.TenantID {
		t.Fatalf("round trip mismatch: got %+v", out)
	}
	if out.Payload["order_id"] != "ord-1" {
		t.Fatalf("payload not preserved: %+v", out.Payload)
	}
	if out.RetryCount() != 0 {
		t.Fatalf("expected retry_count 0, got %d", out.RetryCount())
	}
}

func TestWithIncrementedRetry(t *testing.T) {
	e := Envelope{Metadata: map[string]any{"retry_count": 2}}
	bumped := e.WithIncrementedRetry()
	if bumped.RetryCount() != 3 {
		t.Fatalf("expected retry_count 3, got %d", bumped.RetryCount())
	}
	if e.RetryCount() != 2 {
		t.Fatalf("original envelope mutated: %d", e.RetryCount())
	}
}

func TestDecodeUnknownEventTypeIsNotAnError(t *testing.T) {
	in := Envelope{EventID: "evt-2", EventType: EventType("future_event"), Payload: map[string]any{}}
	raw, err := in.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out, err := Decode(raw)
	if err != nil {
		t.Fatalf("decode should not fail on unknown event_type: %v", err)
	}
	if out.EventType != "future_event" {
		t.Fatalf("expected event type preserved, got %q", out.EventType)
	}
}
