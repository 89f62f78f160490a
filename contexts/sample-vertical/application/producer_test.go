package application

import (
	"context"
	"encoding/json"
	"testing"

	"corehub/contexts/outbox-relay/adapters/memory"
	"corehub/internal/shared/events"
)

func TestRecordSaleAppendsSaleRecordedRow(t *testing.T) {
	store := memory.NewStore(nil)
	p := NewProducer(store)

	err := p.RecordSale(context.Background(), "tenant-a", "order-1", "client-1", []LineItem{
		{ProductID: "sku-1", Quantity: 2, UnitPrice: 10, TotalValue: 20},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rows := store.Rows()
	if len(rows) != 1 {
		t.Fatalf("expected 1 outbox row, got %d", len(rows))
	}
	if rows[0].EventType != string(events.EventSaleRecorded) {
		t.Fatalf("expected sale_recorded, got %q", rows[0].EventType)
	}
	if rows[0].Vertical != Vertical {
		t.Fatalf("expected vertical %q, got %q", Vertical, rows[0].Vertical)
	}

	var payload map[string]any
	if err := json.Unmarshal(rows[0].Payload, &payload); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if payload["order_id"] != "order-1" {
		t.Fatalf("expected order_id order-1, got %v", payload["order_id"])
	}
}

func TestRecordQuoteCreatedAppendsNotifiableEvent(t *testing.T) {
	store := memory.NewStore(nil)
	p := NewProducer(store)

	err := p.RecordQuoteCreated(context.Background(), "tenant-a", "+15550001111", "Jane", "Q-100", 49.99)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rows := store.Rows()
	if len(rows) != 1 {
		t.Fatalf("expected 1 outbox row, got %d", len(rows))
	}
	if rows[0].EventType != string(events.EventQuoteCreated) {
		t.Fatalf("expected quote_created, got %q", rows[0].EventType)
	}

	var payload map[string]any
	if err := json.Unmarshal(rows[0].Payload, &payload); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if payload["customer_phone"] != "+15550001111" {
		t.Fatalf("expected customer_phone preserved, got %v", payload["customer_phone"])
	}
}

func TestEachRecordedEventGetsItsOwnEventID(t *testing.T) {
	store := memory.NewStore(nil)
	p := NewProducer(store)

	if err := p.RecordOrderStatusChanged(context.Background(), "tenant-a", "+1555", "Jane", "ord-1", "shipped"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := p.RecordOrderStatusChanged(context.Background(), "tenant-a", "+1555", "Jane", "ord-1", "delivered"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rows := store.Rows()
	if len(rows) != 2 {
		t.Fatalf("expected 2 distinct outbox rows, got %d", len(rows))
	}
	if rows[0].EventID == rows[1].EventID {
		t.Fatalf("expected distinct event ids, both were %q", rows[0].EventID)
	}
}
