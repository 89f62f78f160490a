package bus

import (
	"context"
	"testing"
	"time"

	"corehub/internal/shared/events"
)

func TestMemoryBusPublishReadAck(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBus()
	if err := b.EnsureGroup(ctx, "events:materials", "engines", "0"); err != nil {
		t.Fatalf("ensure group: %v", err)
	}
	if err := b.EnsureGroup(ctx, "events:materials", "engines", "0"); err != nil {
		t.Fatalf("ensure group idempotent: %v", err)
	}

	env := events.Envelope{EventID: "evt-1", EventType: events.EventSaleRecorded, TenantID: "t1", Payload: map[string]any{}, Metadata: map[string]any{}}
	if _, err := b.Publish(ctx, "events:materials", env, 0); err != nil {
		t.Fatalf("publish: %v", err)
	}

	msgs, err := b.ReadGroup(ctx, "events:materials", "engines", "consumer-1", 10, time.Millisecond)
	if err != nil {
		t.Fatalf("read group: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	if msgs[0].Envelope.EventID != "evt-1" {
		t.Fatalf("unexpected envelope: %+v", msgs[0].Envelope)
	}

	more, err := b.ReadGroup(ctx, "events:materials", "engines", "consumer-1", 10, time.Millisecond)
	if err != nil {
		t.Fatalf("read group again: %v", err)
	}
	if len(more) != 0 {
		t.Fatalf("expected no new messages, got %d", len(more))
	}

	if err := b.Ack(ctx, "events:materials", "engines", msgs[0].ID); err != nil {
		t.Fatalf("ack: %v", err)
	}

	pending, err := b.ListPending(ctx, "events:materials", "engines", 0, 10)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("expected no pending after ack, got %d", len(pending))
	}
}

func TestMemoryBusClaimReassignsStalePendingEntry(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBus()
	if err := b.EnsureGroup(ctx, "events:materials", "engines", "0"); err != nil {
		t.Fatalf("ensure group: %v", err)
	}

	env := events.Envelope{EventID: "evt-1", Payload: map[string]any{}, Metadata: map[string]any{}}
	if _, err := b.Publish(ctx, "events:materials", env, 0); err != nil {
		t.Fatalf("publish: %v", err)
	}
	msgs, err := b.ReadGroup(ctx, "events:materials", "engines", "consumer-a", 10, time.Millisecond)
	if err != nil || len(msgs) != 1 {
		t.Fatalf("read group: %v %d", err, len(msgs))
	}

	pending, err := b.ListPending(ctx, "events:materials", "engines", 0, 10)
	if err != nil || len(pending) != 1 {
		t.Fatalf("list pending: %v %d", err, len(pending))
	}

	claimed, err := b.Claim(ctx, "events:materials", "engines", "consumer-b", 0, pending[0].ID)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if len(claimed) != 1 || claimed[0].Envelope.EventID != "evt-1" {
		t.Fatalf("unexpected claim result: %+v", claimed)
	}

	pendingAfter, err := b.ListPending(ctx, "events:materials", "engines", 0, 10)
	if err != nil || len(pendingAfter) != 1 || pendingAfter[0].Consumer != "consumer-b" {
		t.Fatalf("expected entry reassigned to consumer-b: %+v", pendingAfter)
	}
}
