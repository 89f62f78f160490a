package workers

import (
	"context"
	"testing"
	"time"

	"corehub/contexts/outbox-relay/adapters/memory"
	"corehub/contexts/outbox-relay/domain/services"
	"corehub/internal/platform/bus"
	"corehub/internal/shared/outbox"
)

func TestRunOnceDrainsPendingRowsAndMarksPublished(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore(nil)
	store.Insert(outbox.Row{ID: 1, EventID: "evt-1", TenantID: "t1", EventType: "sale_recorded", Vertical: "materials", Payload: []byte(`{"order_id":"ord-1"}`), CreatedAt: time.Now()})
	store.Insert(outbox.Row{ID: 2, EventID: "evt-2", TenantID: "t1", EventType: "sale_recorded", Vertical: "materials", Payload: []byte(`{"order_id":"ord-2"}`), CreatedAt: time.Now()})

	b := bus.NewMemoryBus()
	if err := b.EnsureGroup(ctx, "events:materials", "engines", "0"); err != nil {
		t.Fatalf("ensure group: %v", err)
	}

	relay := NewOutboxRelay(store, services.DefaultRouter{}, b, Config{BatchSize: 10}, nil)

	published, err := relay.RunOnce(ctx)
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	if published != 2 {
		t.Fatalf("expected 2 published, got %d", published)
	}

	for _, row := range store.Rows() {
		if row.PublishedAt == nil {
			t.Fatalf("row %d not marked published", row.ID)
		}
	}

	msgs, err := b.ReadGroup(ctx, "events:materials", "engines", "consumer-1", 10, time.Millisecond)
	if err != nil {
		t.Fatalf("read group: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages on stream, got %d", len(msgs))
	}
}

func TestRunOnceWithNoRowsIsANoOp(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore(nil)
	b := bus.NewMemoryBus()
	relay := NewOutboxRelay(store, services.DefaultRouter{}, b, Config{}, nil)

	published, err := relay.RunOnce(ctx)
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	if published != 0 {
		t.Fatalf("expected 0 published, got %d", published)
	}
}

func TestBackoffCapsAtMaxBackoff(t *testing.T) {
	relay := NewOutboxRelay(nil, services.DefaultRouter{}, nil, Config{PollIntervalEmpty: 10 * time.Second, MaxBackoff: 30 * time.Second}, nil)
	relay.consecutiveEmpty = 100
	if got := relay.backoff(); got != 30*time.Second {
		t.Fatalf("expected backoff capped at 30s, got %v", got)
	}
}
