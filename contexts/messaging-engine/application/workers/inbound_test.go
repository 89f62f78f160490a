package workers

import (
	"context"
	"testing"
	"time"

	"corehub/contexts/messaging-engine/adapters/memory"
	"corehub/contexts/messaging-engine/domain/entities"
	"corehub/contexts/messaging-engine/domain/services"
	"corehub/internal/platform/bus"
	"corehub/internal/shared/events"
)

func newInboundFixture(t *testing.T) (*InboundConsumer, *memory.Store, *bus.MemoryBus) {
	t.Helper()
	store := memory.NewStore()
	b := bus.NewMemoryBus()
	cfg := Config{ConsumerName: "test-consumer"}
	c := NewInboundConsumer(store, b, services.NewAutomationEngine(), cfg, nil)
	return c, store, b
}

func publishInboundMessage(t *testing.T, b *bus.MemoryBus, stream, tenantID, messageID, fromPhone, text string) {
	t.Helper()
	env := events.Envelope{
		EventID: messageID, EventType: events.EventMessageReceived, TenantID: tenantID,
		OccurredAt: time.Now().UTC(), Version: 1, CorrelationID: messageID,
		Payload: map[string]any{"message_id": messageID, "from_phone": fromPhone, "text": text},
	}
	if _, err := b.Publish(context.Background(), stream, env, 0); err != nil {
		t.Fatalf("unexpected error publishing fixture message: %v", err)
	}
}

func TestInboundWorkerOptOutPublishesOptedOutEvent(t *testing.T) {
	c, store, b := newInboundFixture(t)
	ctx := context.Background()

	if err := c.EnsureGroup(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	publishInboundMessage(t, b, c.cfg.InboundStream, "tenant-a", "wamid.1", "+15550001111", "please STOP messaging me")

	processed, err := c.RunOnce(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if processed != 1 {
		t.Fatalf("expected 1 processed, got %d", processed)
	}

	optedOut, err := store.IsOptedOut(ctx, "tenant-a", "+15550001111")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !optedOut {
		t.Fatal("expected the customer to be recorded as opted out")
	}

	if err := b.EnsureGroup(ctx, c.cfg.DomainStream, "test-readers", "0"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	entries, err := b.ReadGroup(ctx, c.cfg.DomainStream, "test-readers", "reader-1", 10, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 1 || entries[0].Envelope.EventType != events.EventOptedOut {
		t.Fatalf("expected 1 opted_out event, got %+v", entries)
	}
}

func TestInboundWorkerNewConversationQueuesWelcomeAutoReply(t *testing.T) {
	c, _, b := newInboundFixture(t)
	ctx := context.Background()

	if err := c.EnsureGroup(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	publishInboundMessage(t, b, c.cfg.InboundStream, "tenant-a", "wamid.2", "+15550002222", "hello there")

	if _, err := c.RunOnce(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := b.EnsureGroup(ctx, c.cfg.OutboundStream, "test-readers", "0"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	entries, err := b.ReadGroup(ctx, c.cfg.OutboundStream, "test-readers", "reader-1", 10, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 1 || entries[0].Envelope.EventType != events.EventMessageSendRequested {
		t.Fatalf("expected 1 queued auto-reply, got %+v", entries)
	}
	if kind, _ := entries[0].Envelope.Payload["kind"].(string); kind != sendKindInteractive {
		t.Fatalf("expected the welcome reply to carry buttons, got kind=%q", kind)
	}
}

func TestInboundWorkerIsIdempotentOnDuplicateProviderMessageID(t *testing.T) {
	c, _, b := newInboundFixture(t)
	ctx := context.Background()

	if err := c.EnsureGroup(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	publishInboundMessage(t, b, c.cfg.InboundStream, "tenant-a", "wamid.3", "+15550003333", "hi")
	if _, err := c.RunOnce(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Redeliver the same provider message id (e.g. a reclaim after a crash
	// right before the original ack).
	publishInboundMessage(t, b, c.cfg.InboundStream, "tenant-a", "wamid.3", "+15550003333", "hi")
	processed, err := c.RunOnce(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if processed != 1 {
		t.Fatalf("expected the duplicate to still be acked (skip-as-success), got %d processed", processed)
	}
}

func TestInboundWorkerDeliveryStatusUpdatesMessage(t *testing.T) {
	c, store, b := newInboundFixture(t)
	ctx := context.Background()

	conv, _, err := store.GetOrCreateConversation(ctx, "tenant-a", "+15550004444", "Jane")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	msg := &entities.Message{
		TenantID: "tenant-a", ConversationID: conv.ID, ProviderMessageID: "wamid.out.1",
		Direction: entities.DirectionOutbound, Status: entities.MessageStatusSent,
	}
	if err := store.CreateMessage(ctx, msg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := c.EnsureGroup(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	env := events.Envelope{
		EventID: "status-1", EventType: events.EventDeliveryStatusNoted, TenantID: "tenant-a",
		OccurredAt: time.Now().UTC(), CorrelationID: "wamid.out.1",
		Payload: map[string]any{"message_id": "wamid.out.1", "status": entities.MessageStatusDelivered},
	}
	if _, err := b.Publish(ctx, c.cfg.InboundStream, env, 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := c.RunOnce(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	updated, err := store.GetMessageByProviderID(ctx, "wamid.out.1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.Status != entities.MessageStatusDelivered {
		t.Fatalf("expected status updated to delivered, got %q", updated.Status)
	}
}
