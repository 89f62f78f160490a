package workers

import (
	"context"
	"testing"
	"time"

	"corehub/contexts/messaging-engine/domain/services"
	"corehub/internal/platform/bus"
	"corehub/internal/shared/events"
)

func newNotifierFixture() (*NotifierConsumer, *bus.MemoryBus) {
	b := bus.NewMemoryBus()
	cfg := Config{ConsumerName: "test-consumer"}
	c := NewNotifierConsumer(b, services.NewTemplateRegistry(), cfg, nil)
	return c, b
}

func TestNotifierWorkerMapsQuoteCreatedToOutboundTemplateSend(t *testing.T) {
	c, b := newNotifierFixture()
	ctx := context.Background()

	if err := c.EnsureGroup(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	env := events.Envelope{
		EventID: "quote-1", EventType: events.EventQuoteCreated, TenantID: "tenant-a",
		OccurredAt: time.Now().UTC(), CorrelationID: "quote-1",
		Payload: map[string]any{
			"customer_phone": "+15550001111", "customer_name": "Jane",
			"quote_number": "Q-100", "total_value": "49.99",
		},
	}
	if _, err := b.Publish(ctx, c.cfg.DomainStream, env, 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	processed, err := c.RunOnce(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if processed != 1 {
		t.Fatalf("expected 1 processed, got %d", processed)
	}

	if err := b.EnsureGroup(ctx, c.cfg.OutboundStream, "test-readers", "0"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	entries, err := b.ReadGroup(ctx, c.cfg.OutboundStream, "test-readers", "reader-1", 10, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 queued notification send, got %d", len(entries))
	}
	if name, _ := entries[0].Envelope.Payload["template_name"].(string); name != "quote_created_template" {
		t.Fatalf("expected the quote_created_template, got %q", name)
	}
}

func TestNotifierWorkerIgnoresNonAllowListedEventTypes(t *testing.T) {
	c, b := newNotifierFixture()
	ctx := context.Background()

	if err := c.EnsureGroup(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	env := events.Envelope{
		EventID: "stock-1", EventType: events.EventStockUpdated, TenantID: "tenant-a",
		OccurredAt: time.Now().UTC(), Payload: map[string]any{"customer_phone": "+15550001111"},
	}
	if _, err := b.Publish(ctx, c.cfg.DomainStream, env, 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	processed, err := c.RunOnce(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if processed != 1 {
		t.Fatalf("expected the entry to still count as acked/processed, got %d", processed)
	}

	if err := b.EnsureGroup(ctx, c.cfg.OutboundStream, "test-readers", "0"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	entries, err := b.ReadGroup(ctx, c.cfg.OutboundStream, "test-readers", "reader-1", 10, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected no outbound send queued for a non-allow-listed event, got %d", len(entries))
	}
}

func TestNotifierWorkerSkipsWhenRequiredParameterMissing(t *testing.T) {
	c, b := newNotifierFixture()
	ctx := context.Background()

	if err := c.EnsureGroup(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	env := events.Envelope{
		EventID: "quote-2", EventType: events.EventQuoteCreated, TenantID: "tenant-a",
		OccurredAt: time.Now().UTC(),
		Payload:    map[string]any{"customer_phone": "+15550001111"}, // missing customer_name etc.
	}
	if _, err := b.Publish(ctx, c.cfg.DomainStream, env, 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

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
	if len(entries) != 0 {
		t.Fatalf("expected no send queued when a required template parameter is missing, got %d", len(entries))
	}
}
