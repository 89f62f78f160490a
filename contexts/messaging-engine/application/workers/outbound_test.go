package workers

import (
	"context"
	"testing"
	"time"

	"corehub/contexts/messaging-engine/adapters/memory"
	"corehub/contexts/messaging-engine/adapters/providers"
	"corehub/contexts/messaging-engine/domain/entities"
	"corehub/contexts/messaging-engine/ports"
	"corehub/internal/platform/bus"
	"corehub/internal/platform/crypto"
	"corehub/internal/shared/events"
)

type fakeProvider struct {
	response ports.ProviderResponse
	err      error
	calls    int
}

func (f *fakeProvider) SendText(context.Context, []byte, string, string) (ports.ProviderResponse, error) {
	f.calls++
	return f.response, f.err
}
func (f *fakeProvider) SendTemplate(context.Context, []byte, string, string, map[string]string) (ports.ProviderResponse, error) {
	f.calls++
	return f.response, f.err
}
func (f *fakeProvider) SendInteractive(context.Context, []byte, string, string, []ports.Button) (ports.ProviderResponse, error) {
	f.calls++
	return f.response, f.err
}
func (f *fakeProvider) MarkAsRead(context.Context, []byte, string) error { return nil }
func (f *fakeProvider) GetMediaURL(context.Context, []byte, string) (string, error) {
	return "", nil
}
func (f *fakeProvider) ValidateWebhookSignature([]byte, string, []byte) bool { return true }
func (f *fakeProvider) ParseWebhook([]byte) ([]ports.InboundMessage, []ports.DeliveryStatus, error) {
	return nil, nil, nil
}
func (f *fakeProvider) VerifyWebhookChallenge(mode, token, challenge, expected string) (string, bool) {
	return "", false
}

func newOutboundFixture(t *testing.T, provider ports.Provider) (*OutboundConsumer, *memory.Store, *bus.MemoryBus) {
	t.Helper()
	store := memory.NewStore()
	b := bus.NewMemoryBus()
	keyring, err := crypto.NewKeyRing([]byte("0123456789abcdef0123456789abcdef"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	reg := providers.NewRegistry(map[string]ports.Provider{entities.ProviderStub: provider})
	cfg := Config{ConsumerName: "test-consumer", MaxRetries: 3, ReclaimIdle: time.Nanosecond}
	c := NewOutboundConsumer(store, b, keyring, reg, cfg, nil)
	return c, store, b
}

func seedBinding(t *testing.T, store *memory.Store, keyring *crypto.KeyRing, tenantID string) {
	t.Helper()
	encrypted, err := keyring.Encrypt([]byte("fake-credential"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := store.CreateBinding(context.Background(), &entities.TenantBinding{
		TenantID: tenantID, Provider: entities.ProviderStub, RoutingIdentifier: "route-1",
		IsActive: true, EncryptedCredential: encrypted,
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func publishSendRequest(t *testing.T, b *bus.MemoryBus, stream, tenantID, eventID, toPhone, text string) {
	t.Helper()
	req := sendRequest{ToPhone: toPhone, Kind: sendKindText, Text: text, TriggeringEventID: eventID}
	env := events.Envelope{
		EventID: eventID, EventType: events.EventMessageSendRequested, TenantID: tenantID,
		OccurredAt: time.Now().UTC(), CorrelationID: eventID, Payload: req.toPayload(), Metadata: map[string]any{},
	}
	if _, err := b.Publish(context.Background(), stream, env, 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestOutboundWorkerSendsSuccessfullyAndUpdatesMessage(t *testing.T) {
	provider := &fakeProvider{response: ports.ProviderResponse{Success: true, ProviderMessageID: "wamid.sent.1"}}
	c, store, b := newOutboundFixture(t, provider)
	ctx := context.Background()

	keyring, _ := crypto.NewKeyRing([]byte("0123456789abcdef0123456789abcdef"))
	seedBinding(t, store, keyring, "tenant-a")

	if err := c.EnsureGroup(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	publishSendRequest(t, b, c.cfg.OutboundStream, "tenant-a", "evt-1", "+15550001111", "hello")

	processed, err := c.RunOnce(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if processed != 1 {
		t.Fatalf("expected 1 processed, got %d", processed)
	}

	msg, err := store.GetMessageByProviderID(ctx, "wamid.sent.1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg == nil || msg.Status != entities.MessageStatusSent {
		t.Fatalf("expected a sent message row, got %+v", msg)
	}
}

func TestOutboundWorkerSkipsOptedOutRecipient(t *testing.T) {
	provider := &fakeProvider{response: ports.ProviderResponse{Success: true}}
	c, store, b := newOutboundFixture(t, provider)
	ctx := context.Background()

	keyring, _ := crypto.NewKeyRing([]byte("0123456789abcdef0123456789abcdef"))
	seedBinding(t, store, keyring, "tenant-a")
	if err := store.CreateOptOut(ctx, &entities.OptOut{TenantID: "tenant-a", CustomerPhone: "+15550002222", Reason: "stop"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := c.EnsureGroup(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	publishSendRequest(t, b, c.cfg.OutboundStream, "tenant-a", "evt-2", "+15550002222", "hello")

	processed, err := c.RunOnce(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if processed != 1 {
		t.Fatalf("expected the skipped entry to still be acked, got %d processed", processed)
	}
	if provider.calls != 0 {
		t.Fatalf("expected the provider never to be called for an opted-out recipient, got %d calls", provider.calls)
	}
}

func TestOutboundWorkerLeavesRetryableFailureUnackedForReclaim(t *testing.T) {
	provider := &fakeProvider{response: ports.ProviderResponse{Success: false, Retryable: true, ErrorCode: "rate_limited"}}
	c, store, b := newOutboundFixture(t, provider)
	ctx := context.Background()

	keyring, _ := crypto.NewKeyRing([]byte("0123456789abcdef0123456789abcdef"))
	seedBinding(t, store, keyring, "tenant-a")

	if err := c.EnsureGroup(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	publishSendRequest(t, b, c.cfg.OutboundStream, "tenant-a", "evt-3", "+15550003333", "hello")

	processed, err := c.RunOnce(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if processed != 0 {
		t.Fatalf("expected the retryable failure to stay unacked, got %d processed", processed)
	}

	pending, err := b.ListPending(ctx, c.cfg.OutboundStream, c.cfg.EngineGroup, 0, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("expected the entry to still be pending its own group, got %d", len(pending))
	}

	msg, err := store.GetMessageByTriggeringEventID(ctx, "tenant-a", "evt-3")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg == nil || msg.Status != entities.MessageStatusFailed {
		t.Fatalf("expected one failed message row, got %+v", msg)
	}

	// A reclaim before the entry redelivers must update that same row, not
	// insert a second one.
	processed, err = c.RunReclaim(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if processed != 0 {
		t.Fatalf("expected the reclaimed retry to still be under budget and unacked, got %d processed", processed)
	}

	conv, err := store.GetConversation(ctx, "tenant-a", "+15550003333")
	if err != nil || conv == nil {
		t.Fatalf("expected a conversation to exist: %v", err)
	}
	recent, err := store.GetRecentMessages(ctx, conv.ID, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(recent) != 1 {
		t.Fatalf("expected exactly one message row across the original attempt and its reclaim, got %d", len(recent))
	}
}

func TestOutboundWorkerSendsToDLQAfterMaxRetries(t *testing.T) {
	provider := &fakeProvider{response: ports.ProviderResponse{Success: false, Retryable: true, ErrorCode: "rate_limited"}}
	c, store, b := newOutboundFixture(t, provider)
	ctx := context.Background()

	keyring, _ := crypto.NewKeyRing([]byte("0123456789abcdef0123456789abcdef"))
	seedBinding(t, store, keyring, "tenant-a")

	if err := c.EnsureGroup(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	publishSendRequest(t, b, c.cfg.OutboundStream, "tenant-a", "evt-4", "+15550004444", "hello")

	if _, err := c.RunOnce(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// c.cfg.MaxRetries is 3: the RunOnce attempt above is attempt 1, the
	// first reclaim below is attempt 2 (still under budget), and the
	// second reclaim is attempt 3 — the terminal one.
	if _, err := c.RunReclaim(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	processed, err := c.RunReclaim(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if processed != 1 {
		t.Fatalf("expected the exhausted-retry entry to be acked to the DLQ, got %d processed", processed)
	}

	if err := b.EnsureGroup(ctx, c.cfg.DLQStream, "test-readers", "0"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	entries, err := b.ReadGroup(ctx, c.cfg.DLQStream, "test-readers", "reader-1", 10, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected the exhausted-retry entry to land on the DLQ stream, got %d", len(entries))
	}

	pending, err := b.ListPending(ctx, c.cfg.OutboundStream, c.cfg.EngineGroup, 0, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("expected no pending entries left once the retry budget is exhausted, got %d", len(pending))
	}
}
