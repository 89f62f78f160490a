package http

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"corehub/contexts/messaging-engine/adapters/memory"
	"corehub/contexts/messaging-engine/adapters/providers"
	"corehub/contexts/messaging-engine/adapters/providers/stub"
	"corehub/contexts/messaging-engine/domain/entities"
	"corehub/contexts/messaging-engine/ports"
	"corehub/internal/platform/bus"
)

func newTestHandler() (*Handler, *memory.Store, *bus.MemoryBus) {
	store := memory.NewStore()
	b := bus.NewMemoryBus()
	reg := providers.NewRegistry(map[string]ports.Provider{
		entities.ProviderCloudAPI: stub.New(nil),
	})
	h := NewHandler(store, reg, b, Config{
		InboundStream: "messaging.inbound",
		StreamMaxLen:  1000,
		VerifyToken:   "verify-me",
		WebhookSecret: "app-secret",
	}, nil)
	return h, store, b
}

func TestHandleVerificationEchoesChallengeOnMatch(t *testing.T) {
	h, _, _ := newTestHandler()

	q := url.Values{"hub.mode": {"subscribe"}, "hub.verify_token": {"verify-me"}, "hub.challenge": {"12345"}}
	req := httptest.NewRequest(http.MethodGet, "/webhook?"+q.Encode(), nil)
	rec := httptest.NewRecorder()

	h.serve(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Body.String() != "12345" {
		t.Fatalf("expected challenge echoed back, got %q", rec.Body.String())
	}
}

func TestHandleVerificationRejectsWrongToken(t *testing.T) {
	h, _, _ := newTestHandler()

	q := url.Values{"hub.mode": {"subscribe"}, "hub.verify_token": {"wrong"}, "hub.challenge": {"12345"}}
	req := httptest.NewRequest(http.MethodGet, "/webhook?"+q.Encode(), nil)
	rec := httptest.NewRecorder()

	h.serve(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

const metaLikePayload = `{
	"object": "whatsapp_business_account",
	"entry": [{
		"changes": [{
			"value": {
				"metadata": {"phone_number_id": "pid1", "display_phone_number": "+15550003333"},
				"messages": [{"id": "wamid.1", "from": "+15550004444", "type": "text", "text": {"body": "quote please"}}]
			}
		}]
	}]
}`

func TestHandleReceiptPublishesInboundMessageAndReturns200(t *testing.T) {
	h, store, b := newTestHandler()
	ctx := newTestRequest(t).Context()

	if err := store.CreateBinding(ctx, &entities.TenantBinding{
		TenantID: "tenant-a", Provider: entities.ProviderCloudAPI, RoutingIdentifier: "pid1", IsActive: true,
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	request := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader([]byte(metaLikePayload)))
	rec := httptest.NewRecorder()

	h.serve(rec, request)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	if err := b.EnsureGroup(ctx, "messaging.inbound", "test-group", "0"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	entries, err := b.ReadGroup(ctx, "messaging.inbound", "test-group", "test-consumer", 10, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 published envelope, got %d", len(entries))
	}
	if entries[0].Envelope.CorrelationID != "wamid.1" {
		t.Fatalf("expected correlation id to be the provider message id, got %q", entries[0].Envelope.CorrelationID)
	}
	if entries[0].Envelope.TenantID != "tenant-a" {
		t.Fatalf("expected the envelope to carry the resolved tenant id, got %q", entries[0].Envelope.TenantID)
	}
}

func TestHandleReceiptReturns200EvenWithoutAMatchingBinding(t *testing.T) {
	h, _, b := newTestHandler()
	ctx := newTestRequest(t).Context()

	request := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader([]byte(metaLikePayload)))
	rec := httptest.NewRecorder()

	h.serve(rec, request)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 even when no tenant binding matches, got %d", rec.Code)
	}

	if err := b.EnsureGroup(ctx, "messaging.inbound", "test-group-2", "0"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	entries, err := b.ReadGroup(ctx, "messaging.inbound", "test-group-2", "test-consumer", 10, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected the message to still publish with an empty tenant id, got %d", len(entries))
	}
}

func TestHandleReceiptReturns400OnMalformedJSON(t *testing.T) {
	h, _, _ := newTestHandler()

	request := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader([]byte("not json")))
	rec := httptest.NewRecorder()

	h.serve(rec, request)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func newTestRequest(t *testing.T) *http.Request {
	t.Helper()
	return httptest.NewRequest(http.MethodGet, "/", nil)
}
