package stub

import (
	"context"
	"testing"
)

func TestSendTextReturnsSuccessWithFakeID(t *testing.T) {
	p := New(nil)

	resp, err := p.SendText(context.Background(), nil, "+15550001111", "hello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !resp.Success || resp.ProviderMessageID == "" {
		t.Fatalf("expected success with a fake message id, got %+v", resp)
	}
}

func TestParseWebhookSimplifiedShape(t *testing.T) {
	p := New(nil)

	payload := []byte(`{"from": "+15550002222", "text": "hi there", "message_id": "abc123"}`)
	messages, statuses, err := p.ParseWebhook(payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(statuses) != 0 {
		t.Fatalf("expected no statuses, got %d", len(statuses))
	}
	if len(messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(messages))
	}
	if messages[0].FromPhone != "+15550002222" || messages[0].Text != "hi there" || messages[0].MessageID != "abc123" {
		t.Fatalf("unexpected parsed message: %+v", messages[0])
	}
}

func TestParseWebhookMetaLikeShapeFallback(t *testing.T) {
	p := New(nil)

	payload := []byte(`{
		"entry": [{
			"changes": [{
				"value": {
					"metadata": {"phone_number_id": "pid1", "display_phone_number": "+15550003333"},
					"messages": [{"id": "wamid.1", "from": "+15550004444", "type": "text", "text": {"body": "ping"}}]
				}
			}]
		}]
	}`)

	messages, _, err := p.ParseWebhook(payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(messages))
	}
	if messages[0].RoutingIdentifier != "pid1" || messages[0].Text != "ping" {
		t.Fatalf("unexpected parsed message: %+v", messages[0])
	}
}

func TestVerifyWebhookChallengeAcceptsAnySubscribe(t *testing.T) {
	p := New(nil)

	challenge, ok := p.VerifyWebhookChallenge("subscribe", "anything", "echo-me", "expected-token-ignored")
	if !ok || challenge != "echo-me" {
		t.Fatalf("expected stub to accept any subscribe verification, got %q/%v", challenge, ok)
	}

	if _, ok := p.VerifyWebhookChallenge("unsubscribe", "x", "y", "z"); ok {
		t.Fatal("expected non-subscribe mode to be rejected")
	}
}

func TestValidateWebhookSignatureAlwaysAccepts(t *testing.T) {
	p := New(nil)
	if !p.ValidateWebhookSignature([]byte("anything"), "", nil) {
		t.Fatal("stub provider must always accept webhook signatures")
	}
}
