package cloudapi

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"
)

func signatureFor(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func TestValidateWebhookSignatureAcceptsCorrectDigest(t *testing.T) {
	p := New(nil)
	secret := []byte("app-secret")
	body := []byte(`{"object":"whatsapp_business_account"}`)

	if !p.ValidateWebhookSignature(body, signatureFor(secret, body), secret) {
		t.Fatal("expected a correctly computed signature to validate")
	}
}

func TestValidateWebhookSignatureRejectsTamperedBody(t *testing.T) {
	p := New(nil)
	secret := []byte("app-secret")
	body := []byte(`{"object":"whatsapp_business_account"}`)
	sig := signatureFor(secret, body)

	if p.ValidateWebhookSignature([]byte(`{"object":"tampered"}`), sig, secret) {
		t.Fatal("expected a tampered body to fail signature validation")
	}
}

func TestValidateWebhookSignatureRejectsMissingOrMalformedHeader(t *testing.T) {
	p := New(nil)
	secret := []byte("app-secret")
	body := []byte(`{}`)

	if p.ValidateWebhookSignature(body, "", secret) {
		t.Fatal("expected missing signature header to be rejected")
	}
	if p.ValidateWebhookSignature(body, "not-sha256=abc", secret) {
		t.Fatal("expected a header without the sha256= prefix to be rejected")
	}
}

func TestParseWebhookExtractsMessagesAndStatuses(t *testing.T) {
	p := New(nil)
	payload := []byte(`{
		"object": "whatsapp_business_account",
		"entry": [{
			"changes": [{
				"field": "messages",
				"value": {
					"metadata": {"phone_number_id": "pid1", "display_phone_number": "+15550001111"},
					"contacts": [{"profile": {"name": "Jane"}}],
					"messages": [{"id": "wamid.1", "from": "+15550002222", "type": "text", "text": {"body": "quote please"}}],
					"statuses": [{"id": "wamid.2", "recipient_id": "+15550003333", "status": "delivered"}]
				}
			}]
		}]
	}`)

	messages, statuses, err := p.ParseWebhook(payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(messages) != 1 || messages[0].Text != "quote please" || messages[0].ContactName != "Jane" {
		t.Fatalf("unexpected messages: %+v", messages)
	}
	if len(statuses) != 1 || statuses[0].Status != "delivered" {
		t.Fatalf("unexpected statuses: %+v", statuses)
	}
}

func TestParseWebhookRejectsNonCloudAPIShape(t *testing.T) {
	p := New(nil)
	_, _, err := p.ParseWebhook([]byte(`{"event": "messages.upsert", "instance": "evo1"}`))
	if err == nil {
		t.Fatal("expected an error for a non-Cloud-API-shaped payload")
	}
}

func TestVerifyWebhookChallengeRequiresMatchingToken(t *testing.T) {
	p := New(nil)

	challenge, ok := p.VerifyWebhookChallenge("subscribe", "correct-token", "echo-me", "correct-token")
	if !ok || challenge != "echo-me" {
		t.Fatalf("expected matching token to verify, got %q/%v", challenge, ok)
	}

	if _, ok := p.VerifyWebhookChallenge("subscribe", "wrong-token", "echo-me", "correct-token"); ok {
		t.Fatal("expected mismatched token to be rejected")
	}
}
