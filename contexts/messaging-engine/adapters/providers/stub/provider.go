// Package stub is a development WhatsApp provider that logs every
// operation instead of calling a real API, grounded on
// providers/stub/client.py's StubWhatsAppProvider.
package stub

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"time"

	"corehub/contexts/messaging-engine/ports"
	"corehub/internal/platform/logging"
)

// Provider is the stub adapter: every send logs and returns a fake id,
// every webhook is accepted, useful for local development and tests.
type Provider struct {
	logger *slog.Logger
}

// New builds a stub Provider.
func New(logger *slog.Logger) *Provider {
	return &Provider{logger: logging.Resolve(logger)}
}

func fakeID(prefix string) string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return prefix + "_" + hex.EncodeToString(buf)
}

func (p *Provider) SendText(_ context.Context, _ []byte, toPhone, text string) (ports.ProviderResponse, error) {
	id := fakeID("stub_msg")
	p.logger.Info("stub provider sending text", "to", toPhone, "message_id", id)
	return ports.ProviderResponse{Success: true, ProviderMessageID: id}, nil
}

func (p *Provider) SendTemplate(_ context.Context, _ []byte, toPhone, templateName string, _ map[string]string) (ports.ProviderResponse, error) {
	id := fakeID("stub_tmpl")
	p.logger.Info("stub provider sending template", "to", toPhone, "template", templateName, "message_id", id)
	return ports.ProviderResponse{Success: true, ProviderMessageID: id}, nil
}

func (p *Provider) SendInteractive(_ context.Context, _ []byte, toPhone, text string, buttons []ports.Button) (ports.ProviderResponse, error) {
	id := fakeID("stub_btn")
	p.logger.Info("stub provider sending interactive", "to", toPhone, "buttons", len(buttons), "message_id", id)
	return ports.ProviderResponse{Success: true, ProviderMessageID: id}, nil
}

func (p *Provider) MarkAsRead(_ context.Context, _ []byte, providerMessageID string) error {
	p.logger.Debug("stub provider marking as read", "message_id", providerMessageID)
	return nil
}

func (p *Provider) GetMediaURL(_ context.Context, _ []byte, mediaID string) (string, error) {
	p.logger.Debug("stub provider resolving media url", "media_id", mediaID)
	return "https://stub.whatsapp.local/media/" + mediaID, nil
}

// ValidateWebhookSignature always accepts in stub mode.
func (p *Provider) ValidateWebhookSignature(_ []byte, _ string, _ []byte) bool {
	p.logger.Debug("stub provider accepting webhook signature")
	return true
}

// ParseWebhook accepts a simplified {"from", "text", "message_id"} shape
// first, falling back to the full Meta-Cloud shape so the stub can also
// replay captured production payloads in tests.
func (p *Provider) ParseWebhook(payload []byte) ([]ports.InboundMessage, []ports.DeliveryStatus, error) {
	var generic map[string]any
	if err := json.Unmarshal(payload, &generic); err != nil {
		return nil, nil, err
	}

	fromVal, hasFrom := generic["from"].(string)
	textVal, hasText := generic["text"].(string)
	if hasFrom && hasText {
		msg := ports.InboundMessage{
			MessageID:         stringOr(generic["message_id"], fakeID("stub_in")),
			FromPhone:         fromVal,
			ToPhone:           stringOr(generic["to"], "+5511888888888"),
			RoutingIdentifier: stringOr(generic["phone_number_id"], "stub_phone_id"),
			MessageType:       "text",
			Timestamp:         time.Now().UTC(),
			Text:              textVal,
			ContactName:       stringOr(generic["name"], ""),
			RawPayload:        generic,
		}
		return []ports.InboundMessage{msg}, nil, nil
	}

	return parseMetaLikeShape(generic)
}

func stringOr(v any, fallback string) string {
	if s, ok := v.(string); ok && s != "" {
		return s
	}
	return fallback
}

func parseMetaLikeShape(payload map[string]any) ([]ports.InboundMessage, []ports.DeliveryStatus, error) {
	var messages []ports.InboundMessage
	var statuses []ports.DeliveryStatus

	entries, _ := payload["entry"].([]any)
	for _, e := range entries {
		entry, _ := e.(map[string]any)
		changes, _ := entry["changes"].([]any)
		for _, c := range changes {
			change, _ := c.(map[string]any)
			value, _ := change["value"].(map[string]any)
			metadata, _ := value["metadata"].(map[string]any)

			msgList, _ := value["messages"].([]any)
			for _, m := range msgList {
				msgData, _ := m.(map[string]any)
				if msg := parseMessage(metadata, value, msgData); msg != nil {
					messages = append(messages, *msg)
				}
			}

			statusList, _ := value["statuses"].([]any)
			for _, st := range statusList {
				statusData, _ := st.(map[string]any)
				if status := parseStatus(statusData); status != nil {
					statuses = append(statuses, *status)
				}
			}
		}
	}

	return messages, statuses, nil
}

func parseMessage(metadata, value, msgData map[string]any) *ports.InboundMessage {
	if msgData == nil {
		return nil
	}
	msgType := stringOr(msgData["type"], "text")
	var text string
	if msgType == "text" {
		if textObj, ok := msgData["text"].(map[string]any); ok {
			text = stringOr(textObj["body"], "")
		}
	}

	var contactName string
	if contacts, ok := value["contacts"].([]any); ok && len(contacts) > 0 {
		if contact, ok := contacts[0].(map[string]any); ok {
			if profile, ok := contact["profile"].(map[string]any); ok {
				contactName = stringOr(profile["name"], "")
			}
		}
	}

	var contextMessageID string
	if ctxObj, ok := msgData["context"].(map[string]any); ok {
		contextMessageID = stringOr(ctxObj["id"], "")
	}

	return &ports.InboundMessage{
		MessageID:         stringOr(msgData["id"], fakeID("stub")),
		FromPhone:         stringOr(msgData["from"], ""),
		ToPhone:           stringOr(metadata["display_phone_number"], ""),
		RoutingIdentifier: stringOr(metadata["phone_number_id"], "stub_phone_id"),
		MessageType:       msgType,
		Timestamp:         time.Now().UTC(),
		Text:              text,
		ContactName:       contactName,
		ContextMessageID:  contextMessageID,
		RawPayload:        msgData,
	}
}

func parseStatus(statusData map[string]any) *ports.DeliveryStatus {
	if statusData == nil {
		return nil
	}
	var errorCode, errorMessage string
	if errs, ok := statusData["errors"].([]any); ok && len(errs) > 0 {
		if first, ok := errs[0].(map[string]any); ok {
			errorCode = stringOr(first["code"], "")
			errorMessage = stringOr(first["message"], "")
		}
	}
	return &ports.DeliveryStatus{
		MessageID:      stringOr(statusData["id"], ""),
		RecipientPhone: stringOr(statusData["recipient_id"], ""),
		Status:         stringOr(statusData["status"], ""),
		Timestamp:      time.Now().UTC(),
		ErrorCode:      errorCode,
		ErrorMessage:   errorMessage,
		RawPayload:     statusData,
	}
}

// VerifyWebhookChallenge accepts any subscribe-mode verification in stub
// mode, regardless of the expected token.
func (p *Provider) VerifyWebhookChallenge(mode, _, challenge, _ string) (string, bool) {
	if mode == "subscribe" {
		p.logger.Info("stub provider accepting webhook verification challenge")
		return challenge, true
	}
	return "", false
}
