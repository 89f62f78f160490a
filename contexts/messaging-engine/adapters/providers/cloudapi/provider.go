// Package cloudapi is the Meta WhatsApp Cloud API provider adapter: it
// sends messages over the Graph API and parses/validates Cloud-API-shaped
// webhooks, grounded on providers/meta_cloud/{webhook.py,templates.py} and
// the stub adapter's parse_webhook fallback shape.
package cloudapi

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"corehub/contexts/messaging-engine/ports"
	"corehub/internal/platform/logging"
)

const graphAPIBase = "https://graph.facebook.com/v20.0"

// Provider is the Meta Cloud API adapter. The routing identifier it sends
// against (phone_number_id) is carried in credential, alongside the access
// token, as "phone_number_id:access_token" — decrypted once per send from
// the tenant binding's encrypted credential.
type Provider struct {
	httpClient *http.Client
	logger     *slog.Logger
}

// New builds a Meta Cloud API Provider.
func New(logger *slog.Logger) *Provider {
	return &Provider{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		logger:     logging.Resolve(logger),
	}
}

func splitCredential(credential []byte) (phoneNumberID, accessToken string) {
	parts := strings.SplitN(string(credential), ":", 2)
	if len(parts) != 2 {
		return "", string(credential)
	}
	return parts[0], parts[1]
}

func (p *Provider) post(ctx context.Context, phoneNumberID, accessToken string, body map[string]any) (map[string]any, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("cloudapi: marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/%s/messages", graphAPIBase, phoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("cloudapi: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("cloudapi: send: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("cloudapi: read response: %w", err)
	}

	var parsed map[string]any
	_ = json.Unmarshal(respBody, &parsed)

	if resp.StatusCode >= 400 {
		return parsed, &graphError{statusCode: resp.StatusCode, body: parsed}
	}
	return parsed, nil
}

type graphError struct {
	statusCode int
	body       map[string]any
}

func (e *graphError) Error() string {
	return fmt.Sprintf("cloudapi: graph api returned status %d: %v", e.statusCode, e.body)
}

// retryable reports whether the Graph API error warrants a retry: 5xx and
// 429 are transient; 4xx (invalid recipient, bad parameter, auth failure)
// are not.
func (e *graphError) retryable() bool {
	return e.statusCode >= 500 || e.statusCode == http.StatusTooManyRequests
}

func toResponse(result map[string]any, err error) ports.ProviderResponse {
	if err == nil {
		id := extractMessageID(result)
		return ports.ProviderResponse{Success: true, ProviderMessageID: id}
	}

	var gerr *graphError
	if ge, ok := err.(*graphError); ok {
		gerr = ge
	}
	if gerr == nil {
		return ports.ProviderResponse{Success: false, ErrorMessage: err.Error(), Retryable: true}
	}

	code, message := errorDetail(gerr.body)
	return ports.ProviderResponse{
		Success: false, ErrorCode: code, ErrorMessage: message, Retryable: gerr.retryable(),
	}
}

func extractMessageID(result map[string]any) string {
	messages, ok := result["messages"].([]any)
	if !ok || len(messages) == 0 {
		return ""
	}
	first, ok := messages[0].(map[string]any)
	if !ok {
		return ""
	}
	id, _ := first["id"].(string)
	return id
}

func errorDetail(body map[string]any) (code, message string) {
	errObj, ok := body["error"].(map[string]any)
	if !ok {
		return "", ""
	}
	if c, ok := errObj["code"].(float64); ok {
		code = fmt.Sprintf("%d", int(c))
	}
	message, _ = errObj["message"].(string)
	return code, message
}

func (p *Provider) SendText(ctx context.Context, credential []byte, toPhone, text string) (ports.ProviderResponse, error) {
	phoneNumberID, accessToken := splitCredential(credential)
	result, err := p.post(ctx, phoneNumberID, accessToken, map[string]any{
		"messaging_product": "whatsapp",
		"to":                toPhone,
		"type":              "text",
		"text":              map[string]any{"body": text},
	})
	return toResponse(result, err), nil
}

func (p *Provider) SendTemplate(ctx context.Context, credential []byte, toPhone, templateName string, variables map[string]string) (ports.ProviderResponse, error) {
	phoneNumberID, accessToken := splitCredential(credential)

	var parameters []map[string]any
	for _, v := range variables {
		parameters = append(parameters, map[string]any{"type": "text", "text": v})
	}
	components := []map[string]any{}
	if len(parameters) > 0 {
		components = append(components, map[string]any{"type": "body", "parameters": parameters})
	}

	result, err := p.post(ctx, phoneNumberID, accessToken, map[string]any{
		"messaging_product": "whatsapp",
		"to":                toPhone,
		"type":              "template",
		"template": map[string]any{
			"name":       templateName,
			"language":   map[string]any{"code": "en_US"},
			"components": components,
		},
	})
	return toResponse(result, err), nil
}

func (p *Provider) SendInteractive(ctx context.Context, credential []byte, toPhone, text string, buttons []ports.Button) (ports.ProviderResponse, error) {
	phoneNumberID, accessToken := splitCredential(credential)

	btnPayload := make([]map[string]any, 0, len(buttons))
	for _, b := range buttons {
		btnPayload = append(btnPayload, map[string]any{
			"type":  "reply",
			"reply": map[string]any{"id": b.ID, "title": b.Title},
		})
	}

	result, err := p.post(ctx, phoneNumberID, accessToken, map[string]any{
		"messaging_product": "whatsapp",
		"to":                toPhone,
		"type":              "interactive",
		"interactive": map[string]any{
			"type": "button",
			"body": map[string]any{"text": text},
			"action": map[string]any{
				"buttons": btnPayload,
			},
		},
	})
	return toResponse(result, err), nil
}

func (p *Provider) MarkAsRead(ctx context.Context, credential []byte, providerMessageID string) error {
	phoneNumberID, accessToken := splitCredential(credential)
	_, err := p.post(ctx, phoneNumberID, accessToken, map[string]any{
		"messaging_product": "whatsapp",
		"status":            "read",
		"message_id":        providerMessageID,
	})
	return err
}

func (p *Provider) GetMediaURL(ctx context.Context, credential []byte, mediaID string) (string, error) {
	_, accessToken := splitCredential(credential)

	url := fmt.Sprintf("%s/%s", graphAPIBase, mediaID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("cloudapi: build media request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("cloudapi: fetch media: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}
	var parsed map[string]any
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", err
	}
	mediaURL, _ := parsed["url"].(string)
	return mediaURL, nil
}

// ValidateWebhookSignature validates the X-Hub-Signature-256 header against
// an HMAC-SHA256 digest of the raw body, keyed by the app secret, grounded
// on providers/meta_cloud/webhook.py's validate_signature.
func (p *Provider) ValidateWebhookSignature(payload []byte, signatureHeader string, appSecret []byte) bool {
	if signatureHeader == "" {
		return false
	}
	if !strings.HasPrefix(signatureHeader, "sha256=") {
		return false
	}
	expected := signatureHeader[len("sha256="):]

	mac := hmac.New(sha256.New, appSecret)
	mac.Write(payload)
	computed := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(computed), []byte(expected))
}

// ParseWebhook parses a Meta Cloud API webhook body, grounded on
// providers/meta_cloud/webhook.py's parse_meta_webhook.
func (p *Provider) ParseWebhook(payload []byte) ([]ports.InboundMessage, []ports.DeliveryStatus, error) {
	var generic map[string]any
	if err := json.Unmarshal(payload, &generic); err != nil {
		return nil, nil, err
	}
	if generic["object"] != "whatsapp_business_account" {
		return nil, nil, fmt.Errorf("cloudapi: not a whatsapp_business_account payload")
	}

	var messages []ports.InboundMessage
	var statuses []ports.DeliveryStatus

	entries, _ := generic["entry"].([]any)
	for _, e := range entries {
		entry, _ := e.(map[string]any)
		changes, _ := entry["changes"].([]any)
		for _, c := range changes {
			change, _ := c.(map[string]any)
			if change["field"] != "messages" {
				continue
			}
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
	msgType, _ := msgData["type"].(string)
	if msgType == "" {
		msgType = "text"
	}

	var text string
	if msgType == "text" {
		if textObj, ok := msgData["text"].(map[string]any); ok {
			text, _ = textObj["body"].(string)
		}
	}

	var buttonPayload, buttonText string
	if interactive, ok := msgData["interactive"].(map[string]any); ok {
		if reply, ok := interactive["button_reply"].(map[string]any); ok {
			buttonPayload, _ = reply["id"].(string)
			buttonText, _ = reply["title"].(string)
		}
	}
	if btn, ok := msgData["button"].(map[string]any); ok {
		buttonPayload, _ = btn["payload"].(string)
		buttonText, _ = btn["text"].(string)
	}

	var contactName string
	if contacts, ok := value["contacts"].([]any); ok && len(contacts) > 0 {
		if contact, ok := contacts[0].(map[string]any); ok {
			if profile, ok := contact["profile"].(map[string]any); ok {
				contactName, _ = profile["name"].(string)
			}
		}
	}

	var contextMessageID string
	if ctxObj, ok := msgData["context"].(map[string]any); ok {
		contextMessageID, _ = ctxObj["id"].(string)
	}

	id, _ := msgData["id"].(string)
	from, _ := msgData["from"].(string)
	displayNumber, _ := metadata["display_phone_number"].(string)
	phoneNumberID, _ := metadata["phone_number_id"].(string)

	return &ports.InboundMessage{
		MessageID:         id,
		FromPhone:         from,
		ToPhone:           displayNumber,
		RoutingIdentifier: phoneNumberID,
		MessageType:       msgType,
		Timestamp:         time.Now().UTC(),
		Text:              text,
		ButtonPayload:     buttonPayload,
		ButtonText:        buttonText,
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
			if code, ok := first["code"].(float64); ok {
				errorCode = fmt.Sprintf("%d", int(code))
			}
			errorMessage, _ = first["message"].(string)
		}
	}
	id, _ := statusData["id"].(string)
	recipient, _ := statusData["recipient_id"].(string)
	status, _ := statusData["status"].(string)

	return &ports.DeliveryStatus{
		MessageID:      id,
		RecipientPhone: recipient,
		Status:         status,
		Timestamp:      time.Now().UTC(),
		ErrorCode:      errorCode,
		ErrorMessage:   errorMessage,
		RawPayload:     statusData,
	}
}

// VerifyWebhookChallenge implements the GET verification handshake: Meta
// sends hub.mode=subscribe and hub.verify_token, expecting the challenge
// echoed back only if the token matches what was configured.
func (p *Provider) VerifyWebhookChallenge(mode, token, challenge, expectedToken string) (string, bool) {
	if mode != "subscribe" {
		return "", false
	}
	if !hmac.Equal([]byte(token), []byte(expectedToken)) {
		return "", false
	}
	return challenge, true
}
