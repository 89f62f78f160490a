// Package http is the messaging engine's inbound webhook surface: the
// provider verification challenge and the receipt endpoint that turns
// provider payloads into inbound-stream envelopes, grounded on spec §4.7
// and the original source's FastAPI router equivalent.
package http

import (
	"context"
	"crypto/hmac"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"corehub/contexts/messaging-engine/domain/services"
	"corehub/contexts/messaging-engine/ports"
	"corehub/internal/platform/bus"
	"corehub/internal/platform/logging"
	"corehub/internal/shared/events"
)

// Handler serves the GET verification challenge and POST receipt
// endpoints for every configured provider.
type Handler struct {
	repo          ports.Repository
	providers     ports.ProviderRegistry
	bus           bus.Bus
	stream        string
	streamMaxLen  int64
	verifyToken   string
	webhookSecret []byte
	logger        *slog.Logger
}

// Config carries the handler's tunables.
type Config struct {
	InboundStream string
	StreamMaxLen  int64
	VerifyToken   string
	WebhookSecret string
}

// NewHandler builds a webhook Handler.
func NewHandler(repo ports.Repository, providers ports.ProviderRegistry, b bus.Bus, cfg Config, logger *slog.Logger) *Handler {
	return &Handler{
		repo: repo, providers: providers, bus: b,
		stream: cfg.InboundStream, streamMaxLen: cfg.StreamMaxLen,
		verifyToken: cfg.VerifyToken, webhookSecret: []byte(cfg.WebhookSecret),
		logger: logging.Resolve(logger),
	}
}

// Register mounts the handler's routes on mux.
func (h *Handler) Register(mux *http.ServeMux, path string) {
	mux.HandleFunc(path, h.serve)
}

func (h *Handler) serve(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.handleVerification(w, r)
	case http.MethodPost:
		h.handleReceipt(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// handleVerification implements the GET challenge: hub.mode, hub.verify_token,
// hub.challenge are compared with a constant-time comparison; echo the
// challenge on match, 403 otherwise.
func (h *Handler) handleVerification(w http.ResponseWriter, r *http.Request) {
	mode := r.URL.Query().Get("hub.mode")
	token := r.URL.Query().Get("hub.verify_token")
	challenge := r.URL.Query().Get("hub.challenge")

	if mode != "subscribe" || !hmac.Equal([]byte(token), []byte(h.verifyToken)) {
		w.WriteHeader(http.StatusForbidden)
		return
	}

	w.Header().Set("Content-Type", "text/plain")
	_, _ = w.Write([]byte(challenge))
}

// handleReceipt parses the raw body, selects a provider by payload shape,
// validates its signature, resolves the tenant, and publishes one envelope
// per inbound item. It always returns 200 after a successful publish pass,
// even if individual items failed to resolve — only signature failures and
// malformed JSON return non-200, per spec §4.7's failure policy.
func (h *Handler) handleReceipt(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 10<<20))
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	providerTag, routingIdentifier, ok := services.ExtractRoutingIdentifier(body)
	if !ok {
		if !json.Valid(body) {
			h.logger.Warn("webhook payload failed to parse as JSON")
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		h.logger.Warn("webhook payload shape not recognized")
		w.WriteHeader(http.StatusOK)
		return
	}

	provider, ok := h.providers.Get(providerTag)
	if !ok {
		h.logger.Warn("no provider adapter registered", "provider", providerTag)
		w.WriteHeader(http.StatusOK)
		return
	}

	if !provider.ValidateWebhookSignature(body, r.Header.Get("X-Hub-Signature-256"), h.webhookSecret) {
		h.logger.Warn("webhook signature validation failed", "provider", providerTag)
		w.WriteHeader(http.StatusForbidden)
		return
	}

	messages, statuses, err := provider.ParseWebhook(body)
	if err != nil {
		h.logger.Warn("webhook payload failed to parse as JSON", "error", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	binding, err := h.repo.GetBindingByRoutingIdentifier(ctx, providerTag, routingIdentifier)
	if err != nil {
		h.logger.Error("binding lookup failed", "error", err)
	}

	tenantID := ""
	if binding != nil {
		tenantID = binding.TenantID
	} else {
		h.logger.Warn("no tenant binding for routing identifier", "provider", providerTag, "routing_identifier", routingIdentifier)
	}

	for _, msg := range messages {
		if err := h.publishInbound(ctx, tenantID, msg); err != nil {
			h.logger.Error("failed to publish inbound message", "error", err, "message_id", msg.MessageID)
		}
	}
	for _, st := range statuses {
		if err := h.publishDeliveryStatus(ctx, tenantID, st); err != nil {
			h.logger.Error("failed to publish delivery status", "error", err, "message_id", st.MessageID)
		}
	}

	w.WriteHeader(http.StatusOK)
}

func (h *Handler) publishInbound(ctx context.Context, tenantID string, msg ports.InboundMessage) error {
	payload := map[string]any{
		"message_id":         msg.MessageID,
		"from_phone":         msg.FromPhone,
		"to_phone":           msg.ToPhone,
		"routing_identifier": msg.RoutingIdentifier,
		"message_type":       msg.MessageType,
		"text":               msg.Text,
		"button_payload":     msg.ButtonPayload,
		"button_text":        msg.ButtonText,
		"contact_name":       msg.ContactName,
		"context_message_id": msg.ContextMessageID,
	}

	env := events.Envelope{
		EventID:       msg.MessageID,
		EventType:     events.EventMessageReceived,
		TenantID:      tenantID,
		OccurredAt:    time.Now().UTC(),
		Version:       1,
		CorrelationID: msg.MessageID,
		Payload:       payload,
		Metadata:      map[string]any{},
	}
	_, err := h.bus.Publish(ctx, h.stream, env, h.streamMaxLen)
	return err
}

func (h *Handler) publishDeliveryStatus(ctx context.Context, tenantID string, st ports.DeliveryStatus) error {
	payload := map[string]any{
		"message_id":      st.MessageID,
		"recipient_phone": st.RecipientPhone,
		"status":          st.Status,
		"error_code":      st.ErrorCode,
		"error_message":   st.ErrorMessage,
	}

	env := events.Envelope{
		EventID:       st.MessageID + ":" + st.Status,
		EventType:     events.EventDeliveryStatusNoted,
		TenantID:      tenantID,
		OccurredAt:    time.Now().UTC(),
		Version:       1,
		CorrelationID: st.MessageID,
		Payload:       payload,
		Metadata:      map[string]any{},
	}
	_, err := h.bus.Publish(ctx, h.stream, env, h.streamMaxLen)
	return err
}
