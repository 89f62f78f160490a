package workers

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"corehub/contexts/messaging-engine/domain/entities"
	"corehub/contexts/messaging-engine/domain/services"
	"corehub/contexts/messaging-engine/ports"
	"corehub/internal/platform/bus"
	"corehub/internal/platform/crypto"
	"corehub/internal/platform/logging"
	"corehub/internal/shared/events"
)

// OutboundConsumer applies message_send_requested envelopes: it guards on
// opt-out/binding, writes the outbound message row before calling the
// provider (never holding a transaction open across that network call),
// and retries or DLQs on failure, grounded on spec §4.8(b).
type OutboundConsumer struct {
	repo      ports.Repository
	bus       bus.Bus
	keyring   *crypto.KeyRing
	providers ports.ProviderRegistry
	cfg       Config
	logger    *slog.Logger
}

func NewOutboundConsumer(repo ports.Repository, b bus.Bus, keyring *crypto.KeyRing, providers ports.ProviderRegistry, cfg Config, logger *slog.Logger) *OutboundConsumer {
	return &OutboundConsumer{repo: repo, bus: b, keyring: keyring, providers: providers, cfg: cfg.withDefaults(), logger: logging.Resolve(logger)}
}

func (c *OutboundConsumer) EnsureGroup(ctx context.Context) error {
	return c.bus.EnsureGroup(ctx, c.cfg.OutboundStream, c.cfg.EngineGroup, "0")
}

func (c *OutboundConsumer) RunOnce(ctx context.Context) (int, error) {
	messages, err := c.bus.ReadGroup(ctx, c.cfg.OutboundStream, c.cfg.EngineGroup, c.cfg.ConsumerName, c.cfg.BatchSize, c.cfg.BlockDuration)
	if err != nil {
		return 0, fmt.Errorf("messaging outbound worker: read group: %w", err)
	}

	processed := 0
	for _, msg := range messages {
		// First delivery: exactly one attempt so far.
		ack, err := c.handleSend(ctx, msg.Envelope, 1)
		if err != nil {
			c.logger.ErrorContext(ctx, "outbound send failed", "event", "messaging_outbound_failed",
				"module", "messaging-engine/worker", "layer", "worker", "message_id", msg.ID, "error", err)
		}
		if !ack {
			continue
		}
		if err := c.bus.Ack(ctx, c.cfg.OutboundStream, c.cfg.EngineGroup, msg.ID); err != nil {
			c.logger.ErrorContext(ctx, "failed to ack outbound entry", "error", err, "message_id", msg.ID)
			continue
		}
		processed++
	}
	return processed, nil
}

func (c *OutboundConsumer) RunReclaim(ctx context.Context) (int, error) {
	pending, err := c.bus.ListPending(ctx, c.cfg.OutboundStream, c.cfg.EngineGroup, c.cfg.ReclaimIdle, 100)
	if err != nil {
		return 0, fmt.Errorf("messaging outbound worker: list pending: %w", err)
	}
	if len(pending) == 0 {
		return 0, nil
	}
	ids := make([]string, len(pending))
	deliveryCounts := make(map[string]int64, len(pending))
	for i, p := range pending {
		ids[i] = p.ID
		deliveryCounts[p.ID] = p.DeliveryCount
	}
	claimed, err := c.bus.Claim(ctx, c.cfg.OutboundStream, c.cfg.EngineGroup, c.cfg.ConsumerName, c.cfg.ReclaimIdle, ids...)
	if err != nil {
		return 0, fmt.Errorf("messaging outbound worker: claim: %w", err)
	}

	processed := 0
	for _, msg := range claimed {
		// deliveryCounts holds deliveries completed before this reclaim;
		// this reclaim is the next one.
		deliveryCount := deliveryCounts[msg.ID] + 1
		ack, err := c.handleSend(ctx, msg.Envelope, deliveryCount)
		if err != nil {
			c.logger.ErrorContext(ctx, "reclaimed outbound send failed", "error", err, "message_id", msg.ID)
		}
		if !ack {
			continue
		}
		if err := c.bus.Ack(ctx, c.cfg.OutboundStream, c.cfg.EngineGroup, msg.ID); err != nil {
			continue
		}
		processed++
	}
	return processed, nil
}

// handleSend processes one send request, returning whether the caller
// should ack the stream entry. A false return means either a transient
// infrastructure failure, or a retryable provider rejection still under
// budget: in both cases the entry is left unacked so pending-reclaim
// redelivers the same stream entry (deliveryCount is this attempt's
// 1-based delivery count, from the group's pending-entry list). A
// terminal provider failure (not retryable, or budget exhausted) is
// always acked and sent to the dead-letter stream.
func (c *OutboundConsumer) handleSend(ctx context.Context, env events.Envelope, deliveryCount int64) (bool, error) {
	req := parseSendRequest(env.Payload)
	tenantID := env.TenantID

	convMgr := services.NewConversationManager(c.repo)
	canSend, err := convMgr.CanSendMessage(ctx, tenantID, req.ToPhone)
	if err != nil {
		return false, fmt.Errorf("check can-send: %w", err)
	}
	if !canSend {
		c.logger.WarnContext(ctx, "skipping send: recipient opted out or tenant unbound",
			"event", "messaging_outbound_skipped", "module", "messaging-engine/worker", "layer", "worker",
			"tenant_id", tenantID, "to_phone", req.ToPhone)
		return true, nil
	}

	binding, err := c.repo.GetActiveBindingForTenant(ctx, tenantID)
	if err != nil {
		return false, fmt.Errorf("get active binding: %w", err)
	}
	if binding == nil {
		c.logger.ErrorContext(ctx, "no active tenant binding, terminal configuration failure",
			"event", "messaging_outbound_no_binding", "module", "messaging-engine/worker", "layer", "worker", "tenant_id", tenantID)
		c.publishDeliveryFailed(ctx, tenantID, req, "no_binding", "tenant has no active provider binding")
		return true, nil
	}

	credential, err := c.keyring.Decrypt(binding.EncryptedCredential)
	if err != nil {
		c.logger.ErrorContext(ctx, "failed to decrypt provider credential, terminal configuration failure",
			"event", "messaging_outbound_bad_credential", "module", "messaging-engine/worker", "layer", "worker", "tenant_id", tenantID, "error", err)
		c.publishDeliveryFailed(ctx, tenantID, req, "bad_credential", err.Error())
		return true, nil
	}

	provider, ok := c.providers.Get(binding.Provider)
	if !ok {
		c.logger.ErrorContext(ctx, "no adapter registered for provider, terminal configuration failure",
			"event", "messaging_outbound_no_adapter", "module", "messaging-engine/worker", "layer", "worker", "provider", binding.Provider)
		c.publishDeliveryFailed(ctx, tenantID, req, "no_adapter", "no adapter registered for provider "+binding.Provider)
		return true, nil
	}

	conv, _, err := convMgr.GetOrCreateConversation(ctx, tenantID, req.ToPhone, "")
	if err != nil {
		return false, fmt.Errorf("get or create conversation: %w", err)
	}

	body := req.Text
	if req.Kind == sendKindTemplate {
		body = req.TemplateName
	}

	// A redelivery of this same envelope (reclaim, or a prior crash before
	// ack) must update the row an earlier attempt already created rather
	// than insert a second one, so one logical send stays one message row.
	msg, err := c.repo.GetMessageByTriggeringEventID(ctx, tenantID, req.TriggeringEventID)
	if err != nil {
		return false, fmt.Errorf("lookup existing pending message: %w", err)
	}
	if msg == nil {
		msg = &entities.Message{
			TenantID: tenantID, ConversationID: conv.ID, Direction: entities.DirectionOutbound,
			Status: entities.MessageStatusPending, Body: body, TemplateName: req.TemplateName,
			ReplyToMessageID: req.ReplyToMessageID, TriggeringEventID: req.TriggeringEventID,
		}
		if err := c.repo.CreateMessage(ctx, msg); err != nil {
			return false, fmt.Errorf("create pending message: %w", err)
		}
	}

	resp, sendErr := c.send(ctx, provider, credential, req)
	if sendErr != nil {
		// Infra-level failure calling the provider (network, timeout): leave
		// the pending row as-is and don't ack, so the entry is redelivered.
		return false, fmt.Errorf("provider call: %w", sendErr)
	}

	if resp.Success {
		if err := c.repo.UpdateMessageProviderID(ctx, msg.ID, resp.ProviderMessageID); err != nil {
			c.logger.ErrorContext(ctx, "failed to record provider message id", "error", err, "message_id", msg.ID)
		}
		if err := c.repo.UpdateMessageStatus(ctx, msg.ID, entities.MessageStatusSent, "", ""); err != nil {
			c.logger.ErrorContext(ctx, "failed to mark message sent", "error", err, "message_id", msg.ID)
		}
		if err := convMgr.RecordOutbound(ctx, conv, time.Now().UTC()); err != nil {
			c.logger.ErrorContext(ctx, "failed to record outbound conversation activity", "error", err)
		}
		return true, nil
	}

	if _, err := c.repo.IncrementMessageRetryCount(ctx, msg.ID); err != nil {
		c.logger.ErrorContext(ctx, "failed to increment retry count", "error", err, "message_id", msg.ID)
	}
	if err := c.repo.UpdateMessageStatus(ctx, msg.ID, entities.MessageStatusFailed, resp.ErrorCode, resp.ErrorMessage); err != nil {
		c.logger.ErrorContext(ctx, "failed to mark message failed", "error", err, "message_id", msg.ID)
	}
	c.publishDeliveryFailed(ctx, tenantID, req, resp.ErrorCode, resp.ErrorMessage)

	// Under the retry budget: leave this entry unacked so the group's
	// pending-entry list still carries it, and pending-reclaim redelivers
	// the same msg_id (not a new one) once it goes idle — the message row
	// above is looked up, not recreated, on that redelivery. Only a
	// terminal attempt (budget exhausted, or not retryable at all) acks
	// and moves the envelope to the dead-letter stream.
	if resp.Retryable && deliveryCount < int64(c.cfg.MaxRetries) {
		return false, fmt.Errorf("provider send failed, retryable: %s", resp.ErrorMessage)
	}

	c.sendToDLQ(ctx, env)
	return true, nil
}

func (c *OutboundConsumer) send(ctx context.Context, provider ports.Provider, credential []byte, req sendRequest) (ports.ProviderResponse, error) {
	switch req.Kind {
	case sendKindTemplate:
		return provider.SendTemplate(ctx, credential, req.ToPhone, req.TemplateName, req.Variables)
	case sendKindInteractive:
		return provider.SendInteractive(ctx, credential, req.ToPhone, req.Text, req.Buttons)
	default:
		return provider.SendText(ctx, credential, req.ToPhone, req.Text)
	}
}

func (c *OutboundConsumer) publishDeliveryFailed(ctx context.Context, tenantID string, req sendRequest, errorCode, errorMessage string) {
	env := events.Envelope{
		EventID: req.TriggeringEventID + ":delivery_failed", EventType: events.EventDeliveryFailed, TenantID: tenantID,
		OccurredAt: time.Now().UTC(), Version: 1, CorrelationID: req.TriggeringEventID,
		Payload: map[string]any{
			"to_phone": req.ToPhone, "error_code": errorCode, "error_message": errorMessage,
		},
		Metadata: map[string]any{},
	}
	if _, err := c.bus.Publish(ctx, c.cfg.DomainStream, env, 0); err != nil {
		c.logger.ErrorContext(ctx, "failed to publish delivery_failed event", "error", err)
	}
}

func (c *OutboundConsumer) sendToDLQ(ctx context.Context, env events.Envelope) {
	if _, err := c.bus.Publish(ctx, c.cfg.DLQStream, env, 0); err != nil {
		c.logger.ErrorContext(ctx, "failed to publish to dead-letter stream", "error", err, "event_id", env.EventID)
	}
}
