package workers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"corehub/contexts/messaging-engine/domain/entities"
	merrors "corehub/contexts/messaging-engine/domain/errors"
	"corehub/contexts/messaging-engine/domain/services"
	"corehub/contexts/messaging-engine/ports"
	"corehub/internal/platform/bus"
	"corehub/internal/platform/logging"
	"corehub/internal/shared/events"
)

// InboundConsumer applies message_received and delivery_status_noted
// envelopes read from the inbound stream: idempotency, conversation
// bookkeeping, automation detection, and queuing an auto-reply, grounded on
// spec §4.8(a) and api/webhooks.py's inbound handling path.
type InboundConsumer struct {
	repo       ports.Repository
	bus        bus.Bus
	automation *services.AutomationEngine
	cfg        Config
	logger     *slog.Logger
}

func NewInboundConsumer(repo ports.Repository, b bus.Bus, automation *services.AutomationEngine, cfg Config, logger *slog.Logger) *InboundConsumer {
	return &InboundConsumer{repo: repo, bus: b, automation: automation, cfg: cfg.withDefaults(), logger: logging.Resolve(logger)}
}

func (c *InboundConsumer) EnsureGroup(ctx context.Context) error {
	return c.bus.EnsureGroup(ctx, c.cfg.InboundStream, c.cfg.EngineGroup, "0")
}

// RunOnce reads one batch and applies each entry, returning how many were
// acked (including idempotent skips).
func (c *InboundConsumer) RunOnce(ctx context.Context) (int, error) {
	messages, err := c.bus.ReadGroup(ctx, c.cfg.InboundStream, c.cfg.EngineGroup, c.cfg.ConsumerName, c.cfg.BatchSize, c.cfg.BlockDuration)
	if err != nil {
		return 0, fmt.Errorf("messaging inbound worker: read group: %w", err)
	}

	processed := 0
	for _, msg := range messages {
		if err := c.applyAndAck(ctx, msg); err != nil {
			c.logger.ErrorContext(ctx, "inbound message not acked, will be redelivered or reclaimed",
				"event", "messaging_inbound_failed", "module", "messaging-engine/worker", "layer", "worker",
				"message_id", msg.ID, "event_id", msg.Envelope.EventID, "error", err)
			continue
		}
		processed++
	}
	return processed, nil
}

// RunReclaim claims entries idle at least ReclaimIdle and applies them the
// same way as a fresh delivery. Idempotency makes redelivery safe.
func (c *InboundConsumer) RunReclaim(ctx context.Context) (int, error) {
	pending, err := c.bus.ListPending(ctx, c.cfg.InboundStream, c.cfg.EngineGroup, c.cfg.ReclaimIdle, 100)
	if err != nil {
		return 0, fmt.Errorf("messaging inbound worker: list pending: %w", err)
	}
	if len(pending) == 0 {
		return 0, nil
	}

	ids := make([]string, len(pending))
	for i, p := range pending {
		ids[i] = p.ID
	}
	claimed, err := c.bus.Claim(ctx, c.cfg.InboundStream, c.cfg.EngineGroup, c.cfg.ConsumerName, c.cfg.ReclaimIdle, ids...)
	if err != nil {
		return 0, fmt.Errorf("messaging inbound worker: claim: %w", err)
	}

	processed := 0
	for _, msg := range claimed {
		if err := c.applyAndAck(ctx, msg); err != nil {
			c.logger.ErrorContext(ctx, "reclaimed inbound message not acked",
				"event", "messaging_inbound_reclaim_failed", "module", "messaging-engine/worker", "layer", "worker",
				"message_id", msg.ID, "event_id", msg.Envelope.EventID, "error", err)
			continue
		}
		processed++
	}
	return processed, nil
}

func (c *InboundConsumer) applyAndAck(ctx context.Context, msg bus.Message) error {
	env := msg.Envelope

	var err error
	switch env.EventType {
	case events.EventMessageReceived:
		err = c.handleMessageReceived(ctx, env)
	case events.EventDeliveryStatusNoted:
		err = c.handleDeliveryStatus(ctx, env)
	default:
		c.logger.WarnContext(ctx, "ignoring unrecognized event type on inbound stream",
			"event", "messaging_inbound_unknown_type", "module", "messaging-engine/worker", "layer", "worker",
			"event_type", env.EventType)
	}

	if err != nil && !errors.Is(err, merrors.ErrAlreadyProcessed) {
		return err
	}
	return c.bus.Ack(ctx, c.cfg.InboundStream, c.cfg.EngineGroup, msg.ID)
}

// inboundOutcome carries what needs to be published after the transaction
// that recorded it commits; bus publishes are not themselves transactional.
type inboundOutcome struct {
	publishOptedOut        bool
	publishActionRequested bool
	intent                 services.ActionIntent
	intentKeyword          string
	confidence             float64
	reply                  *services.AutoReply
	tenantID               string
	fromPhone              string
	messageID              string
}

func (c *InboundConsumer) handleMessageReceived(ctx context.Context, env events.Envelope) error {
	messageID := stringField(env.Payload, "message_id")
	fromPhone := stringField(env.Payload, "from_phone")
	contactName := stringField(env.Payload, "contact_name")
	text := stringField(env.Payload, "text")
	buttonPayload := stringField(env.Payload, "button_payload")
	tenantID := env.TenantID

	var outcome inboundOutcome

	err := c.repo.WithinTx(ctx, func(ctx context.Context, tx ports.Repository) error {
		if err := tx.MarkMessageProcessed(ctx, tenantID, messageID); err != nil {
			return err
		}

		conv, created, err := tx.GetOrCreateConversation(ctx, tenantID, fromPhone, contactName)
		if err != nil {
			return fmt.Errorf("get or create conversation: %w", err)
		}

		convMgr := services.NewConversationManager(tx)
		if err := convMgr.RecordInbound(ctx, conv, env.OccurredAt); err != nil {
			return fmt.Errorf("record inbound: %w", err)
		}

		if err := tx.CreateMessage(ctx, &entities.Message{
			TenantID: tenantID, ConversationID: conv.ID, ProviderMessageID: messageID,
			Direction: entities.DirectionInbound, Status: entities.MessageStatusDelivered,
			Body: text, TriggeringEventID: env.EventID,
		}); err != nil {
			return fmt.Errorf("create message: %w", err)
		}

		detection := c.automation.Detect(text, buttonPayload)
		autoReplyEnabled := c.autoReplyEnabled(ctx, tx, tenantID)

		outcome = inboundOutcome{tenantID: tenantID, fromPhone: fromPhone, messageID: messageID}

		switch {
		case detection.IsOptOut:
			if err := tx.CreateOptOut(ctx, &entities.OptOut{
				TenantID: tenantID, CustomerPhone: fromPhone,
				Reason: "keyword:" + detection.OptOutKeyword, OriginalMessageID: messageID,
			}); err != nil {
				return fmt.Errorf("create opt-out: %w", err)
			}
			if err := convMgr.MarkOptedOut(ctx, conv); err != nil {
				return fmt.Errorf("mark opted out: %w", err)
			}
			outcome.publishOptedOut = true
		case detection.Intent != "":
			outcome.publishActionRequested = true
			outcome.intent = detection.Intent
			outcome.intentKeyword = detection.IntentKeyword
			outcome.confidence = detection.Confidence
		}

		if replyType, should := c.automation.ShouldAutoReply(created, detection, autoReplyEnabled); should {
			reply := c.automation.GetAutoReply(replyType, map[string]string{"business_name": "our team"}, true)
			outcome.reply = &reply
		}

		return nil
	})

	if err != nil {
		return err
	}

	c.publishOutcome(ctx, outcome)
	return nil
}

// autoReplyEnabled checks the tenant's active binding config for an
// explicit opt-out of automated replies; absent or true means enabled.
func (c *InboundConsumer) autoReplyEnabled(ctx context.Context, tx ports.Repository, tenantID string) bool {
	binding, err := tx.GetActiveBindingForTenant(ctx, tenantID)
	if err != nil || binding == nil || binding.Config == nil {
		return true
	}
	if enabled, ok := binding.Config["auto_reply_enabled"].(bool); ok {
		return enabled
	}
	return true
}

func (c *InboundConsumer) publishOutcome(ctx context.Context, o inboundOutcome) {
	now := time.Now().UTC()

	if o.publishOptedOut {
		env := events.Envelope{
			EventID: o.messageID + ":opted_out", EventType: events.EventOptedOut, TenantID: o.tenantID,
			OccurredAt: now, Version: 1, CorrelationID: o.messageID,
			Payload: map[string]any{"customer_phone": o.fromPhone, "triggering_message_id": o.messageID},
			Metadata: map[string]any{},
		}
		if _, err := c.bus.Publish(ctx, c.cfg.DomainStream, env, 0); err != nil {
			c.logger.ErrorContext(ctx, "failed to publish opted_out event", "error", err)
		}
	}

	if o.publishActionRequested {
		env := events.Envelope{
			EventID: o.messageID + ":action_requested", EventType: events.EventActionRequested, TenantID: o.tenantID,
			OccurredAt: now, Version: 1, CorrelationID: o.messageID,
			Payload: map[string]any{
				"customer_phone": o.fromPhone, "intent": string(o.intent),
				"keyword": o.intentKeyword, "confidence": o.confidence, "triggering_message_id": o.messageID,
			},
			Metadata: map[string]any{},
		}
		if _, err := c.bus.Publish(ctx, c.cfg.DomainStream, env, 0); err != nil {
			c.logger.ErrorContext(ctx, "failed to publish action_requested event", "error", err)
		}
	}

	if o.reply != nil {
		req := sendRequest{ToPhone: o.fromPhone, TriggeringEventID: o.messageID, Text: o.reply.Text}
		if len(o.reply.Buttons) > 0 {
			req.Kind = sendKindInteractive
			for _, b := range o.reply.Buttons {
				req.Buttons = append(req.Buttons, ports.Button{ID: b.ID, Title: b.Title})
			}
		} else {
			req.Kind = sendKindText
		}

		env := events.Envelope{
			EventID: o.messageID + ":auto_reply", EventType: events.EventMessageSendRequested, TenantID: o.tenantID,
			OccurredAt: now, Version: 1, CorrelationID: o.messageID,
			Payload: req.toPayload(), Metadata: map[string]any{},
		}
		if _, err := c.bus.Publish(ctx, c.cfg.OutboundStream, env, 0); err != nil {
			c.logger.ErrorContext(ctx, "failed to publish auto-reply send request", "error", err)
		}
	}
}

func (c *InboundConsumer) handleDeliveryStatus(ctx context.Context, env events.Envelope) error {
	providerMessageID := stringField(env.Payload, "message_id")
	status := stringField(env.Payload, "status")
	errorCode := stringField(env.Payload, "error_code")
	errorMessage := stringField(env.Payload, "error_message")

	return c.repo.WithinTx(ctx, func(ctx context.Context, tx ports.Repository) error {
		msg, err := tx.GetMessageByProviderID(ctx, providerMessageID)
		if err != nil {
			return fmt.Errorf("get message by provider id: %w", err)
		}
		if msg == nil {
			// Status update for a message we never sent or haven't recorded
			// yet; nothing to update, but not a failure either.
			return nil
		}
		return tx.UpdateMessageStatus(ctx, msg.ID, status, errorCode, errorMessage)
	})
}
