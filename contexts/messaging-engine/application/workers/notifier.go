package workers

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"corehub/contexts/messaging-engine/domain/services"
	"corehub/internal/platform/bus"
	"corehub/internal/platform/logging"
	"corehub/internal/shared/events"
)

// notifierTemplates maps an allow-listed domain event type to the template
// it renders and the payload fields that fill its variables, grounded on
// spec §4.8(c)'s vertical-notification mapping.
var notifierTemplates = map[events.EventType]struct {
	template string
	fields   []string
}{
	events.EventQuoteCreated:      {"quote_created_template", []string{"customer_name", "quote_number", "total_value"}},
	events.EventOrderStatusChanged: {"order_status_template", []string{"customer_name", "order_number", "status"}},
	events.EventDeliveryStarted:    {"delivery_started_template", []string{"customer_name", "order_number", "estimated_time"}},
	events.EventDeliveryCompleted:  {"delivery_completed_template", []string{"customer_name", "order_number"}},
}

// NotifierConsumer reads the shared domain event stream and turns
// allow-listed vertical events into outbound template sends. It acks every
// delivered entry unconditionally: a notification is best-effort and must
// never hold up the domain stream for other consumers.
type NotifierConsumer struct {
	bus       bus.Bus
	templates *services.TemplateRegistry
	cfg       Config
	logger    *slog.Logger
}

func NewNotifierConsumer(b bus.Bus, templates *services.TemplateRegistry, cfg Config, logger *slog.Logger) *NotifierConsumer {
	return &NotifierConsumer{bus: b, templates: templates, cfg: cfg.withDefaults(), logger: logging.Resolve(logger)}
}

func (c *NotifierConsumer) EnsureGroup(ctx context.Context) error {
	return c.bus.EnsureGroup(ctx, c.cfg.DomainStream, c.cfg.NotifierGroup, "$")
}

func (c *NotifierConsumer) RunOnce(ctx context.Context) (int, error) {
	messages, err := c.bus.ReadGroup(ctx, c.cfg.DomainStream, c.cfg.NotifierGroup, c.cfg.ConsumerName, c.cfg.BatchSize, c.cfg.BlockDuration)
	if err != nil {
		return 0, fmt.Errorf("messaging notifier worker: read group: %w", err)
	}

	for _, msg := range messages {
		c.handle(ctx, msg.Envelope)
		if err := c.bus.Ack(ctx, c.cfg.DomainStream, c.cfg.NotifierGroup, msg.ID); err != nil {
			c.logger.ErrorContext(ctx, "failed to ack notifier entry", "error", err, "message_id", msg.ID)
		}
	}
	return len(messages), nil
}

func (c *NotifierConsumer) RunReclaim(ctx context.Context) (int, error) {
	pending, err := c.bus.ListPending(ctx, c.cfg.DomainStream, c.cfg.NotifierGroup, c.cfg.ReclaimIdle, 100)
	if err != nil {
		return 0, fmt.Errorf("messaging notifier worker: list pending: %w", err)
	}
	if len(pending) == 0 {
		return 0, nil
	}
	ids := make([]string, len(pending))
	for i, p := range pending {
		ids[i] = p.ID
	}
	claimed, err := c.bus.Claim(ctx, c.cfg.DomainStream, c.cfg.NotifierGroup, c.cfg.ConsumerName, c.cfg.ReclaimIdle, ids...)
	if err != nil {
		return 0, fmt.Errorf("messaging notifier worker: claim: %w", err)
	}
	for _, msg := range claimed {
		c.handle(ctx, msg.Envelope)
		if err := c.bus.Ack(ctx, c.cfg.DomainStream, c.cfg.NotifierGroup, msg.ID); err != nil {
			c.logger.ErrorContext(ctx, "failed to ack reclaimed notifier entry", "error", err, "message_id", msg.ID)
		}
	}
	return len(claimed), nil
}

// handle maps one allow-listed domain event to a template send request. Any
// mapping or template-validation failure is logged and dropped, never
// retried: a best-effort notification is not worth blocking domain traffic.
func (c *NotifierConsumer) handle(ctx context.Context, env events.Envelope) {
	mapping, ok := notifierTemplates[env.EventType]
	if !ok {
		return // not one of the allow-listed notification events
	}

	customerPhone := stringField(env.Payload, "customer_phone")
	if customerPhone == "" {
		c.logger.WarnContext(ctx, "domain event missing customer_phone, cannot notify",
			"event", "messaging_notifier_no_phone", "module", "messaging-engine/worker", "layer", "worker", "event_type", env.EventType)
		return
	}

	template, ok := c.templates.Get(mapping.template)
	if !ok {
		c.logger.ErrorContext(ctx, "template not registered", "event", "messaging_notifier_no_template",
			"module", "messaging-engine/worker", "layer", "worker", "template", mapping.template)
		return
	}

	variables := make(map[string]string, len(mapping.fields))
	for _, field := range mapping.fields {
		if v := stringField(env.Payload, field); v != "" {
			variables[field] = v
		}
	}

	if _, err := services.BuildComponents(template, variables); err != nil {
		c.logger.WarnContext(ctx, "skipping notification: template parameters incomplete",
			"event", "messaging_notifier_incomplete", "module", "messaging-engine/worker", "layer", "worker",
			"template", mapping.template, "error", err)
		return
	}

	req := sendRequest{
		ToPhone: customerPhone, Kind: sendKindTemplate, TemplateName: mapping.template,
		Variables: variables, TriggeringEventID: env.EventID,
	}
	out := events.Envelope{
		EventID: env.EventID + ":notify", EventType: events.EventMessageSendRequested, TenantID: env.TenantID,
		OccurredAt: time.Now().UTC(), Version: 1, CorrelationID: env.EventID,
		Payload: req.toPayload(), Metadata: map[string]any{},
	}
	if _, err := c.bus.Publish(ctx, c.cfg.OutboundStream, out, 0); err != nil {
		c.logger.ErrorContext(ctx, "failed to publish notification send request", "error", err)
	}
}
