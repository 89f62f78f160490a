// Package ports declares the messaging engine's dependency boundaries:
// persistence, outbound provider capability, and the outbox-style stream
// bus it shares with the other contexts.
package ports

import (
	"context"
	"time"

	"corehub/contexts/messaging-engine/domain/entities"
)

// Repository is the messaging engine's persistence boundary, covering
// tenant bindings, conversations, messages, opt-outs, and inbound
// idempotency, grounded on persistence/repo.py's WhatsAppRepository.
type Repository interface {
	// WithinTx runs fn inside one DB transaction, passing a Repository bound
	// to that transaction. Implementations must roll back on any error
	// returned by fn, including ErrAlreadyProcessed.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Repository) error) error

	GetBindingByRoutingIdentifier(ctx context.Context, provider, routingIdentifier string) (*entities.TenantBinding, error)
	GetActiveBindingForTenant(ctx context.Context, tenantID string) (*entities.TenantBinding, error)
	CreateBinding(ctx context.Context, binding *entities.TenantBinding) error

	GetConversation(ctx context.Context, tenantID, customerPhone string) (*entities.Conversation, error)
	GetConversationByID(ctx context.Context, id int64) (*entities.Conversation, error)
	// GetOrCreateConversation returns the existing conversation for
	// (tenantID, customerPhone), or creates a new one, reporting whether it
	// created one.
	GetOrCreateConversation(ctx context.Context, tenantID, customerPhone, customerName string) (conversation *entities.Conversation, created bool, err error)
	SaveConversation(ctx context.Context, conversation *entities.Conversation) error
	ListConversations(ctx context.Context, tenantID string, status string, limit int) ([]entities.Conversation, error)

	// MarkMessageProcessed records a provider message id as seen, inside the
	// caller's transaction. Returns ErrAlreadyProcessed if it was already
	// recorded, so the caller can roll back and skip re-applying the event.
	MarkMessageProcessed(ctx context.Context, tenantID, providerMessageID string) error

	CreateMessage(ctx context.Context, msg *entities.Message) error
	GetMessageByProviderID(ctx context.Context, providerMessageID string) (*entities.Message, error)
	// GetMessageByTriggeringEventID looks up the outbound message row (if
	// any) already created for a send request, so a redelivered stream
	// entry updates that row instead of inserting a second one.
	GetMessageByTriggeringEventID(ctx context.Context, tenantID, triggeringEventID string) (*entities.Message, error)
	UpdateMessageStatus(ctx context.Context, messageID int64, status, errorCode, errorMessage string) error
	UpdateMessageProviderID(ctx context.Context, messageID int64, providerMessageID string) error
	IncrementMessageRetryCount(ctx context.Context, messageID int64) (retryCount int, err error)
	GetRecentMessages(ctx context.Context, conversationID int64, limit int) ([]entities.Message, error)

	IsOptedOut(ctx context.Context, tenantID, customerPhone string) (bool, error)
	GetOptOut(ctx context.Context, tenantID, customerPhone string) (*entities.OptOut, error)
	CreateOptOut(ctx context.Context, optOut *entities.OptOut) error
	RemoveOptOut(ctx context.Context, tenantID, customerPhone string) error
}

// InboundMessage is a provider-agnostic inbound message, grounded on
// providers/base.py's InboundMessage dataclass.
type InboundMessage struct {
	MessageID         string
	FromPhone         string
	ToPhone           string
	RoutingIdentifier string
	MessageType       string
	Timestamp         time.Time
	Text              string
	Caption           string
	MediaID           string
	MediaMimeType     string
	MediaURL          string
	ContextMessageID  string
	ContactName       string
	ButtonPayload     string
	ButtonText        string
	LocationLatitude  float64
	LocationLongitude float64
	LocationName      string
	RawPayload        map[string]any
}

// DeliveryStatus is a provider-agnostic delivery status update, grounded on
// providers/base.py's DeliveryStatus dataclass.
type DeliveryStatus struct {
	MessageID     string
	RecipientPhone string
	Status        string
	Timestamp     time.Time
	ErrorCode     string
	ErrorMessage  string
	RawPayload    map[string]any
}

// ProviderResponse is the outcome of one send call, grounded on
// providers/base.py's ProviderResponse dataclass.
type ProviderResponse struct {
	Success           bool
	ProviderMessageID string
	ErrorCode         string
	ErrorMessage      string
	Retryable         bool
}

// Button is one quick-reply option in an interactive send.
type Button struct {
	ID    string
	Title string
}

// Provider is the outbound/inbound capability every WhatsApp-style adapter
// must implement, grounded on providers/base.py's WhatsAppProvider ABC and
// spec §4.9.
type Provider interface {
	SendText(ctx context.Context, credential []byte, toPhone, text string) (ProviderResponse, error)
	SendTemplate(ctx context.Context, credential []byte, toPhone, templateName string, variables map[string]string) (ProviderResponse, error)
	SendInteractive(ctx context.Context, credential []byte, toPhone, text string, buttons []Button) (ProviderResponse, error)
	MarkAsRead(ctx context.Context, credential []byte, providerMessageID string) error
	GetMediaURL(ctx context.Context, credential []byte, mediaID string) (string, error)

	ValidateWebhookSignature(payload []byte, signatureHeader string, appSecret []byte) bool
	ParseWebhook(payload []byte) (messages []InboundMessage, statuses []DeliveryStatus, err error)
	VerifyWebhookChallenge(mode, token, challenge, expectedToken string) (string, bool)
}

// TemplateParameter is one named, typed value a template component needs.
type TemplateParameter struct {
	Name     string
	Type     string
	Required bool
}

// TemplateComponent is one piece of a provider template payload (header,
// body, button), grounded on providers/meta_cloud/templates.py.
type TemplateComponent struct {
	Type        string
	Parameters  []TemplateParameter
	ButtonIndex int
}

// MessageTemplate describes one pre-approved provider template.
type MessageTemplate struct {
	Name        string
	Language    string
	Category    string
	Components  []TemplateComponent
	Description string
}

// ProviderRegistry resolves the adapter for a tenant binding's provider tag
// (cloudapi, evolution, stub), shared by the webhook ingress and the
// outbound worker so both dispatch through the same set of adapters.
type ProviderRegistry interface {
	Get(providerTag string) (Provider, bool)
}
