// Package entities holds the messaging engine's persisted shapes: tenant
// bindings, conversations, messages, and opt-outs (E5).
package entities

import "time"

// Conversation status values (coarse-grained). opted_out is a correction
// over the original source, whose ConversationStatus enum lacks it even
// though its finer-grained ConversationState enum already has OPTED_OUT.
const (
	StatusActive           = "active"
	StatusWaitingResponse  = "waiting_response"
	StatusHumanAssigned    = "human_assigned"
	StatusClosed           = "closed"
	StatusOptedOut         = "opted_out"
)

// Conversation current_state values (fine-grained), mirroring
// routing/conversation.py's ConversationState enum.
const (
	StateNew             = "new"
	StateIdle            = "idle"
	StateAwaitingResponse = "awaiting_response"
	StateProcessing      = "processing"
	StateQuoteFlow       = "quote_flow"
	StateOrderStatusFlow = "order_status_flow"
	StateHumanRequested  = "human_requested"
	StateClosed          = "closed"
	StateOptedOut        = "opted_out"
)

// Message direction and status values.
const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"

	MessageStatusPending   = "pending"
	MessageStatusSent      = "sent"
	MessageStatusDelivered = "delivered"
	MessageStatusRead      = "read"
	MessageStatusFailed    = "failed"
)

// Provider tags recognized by the tenant resolver and provider factory.
const (
	ProviderCloudAPI  = "cloudapi"
	ProviderEvolution = "evolution"
	ProviderStub      = "stub"
)

// TenantBinding maps one provider routing identifier (a Cloud-API phone
// number id, or an Evolution instance name) to a tenant, carrying the
// encrypted provider credential.
type TenantBinding struct {
	ID                 int64
	TenantID           string
	Provider           string
	RoutingIdentifier  string
	DisplayNumber      string
	EncryptedCredential []byte
	IsActive           bool
	Config             map[string]any
	CreatedAt          time.Time
}

// Conversation is the per-(tenant, customer_phone) thread state.
type Conversation struct {
	ID             int64
	TenantID       string
	CustomerPhone  string
	CustomerName   string
	Status         string
	CurrentState   string
	MessageCount   int
	LastInboundAt  *time.Time
	LastOutboundAt *time.Time
	Context        map[string]any
	CreatedAt      time.Time
}

// IsActive reports whether the conversation can still receive automated
// traffic (not opted out, not closed).
func (c Conversation) IsActive() bool {
	return c.Status != StatusOptedOut && c.Status != StatusClosed
}

// Message is one inbound or outbound WhatsApp message row.
type Message struct {
	ID                 int64
	TenantID           string
	ConversationID     int64
	ProviderMessageID  string // empty until the provider assigns one (outbound, pre-send)
	Direction          string
	Status             string
	Body               string
	TemplateName       string
	ReplyToMessageID   string
	TriggeringEventID  string
	RetryCount         int
	ErrorCode          string
	ErrorMessage       string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// OptOut records that a customer asked not to be messaged.
type OptOut struct {
	ID                int64
	TenantID          string
	CustomerPhone     string
	Reason            string
	OriginalMessageID string
	IsActive          bool
	OptedOutAt        time.Time
	ReactivatedAt     *time.Time
}
