package services

import (
	"context"
	"time"

	"corehub/contexts/messaging-engine/domain/entities"
	"corehub/contexts/messaging-engine/ports"
)

// ConversationManager owns conversation state transitions, grounded on
// routing/conversation.py's ConversationManager.
type ConversationManager struct {
	repo ports.Repository
}

// NewConversationManager builds a ConversationManager over repo. repo may
// be a transaction-scoped Repository obtained from WithinTx.
func NewConversationManager(repo ports.Repository) *ConversationManager {
	return &ConversationManager{repo: repo}
}

// GetOrCreateConversation returns the existing thread for (tenantID,
// customerPhone), creating one if absent.
func (m *ConversationManager) GetOrCreateConversation(ctx context.Context, tenantID, customerPhone, customerName string) (*entities.Conversation, bool, error) {
	return m.repo.GetOrCreateConversation(ctx, tenantID, customerPhone, customerName)
}

// RecordInbound marks an inbound message as received: bumps the message
// count and last-inbound timestamp, and reopens a closed conversation.
func (m *ConversationManager) RecordInbound(ctx context.Context, conv *entities.Conversation, at time.Time) error {
	conv.MessageCount++
	conv.LastInboundAt = &at
	if conv.Status == entities.StatusClosed {
		conv.Status = entities.StatusActive
	}
	return m.repo.SaveConversation(ctx, conv)
}

// RecordOutbound marks an outbound message as sent: bumps the message count
// and last-outbound timestamp.
func (m *ConversationManager) RecordOutbound(ctx context.Context, conv *entities.Conversation, at time.Time) error {
	conv.MessageCount++
	conv.LastOutboundAt = &at
	return m.repo.SaveConversation(ctx, conv)
}

// UpdateState transitions the conversation's fine-grained automation state,
// optionally merging extra context.
func (m *ConversationManager) UpdateState(ctx context.Context, conv *entities.Conversation, newState string, metadata map[string]any) error {
	conv.CurrentState = newState
	if len(metadata) > 0 {
		if conv.Context == nil {
			conv.Context = map[string]any{}
		}
		for k, v := range metadata {
			conv.Context[k] = v
		}
	}
	return m.repo.SaveConversation(ctx, conv)
}

// MarkOptedOut transitions a conversation into the terminal opted-out
// state. This is the correction over the original source's
// ConversationStatus enum, which lacked an opted_out value even though its
// finer-grained ConversationState enum already had one.
func (m *ConversationManager) MarkOptedOut(ctx context.Context, conv *entities.Conversation) error {
	conv.Status = entities.StatusOptedOut
	conv.CurrentState = entities.StateOptedOut
	return m.repo.SaveConversation(ctx, conv)
}

// CloseConversation closes a conversation, recording an optional reason.
func (m *ConversationManager) CloseConversation(ctx context.Context, conv *entities.Conversation, reason string) error {
	conv.Status = entities.StatusClosed
	metadata := map[string]any{}
	if reason != "" {
		metadata["close_reason"] = reason
	}
	return m.UpdateState(ctx, conv, entities.StateClosed, metadata)
}

// CanSendMessage reports whether the tenant may message customerPhone: the
// customer must not have opted out, and the tenant must carry an active
// provider binding.
func (m *ConversationManager) CanSendMessage(ctx context.Context, tenantID, customerPhone string) (bool, error) {
	optedOut, err := m.repo.IsOptedOut(ctx, tenantID, customerPhone)
	if err != nil {
		return false, err
	}
	if optedOut {
		return false, nil
	}

	binding, err := m.repo.GetActiveBindingForTenant(ctx, tenantID)
	if err != nil {
		return false, err
	}
	return binding != nil, nil
}

// GetRecentConversations lists a tenant's most recently active
// conversations, optionally filtered by status.
func (m *ConversationManager) GetRecentConversations(ctx context.Context, tenantID, status string, limit int) ([]entities.Conversation, error) {
	return m.repo.ListConversations(ctx, tenantID, status, limit)
}
