// Package memory is an in-process fake of ports.Repository, mirroring the
// in-memory adapters used throughout this repository's test suites.
package memory

import (
	"context"
	"sync"
	"time"

	"corehub/contexts/messaging-engine/domain/entities"
	merrors "corehub/contexts/messaging-engine/domain/errors"
	"corehub/contexts/messaging-engine/ports"
)

// Store holds every messaging-owned table in memory, guarded by a single
// mutex for the lifetime of each WithinTx call, mirroring the postgres
// adapter's one-transaction-per-event shape without needing a real DB.
type Store struct {
	mu sync.Mutex

	nextID        int64
	bindings      []entities.TenantBinding
	conversations []entities.Conversation
	messages      []entities.Message
	optOuts       []entities.OptOut
	processed     map[string]bool // key: provider_message_id
}

func NewStore() *Store {
	return &Store{processed: map[string]bool{}}
}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx ports.Repository) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.clone()
	if err := fn(ctx, s); err != nil {
		s.nextID, s.bindings, s.conversations = snapshot.nextID, snapshot.bindings, snapshot.conversations
		s.messages, s.optOuts, s.processed = snapshot.messages, snapshot.optOuts, snapshot.processed
		return err
	}
	return nil
}

func (s *Store) clone() *Store {
	c := &Store{nextID: s.nextID, processed: map[string]bool{}}
	c.bindings = append([]entities.TenantBinding{}, s.bindings...)
	c.conversations = append([]entities.Conversation{}, s.conversations...)
	c.messages = append([]entities.Message{}, s.messages...)
	c.optOuts = append([]entities.OptOut{}, s.optOuts...)
	for k, v := range s.processed {
		c.processed[k] = v
	}
	return c
}

func (s *Store) newID() int64 {
	s.nextID++
	return s.nextID
}

func (s *Store) GetBindingByRoutingIdentifier(_ context.Context, provider, routingIdentifier string) (*entities.TenantBinding, error) {
	for i := range s.bindings {
		b := &s.bindings[i]
		if b.Provider == provider && b.RoutingIdentifier == routingIdentifier && b.IsActive {
			cp := *b
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *Store) GetActiveBindingForTenant(_ context.Context, tenantID string) (*entities.TenantBinding, error) {
	var found *entities.TenantBinding
	for i := range s.bindings {
		b := &s.bindings[i]
		if b.TenantID == tenantID && b.IsActive {
			if found == nil || b.CreatedAt.After(found.CreatedAt) {
				cp := *b
				found = &cp
			}
		}
	}
	return found, nil
}

func (s *Store) CreateBinding(_ context.Context, b *entities.TenantBinding) error {
	b.ID = s.newID()
	b.IsActive = true
	b.CreatedAt = time.Now().UTC()
	s.bindings = append(s.bindings, *b)
	return nil
}

func (s *Store) GetConversation(_ context.Context, tenantID, customerPhone string) (*entities.Conversation, error) {
	for i := range s.conversations {
		c := &s.conversations[i]
		if c.TenantID == tenantID && c.CustomerPhone == customerPhone {
			cp := *c
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *Store) GetConversationByID(_ context.Context, id int64) (*entities.Conversation, error) {
	for i := range s.conversations {
		if s.conversations[i].ID == id {
			cp := s.conversations[i]
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *Store) GetOrCreateConversation(ctx context.Context, tenantID, customerPhone, customerName string) (*entities.Conversation, bool, error) {
	existing, err := s.GetConversation(ctx, tenantID, customerPhone)
	if err != nil || existing != nil {
		return existing, false, err
	}

	conv := entities.Conversation{
		ID: s.newID(), TenantID: tenantID, CustomerPhone: customerPhone, CustomerName: customerName,
		Status: entities.StatusActive, CurrentState: entities.StateNew,
		Context: map[string]any{}, CreatedAt: time.Now().UTC(),
	}
	s.conversations = append(s.conversations, conv)
	return &conv, true, nil
}

func (s *Store) SaveConversation(_ context.Context, c *entities.Conversation) error {
	for i := range s.conversations {
		if s.conversations[i].ID == c.ID {
			s.conversations[i] = *c
			return nil
		}
	}
	return nil
}

func (s *Store) ListConversations(_ context.Context, tenantID, status string, limit int) ([]entities.Conversation, error) {
	var out []entities.Conversation
	for _, c := range s.conversations {
		if c.TenantID != tenantID {
			continue
		}
		if status != "" && c.Status != status {
			continue
		}
		out = append(out, c)
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) MarkMessageProcessed(_ context.Context, _, providerMessageID string) error {
	if s.processed[providerMessageID] {
		return merrors.ErrAlreadyProcessed
	}
	s.processed[providerMessageID] = true
	return nil
}

func (s *Store) CreateMessage(_ context.Context, msg *entities.Message) error {
	msg.ID = s.newID()
	msg.CreatedAt = time.Now().UTC()
	msg.UpdatedAt = msg.CreatedAt
	s.messages = append(s.messages, *msg)
	return nil
}

func (s *Store) GetMessageByProviderID(_ context.Context, providerMessageID string) (*entities.Message, error) {
	for i := range s.messages {
		if s.messages[i].ProviderMessageID == providerMessageID {
			cp := s.messages[i]
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *Store) GetMessageByTriggeringEventID(_ context.Context, tenantID, triggeringEventID string) (*entities.Message, error) {
	for i := len(s.messages) - 1; i >= 0; i-- {
		if s.messages[i].TenantID == tenantID && s.messages[i].TriggeringEventID == triggeringEventID {
			cp := s.messages[i]
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *Store) UpdateMessageStatus(_ context.Context, messageID int64, status, errorCode, errorMessage string) error {
	for i := range s.messages {
		if s.messages[i].ID == messageID {
			s.messages[i].Status = status
			s.messages[i].ErrorCode = errorCode
			s.messages[i].ErrorMessage = errorMessage
			s.messages[i].UpdatedAt = time.Now().UTC()
			return nil
		}
	}
	return nil
}

func (s *Store) UpdateMessageProviderID(_ context.Context, messageID int64, providerMessageID string) error {
	for i := range s.messages {
		if s.messages[i].ID == messageID {
			s.messages[i].ProviderMessageID = providerMessageID
			s.messages[i].UpdatedAt = time.Now().UTC()
			return nil
		}
	}
	return nil
}

func (s *Store) IncrementMessageRetryCount(_ context.Context, messageID int64) (int, error) {
	for i := range s.messages {
		if s.messages[i].ID == messageID {
			s.messages[i].RetryCount++
			s.messages[i].UpdatedAt = time.Now().UTC()
			return s.messages[i].RetryCount, nil
		}
	}
	return 0, nil
}

func (s *Store) GetRecentMessages(_ context.Context, conversationID int64, limit int) ([]entities.Message, error) {
	var out []entities.Message
	for i := len(s.messages) - 1; i >= 0; i-- {
		if s.messages[i].ConversationID == conversationID {
			out = append(out, s.messages[i])
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (s *Store) IsOptedOut(_ context.Context, tenantID, customerPhone string) (bool, error) {
	for _, o := range s.optOuts {
		if o.TenantID == tenantID && o.CustomerPhone == customerPhone && o.IsActive {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) GetOptOut(_ context.Context, tenantID, customerPhone string) (*entities.OptOut, error) {
	for i := range s.optOuts {
		o := &s.optOuts[i]
		if o.TenantID == tenantID && o.CustomerPhone == customerPhone {
			cp := *o
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *Store) CreateOptOut(_ context.Context, o *entities.OptOut) error {
	for i := range s.optOuts {
		existing := &s.optOuts[i]
		if existing.TenantID == o.TenantID && existing.CustomerPhone == o.CustomerPhone {
			existing.IsActive = true
			existing.Reason = o.Reason
			existing.OriginalMessageID = o.OriginalMessageID
			existing.OptedOutAt = time.Now().UTC()
			existing.ReactivatedAt = nil
			*o = *existing
			return nil
		}
	}
	o.ID = s.newID()
	o.IsActive = true
	o.OptedOutAt = time.Now().UTC()
	s.optOuts = append(s.optOuts, *o)
	return nil
}

func (s *Store) RemoveOptOut(_ context.Context, tenantID, customerPhone string) error {
	now := time.Now().UTC()
	for i := range s.optOuts {
		o := &s.optOuts[i]
		if o.TenantID == tenantID && o.CustomerPhone == customerPhone {
			o.IsActive = false
			o.ReactivatedAt = &now
		}
	}
	return nil
}
