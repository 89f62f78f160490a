// Package postgres is the messaging engine's gorm-backed repository,
// grounded on persistence/repo.py's WhatsAppRepository and this
// repository's other postgres adapters' transaction conventions.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"corehub/contexts/messaging-engine/domain/entities"
	merrors "corehub/contexts/messaging-engine/domain/errors"
	"corehub/contexts/messaging-engine/ports"
)

type tenantBindingModel struct {
	ID                  int64     `gorm:"column:id;primaryKey"`
	TenantID            string    `gorm:"column:tenant_id"`
	Provider            string    `gorm:"column:provider"`
	RoutingIdentifier   string    `gorm:"column:routing_identifier"`
	DisplayNumber       string    `gorm:"column:display_number"`
	EncryptedCredential []byte    `gorm:"column:encrypted_credential"`
	IsActive            bool      `gorm:"column:is_active"`
	Config              []byte    `gorm:"column:config"`
	CreatedAt           time.Time `gorm:"column:created_at"`
}

func (tenantBindingModel) TableName() string { return "whatsapp_tenant_bindings" }

type conversationModel struct {
	ID             int64      `gorm:"column:id;primaryKey"`
	TenantID       string     `gorm:"column:tenant_id"`
	CustomerPhone  string     `gorm:"column:customer_phone"`
	CustomerName   string     `gorm:"column:customer_name"`
	Status         string     `gorm:"column:status"`
	CurrentState   string     `gorm:"column:current_state"`
	MessageCount   int        `gorm:"column:message_count"`
	LastInboundAt  *time.Time `gorm:"column:last_inbound_at"`
	LastOutboundAt *time.Time `gorm:"column:last_outbound_at"`
	Context        []byte     `gorm:"column:context"`
	CreatedAt      time.Time  `gorm:"column:created_at"`
}

func (conversationModel) TableName() string { return "whatsapp_conversations" }

type messageModel struct {
	ID                int64     `gorm:"column:id;primaryKey"`
	TenantID          string    `gorm:"column:tenant_id"`
	ConversationID    int64     `gorm:"column:conversation_id"`
	ProviderMessageID *string   `gorm:"column:provider_message_id"`
	Direction         string    `gorm:"column:direction"`
	Status            string    `gorm:"column:status"`
	Body              string    `gorm:"column:body"`
	TemplateName      string    `gorm:"column:template_name"`
	ReplyToMessageID  string    `gorm:"column:reply_to_message_id"`
	TriggeringEventID string    `gorm:"column:triggering_event_id"`
	RetryCount        int       `gorm:"column:retry_count"`
	ErrorCode         string    `gorm:"column:error_code"`
	ErrorMessage      string    `gorm:"column:error_message"`
	CreatedAt         time.Time `gorm:"column:created_at"`
	UpdatedAt         time.Time `gorm:"column:updated_at"`
}

func (messageModel) TableName() string { return "whatsapp_messages" }

type optOutModel struct {
	ID                int64      `gorm:"column:id;primaryKey"`
	TenantID          string     `gorm:"column:tenant_id"`
	CustomerPhone     string     `gorm:"column:customer_phone"`
	Reason            string     `gorm:"column:reason"`
	OriginalMessageID string     `gorm:"column:original_message_id"`
	IsActive          bool       `gorm:"column:is_active"`
	OptedOutAt        time.Time  `gorm:"column:opted_out_at"`
	ReactivatedAt     *time.Time `gorm:"column:reactivated_at"`
}

func (optOutModel) TableName() string { return "whatsapp_optouts" }

type processedMessageModel struct {
	ProviderMessageID string    `gorm:"column:provider_message_id;primaryKey"`
	TenantID          string    `gorm:"column:tenant_id"`
	ProcessedAt       time.Time `gorm:"column:processed_at"`
}

func (processedMessageModel) TableName() string { return "whatsapp_processed_messages" }

// Repository implements ports.Repository against Postgres via gorm.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) WithinTx(ctx context.Context, fn func(ctx context.Context, tx ports.Repository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(ctx, &Repository{db: tx})
	})
}

func (r *Repository) GetBindingByRoutingIdentifier(ctx context.Context, provider, routingIdentifier string) (*entities.TenantBinding, error) {
	var model tenantBindingModel
	err := r.db.WithContext(ctx).
		Where("provider = ? AND routing_identifier = ? AND is_active = true", provider, routingIdentifier).
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return bindingFromModel(model)
}

func (r *Repository) GetActiveBindingForTenant(ctx context.Context, tenantID string) (*entities.TenantBinding, error) {
	var model tenantBindingModel
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND is_active = true", tenantID).
		Order("created_at DESC").
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return bindingFromModel(model)
}

func (r *Repository) CreateBinding(ctx context.Context, b *entities.TenantBinding) error {
	configJSON, err := json.Marshal(b.Config)
	if err != nil {
		return err
	}
	model := tenantBindingModel{
		TenantID: b.TenantID, Provider: b.Provider, RoutingIdentifier: b.RoutingIdentifier,
		DisplayNumber: b.DisplayNumber, EncryptedCredential: b.EncryptedCredential,
		IsActive: true, Config: configJSON, CreatedAt: time.Now().UTC(),
	}
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		return err
	}
	b.ID = model.ID
	b.CreatedAt = model.CreatedAt
	return nil
}

func bindingFromModel(m tenantBindingModel) (*entities.TenantBinding, error) {
	var cfg map[string]any
	if len(m.Config) > 0 {
		if err := json.Unmarshal(m.Config, &cfg); err != nil {
			return nil, err
		}
	}
	return &entities.TenantBinding{
		ID: m.ID, TenantID: m.TenantID, Provider: m.Provider, RoutingIdentifier: m.RoutingIdentifier,
		DisplayNumber: m.DisplayNumber, EncryptedCredential: m.EncryptedCredential, IsActive: m.IsActive,
		Config: cfg, CreatedAt: m.CreatedAt,
	}, nil
}

func (r *Repository) GetConversation(ctx context.Context, tenantID, customerPhone string) (*entities.Conversation, error) {
	var model conversationModel
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND customer_phone = ?", tenantID, customerPhone).
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return conversationFromModel(model)
}

func (r *Repository) GetConversationByID(ctx context.Context, id int64) (*entities.Conversation, error) {
	var model conversationModel
	err := r.db.WithContext(ctx).First(&model, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return conversationFromModel(model)
}

func (r *Repository) GetOrCreateConversation(ctx context.Context, tenantID, customerPhone, customerName string) (*entities.Conversation, bool, error) {
	existing, err := r.GetConversation(ctx, tenantID, customerPhone)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	model := conversationModel{
		TenantID: tenantID, CustomerPhone: customerPhone, CustomerName: customerName,
		Status: entities.StatusActive, CurrentState: entities.StateNew,
		Context: []byte("{}"), CreatedAt: time.Now().UTC(),
	}
	tx := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "tenant_id"}, {Name: "customer_phone"}}, DoNothing: true}).
		Create(&model)
	if tx.Error != nil {
		return nil, false, tx.Error
	}
	if tx.RowsAffected == 0 {
		existing, err := r.GetConversation(ctx, tenantID, customerPhone)
		return existing, false, err
	}
	created, err := conversationFromModel(model)
	return created, true, err
}

func (r *Repository) SaveConversation(ctx context.Context, c *entities.Conversation) error {
	contextJSON, err := json.Marshal(c.Context)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).Model(&conversationModel{}).Where("id = ?", c.ID).Updates(map[string]any{
		"customer_name":    c.CustomerName,
		"status":           c.Status,
		"current_state":    c.CurrentState,
		"message_count":    c.MessageCount,
		"last_inbound_at":  c.LastInboundAt,
		"last_outbound_at": c.LastOutboundAt,
		"context":          contextJSON,
	}).Error
}

func (r *Repository) ListConversations(ctx context.Context, tenantID, status string, limit int) ([]entities.Conversation, error) {
	q := r.db.WithContext(ctx).Where("tenant_id = ?", tenantID)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var models []conversationModel
	if err := q.Order("COALESCE(last_inbound_at, last_outbound_at, created_at) DESC").Limit(limit).Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]entities.Conversation, 0, len(models))
	for _, m := range models {
		c, err := conversationFromModel(m)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, nil
}

func conversationFromModel(m conversationModel) (*entities.Conversation, error) {
	var ctxData map[string]any
	if len(m.Context) > 0 {
		if err := json.Unmarshal(m.Context, &ctxData); err != nil {
			return nil, err
		}
	}
	return &entities.Conversation{
		ID: m.ID, TenantID: m.TenantID, CustomerPhone: m.CustomerPhone, CustomerName: m.CustomerName,
		Status: m.Status, CurrentState: m.CurrentState, MessageCount: m.MessageCount,
		LastInboundAt: m.LastInboundAt, LastOutboundAt: m.LastOutboundAt, Context: ctxData, CreatedAt: m.CreatedAt,
	}, nil
}

// MarkMessageProcessed inserts the idempotency marker row for a provider
// message id. Must run inside the same transaction as the rest of the
// inbound apply so a duplicate delivery rolls the whole apply back.
func (r *Repository) MarkMessageProcessed(ctx context.Context, tenantID, providerMessageID string) error {
	tx := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&processedMessageModel{TenantID: tenantID, ProviderMessageID: providerMessageID, ProcessedAt: time.Now().UTC()})
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return merrors.ErrAlreadyProcessed
	}
	return nil
}

func (r *Repository) CreateMessage(ctx context.Context, msg *entities.Message) error {
	var providerMessageID *string
	if msg.ProviderMessageID != "" {
		providerMessageID = &msg.ProviderMessageID
	}
	model := messageModel{
		TenantID: msg.TenantID, ConversationID: msg.ConversationID, ProviderMessageID: providerMessageID,
		Direction: msg.Direction, Status: msg.Status, Body: msg.Body, TemplateName: msg.TemplateName,
		ReplyToMessageID: msg.ReplyToMessageID, TriggeringEventID: msg.TriggeringEventID,
		RetryCount: msg.RetryCount, ErrorCode: msg.ErrorCode, ErrorMessage: msg.ErrorMessage,
		CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC(),
	}
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		return err
	}
	msg.ID = model.ID
	msg.CreatedAt = model.CreatedAt
	msg.UpdatedAt = model.UpdatedAt
	return nil
}

func (r *Repository) GetMessageByProviderID(ctx context.Context, providerMessageID string) (*entities.Message, error) {
	var model messageModel
	err := r.db.WithContext(ctx).Where("provider_message_id = ?", providerMessageID).First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return messageFromModel(model), nil
}

func (r *Repository) GetMessageByTriggeringEventID(ctx context.Context, tenantID, triggeringEventID string) (*entities.Message, error) {
	var model messageModel
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND triggering_event_id = ?", tenantID, triggeringEventID).
		Order("id DESC").First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return messageFromModel(model), nil
}

func (r *Repository) UpdateMessageStatus(ctx context.Context, messageID int64, status, errorCode, errorMessage string) error {
	return r.db.WithContext(ctx).Model(&messageModel{}).Where("id = ?", messageID).Updates(map[string]any{
		"status": status, "error_code": errorCode, "error_message": errorMessage, "updated_at": time.Now().UTC(),
	}).Error
}

func (r *Repository) UpdateMessageProviderID(ctx context.Context, messageID int64, providerMessageID string) error {
	return r.db.WithContext(ctx).Model(&messageModel{}).Where("id = ?", messageID).
		Updates(map[string]any{"provider_message_id": providerMessageID, "updated_at": time.Now().UTC()}).Error
}

func (r *Repository) IncrementMessageRetryCount(ctx context.Context, messageID int64) (int, error) {
	if err := r.db.WithContext(ctx).Model(&messageModel{}).Where("id = ?", messageID).
		Update("retry_count", gorm.Expr("retry_count + 1")).Error; err != nil {
		return 0, err
	}
	var model messageModel
	if err := r.db.WithContext(ctx).Select("retry_count").First(&model, messageID).Error; err != nil {
		return 0, err
	}
	return model.RetryCount, nil
}

func (r *Repository) GetRecentMessages(ctx context.Context, conversationID int64, limit int) ([]entities.Message, error) {
	var models []messageModel
	err := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at DESC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	out := make([]entities.Message, 0, len(models))
	for _, m := range models {
		out = append(out, *messageFromModel(m))
	}
	return out, nil
}

func messageFromModel(m messageModel) *entities.Message {
	providerMessageID := ""
	if m.ProviderMessageID != nil {
		providerMessageID = *m.ProviderMessageID
	}
	return &entities.Message{
		ID: m.ID, TenantID: m.TenantID, ConversationID: m.ConversationID, ProviderMessageID: providerMessageID,
		Direction: m.Direction, Status: m.Status, Body: m.Body, TemplateName: m.TemplateName,
		ReplyToMessageID: m.ReplyToMessageID, TriggeringEventID: m.TriggeringEventID,
		RetryCount: m.RetryCount, ErrorCode: m.ErrorCode, ErrorMessage: m.ErrorMessage,
		CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt,
	}
}

func (r *Repository) IsOptedOut(ctx context.Context, tenantID, customerPhone string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&optOutModel{}).
		Where("tenant_id = ? AND customer_phone = ? AND is_active = true", tenantID, customerPhone).
		Count(&count).Error
	return count > 0, err
}

func (r *Repository) GetOptOut(ctx context.Context, tenantID, customerPhone string) (*entities.OptOut, error) {
	var model optOutModel
	err := r.db.WithContext(ctx).Where("tenant_id = ? AND customer_phone = ?", tenantID, customerPhone).First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return optOutFromModel(model), nil
}

// CreateOptOut reactivates an existing opt-out record for this customer if
// one exists, rather than erroring on a duplicate, matching
// persistence/repo.py's create_optout.
func (r *Repository) CreateOptOut(ctx context.Context, o *entities.OptOut) error {
	existing, err := r.GetOptOut(ctx, o.TenantID, o.CustomerPhone)
	if err != nil {
		return err
	}
	if existing != nil {
		return r.db.WithContext(ctx).Model(&optOutModel{}).Where("id = ?", existing.ID).Updates(map[string]any{
			"is_active": true, "reason": o.Reason, "original_message_id": o.OriginalMessageID,
			"opted_out_at": time.Now().UTC(), "reactivated_at": nil,
		}).Error
	}

	model := optOutModel{
		TenantID: o.TenantID, CustomerPhone: o.CustomerPhone, Reason: o.Reason,
		OriginalMessageID: o.OriginalMessageID, IsActive: true, OptedOutAt: time.Now().UTC(),
	}
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		return err
	}
	o.ID = model.ID
	o.OptedOutAt = model.OptedOutAt
	return nil
}

func (r *Repository) RemoveOptOut(ctx context.Context, tenantID, customerPhone string) error {
	now := time.Now().UTC()
	return r.db.WithContext(ctx).Model(&optOutModel{}).
		Where("tenant_id = ? AND customer_phone = ?", tenantID, customerPhone).
		Updates(map[string]any{"is_active": false, "reactivated_at": now}).Error
}

func optOutFromModel(m optOutModel) *entities.OptOut {
	return &entities.OptOut{
		ID: m.ID, TenantID: m.TenantID, CustomerPhone: m.CustomerPhone, Reason: m.Reason,
		OriginalMessageID: m.OriginalMessageID, IsActive: m.IsActive, OptedOutAt: m.OptedOutAt, ReactivatedAt: m.ReactivatedAt,
	}
}
