// Package postgres is the relay's gorm-backed view of the outbox table,
// grounded on the upsert/transaction conventions used throughout this
// repository's other postgres repositories.
package postgres

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"corehub/contexts/outbox-relay/ports"
	"corehub/internal/shared/outbox"
)

type outboxModel struct {
	ID           int64  `gorm:"column:id;primaryKey"`
	EventID      string `gorm:"column:event_id"`
	TenantID     string `gorm:"column:tenant_id"`
	EventType    string `gorm:"column:event_type"`
	Vertical     string `gorm:"column:vertical"`
	Payload      []byte `gorm:"column:payload"`
	Version      int    `gorm:"column:version"`
	Status       string `gorm:"column:status"`
	CreatedAt    time.Time  `gorm:"column:created_at"`
	PublishedAt  *time.Time `gorm:"column:published_at"`
	FailedAt     *time.Time `gorm:"column:failed_at"`
	ErrorMessage string     `gorm:"column:error_message"`
	RetryCount   int        `gorm:"column:retry_count"`
}

func (outboxModel) TableName() string { return "outbox" }

// Repository implements ports.OutboxRepository against Postgres.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// AppendRow inserts a producer's domain event as an outbox row, deduping on
// event_id so a producer's own at-least-once retries don't double-queue the
// same event.
func (r *Repository) AppendRow(ctx context.Context, row outbox.Row) error {
	model := outboxModel{
		EventID:   row.EventID,
		TenantID:  row.TenantID,
		EventType: row.EventType,
		Vertical:  row.Vertical,
		Payload:   row.Payload,
		Version:   row.Version,
		Status:    outbox.StatusPending,
	}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "event_id"}}, DoNothing: true}).
		Create(&model).Error
	if err != nil {
		return fmt.Errorf("outbox postgres: append row: %w", err)
	}
	return nil
}

func (r *Repository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// ClaimBatch opens a transaction and selects up to limit unpublished rows
// with FOR UPDATE SKIP LOCKED, so concurrent relay replicas each get a
// disjoint batch instead of blocking on each other's locks.
func (r *Repository) ClaimBatch(ctx context.Context, limit int) ([]outbox.Row, ports.Tx, error) {
	tx := r.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, nil, fmt.Errorf("outbox postgres: begin: %w", tx.Error)
	}

	var models []outboxModel
	err := tx.
		Raw(`SELECT * FROM outbox WHERE published_at IS NULL ORDER BY created_at ASC LIMIT ? FOR UPDATE SKIP LOCKED`, limit).
		Scan(&models).Error
	if err != nil {
		tx.Rollback()
		return nil, nil, fmt.Errorf("outbox postgres: claim batch: %w", err)
	}

	rows := make([]outbox.Row, 0, len(models))
	for _, m := range models {
		rows = append(rows, toRow(m))
	}
	return rows, &sqlTx{tx: tx}, nil
}

type sqlTx struct {
	tx *gorm.DB
}

func (t *sqlTx) MarkPublished(ctx context.Context, rowID int64, publishedAt time.Time) error {
	return t.tx.WithContext(ctx).Model(&outboxModel{}).Where("id = ?", rowID).Update("published_at", publishedAt).Error
}

func (t *sqlTx) Commit() error   { return t.tx.Commit().Error }
func (t *sqlTx) Rollback() error { return t.tx.Rollback().Error }

func toRow(m outboxModel) outbox.Row {
	return outbox.Row{
		ID:           m.ID,
		EventID:      m.EventID,
		TenantID:     m.TenantID,
		EventType:    m.EventType,
		Vertical:     m.Vertical,
		Payload:      m.Payload,
		Version:      m.Version,
		Status:       m.Status,
		CreatedAt:    m.CreatedAt,
		PublishedAt:  m.PublishedAt,
		FailedAt:     m.FailedAt,
		ErrorMessage: m.ErrorMessage,
		RetryCount:   m.RetryCount,
	}
}
