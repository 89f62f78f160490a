// Package postgres is the engine platform's gorm-backed repository,
// grounded on engines_core/persistence/repo.py's upsert-by-key shape and
// this repository's other postgres adapters' transaction conventions.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"corehub/contexts/engine-platform/domain/entities"
	"corehub/contexts/engine-platform/ports"
)

type processedEventModel struct {
	EventID     string    `gorm:"column:event_id;primaryKey"`
	TenantID    string    `gorm:"column:tenant_id"`
	ProcessedAt time.Time `gorm:"column:processed_at"`
	Result      []byte    `gorm:"column:result"`
}

func (processedEventModel) TableName() string { return "engine_processed_events" }

type salesFactModel struct {
	ID         int64     `gorm:"column:id;primaryKey"`
	EventID    string    `gorm:"column:event_id"`
	TenantID   string    `gorm:"column:tenant_id"`
	OrderID    string    `gorm:"column:order_id"`
	ProductID  string    `gorm:"column:product_id"`
	ClientID   string    `gorm:"column:client_id"`
	Quantity   float64   `gorm:"column:quantity"`
	UnitPrice  float64   `gorm:"column:unit_price"`
	TotalValue float64   `gorm:"column:total_value"`
	OccurredAt time.Time `gorm:"column:occurred_at"`
}

func (salesFactModel) TableName() string { return "sales_facts" }

type stockFactModel struct {
	ID            int64     `gorm:"column:id;primaryKey"`
	EventID       string    `gorm:"column:event_id"`
	TenantID      string    `gorm:"column:tenant_id"`
	ProductID     string    `gorm:"column:product_id"`
	MovementType  string    `gorm:"column:movement_type"`
	QuantityDelta float64   `gorm:"column:quantity_delta"`
	QuantityAfter float64   `gorm:"column:quantity_after"`
	ReferenceID   string    `gorm:"column:reference_id"`
	OccurredAt    time.Time `gorm:"column:occurred_at"`
}

func (stockFactModel) TableName() string { return "stock_facts" }

type stockAlertModel struct {
	ID               int64     `gorm:"column:id;primaryKey"`
	TenantID         string    `gorm:"column:tenant_id"`
	ProductID        string    `gorm:"column:product_id"`
	RiskLevel        string    `gorm:"column:risk_level"`
	CurrentStock     float64   `gorm:"column:current_stock"`
	MinimumStock     float64   `gorm:"column:minimum_stock"`
	DaysUntilRupture int       `gorm:"column:days_until_rupture"`
	Status           string    `gorm:"column:status"`
	Explanation      string    `gorm:"column:explanation"`
	UpdatedAt        time.Time `gorm:"column:updated_at"`
}

func (stockAlertModel) TableName() string { return "stock_alerts" }

type replenishmentSuggestionModel struct {
	ID                int64     `gorm:"column:id;primaryKey"`
	TenantID          string    `gorm:"column:tenant_id"`
	ProductID         string    `gorm:"column:product_id"`
	SuggestedQuantity float64   `gorm:"column:suggested_quantity"`
	Priority          string    `gorm:"column:priority"`
	Status            string    `gorm:"column:status"`
	UpdatedAt         time.Time `gorm:"column:updated_at"`
}

func (replenishmentSuggestionModel) TableName() string { return "replenishment_suggestions" }

type salesSuggestionModel struct {
	ID                 int64     `gorm:"column:id;primaryKey"`
	TenantID           string    `gorm:"column:tenant_id"`
	SuggestionType     string    `gorm:"column:suggestion_type"`
	SourceProductID    string    `gorm:"column:source_product_id"`
	SuggestedProductID string    `gorm:"column:suggested_product_id"`
	Frequency          float64   `gorm:"column:frequency"`
	Priority           string    `gorm:"column:priority"`
	UpdatedAt          time.Time `gorm:"column:updated_at"`
}

func (salesSuggestionModel) TableName() string { return "sales_suggestions" }

type supplierPriceAlertModel struct {
	ID         int64     `gorm:"column:id;primaryKey"`
	TenantID   string    `gorm:"column:tenant_id"`
	ProductID  string    `gorm:"column:product_id"`
	SupplierID string    `gorm:"column:supplier_id"`
	OldPrice   float64   `gorm:"column:old_price"`
	NewPrice   float64   `gorm:"column:new_price"`
	ChangePct  float64   `gorm:"column:change_pct"`
	Status     string    `gorm:"column:status"`
	UpdatedAt  time.Time `gorm:"column:updated_at"`
}

func (supplierPriceAlertModel) TableName() string { return "supplier_price_alerts" }

type quoteConversionModel struct {
	ID         int64     `gorm:"column:id;primaryKey"`
	EventID    string    `gorm:"column:event_id"`
	TenantID   string    `gorm:"column:tenant_id"`
	QuoteID    string    `gorm:"column:quote_id"`
	OrderID    string    `gorm:"column:order_id"`
	OccurredAt time.Time `gorm:"column:occurred_at"`
}

func (quoteConversionModel) TableName() string { return "quote_conversions" }

// Repository implements ports.Repository against Postgres via gorm.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (r *Repository) WithinTx(ctx context.Context, fn func(ctx context.Context, tx ports.Repository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(ctx, &Repository{db: tx})
	})
}

func (r *Repository) IsProcessed(ctx context.Context, eventID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&processedEventModel{}).Where("event_id = ?", eventID).Count(&count).Error
	return count > 0, err
}

func (r *Repository) MarkProcessed(ctx context.Context, eventID, tenantID, eventType string, result any) (bool, error) {
	var resultJSON []byte
	if result != nil {
		var err error
		resultJSON, err = json.Marshal(result)
		if err != nil {
			return false, fmt.Errorf("marshal result: %w", err)
		}
	}
	tx := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "event_id"}}, DoNothing: true}).
		Create(&processedEventModel{EventID: eventID, TenantID: tenantID, ProcessedAt: time.Now().UTC(), Result: resultJSON})
	if tx.Error != nil {
		return false, tx.Error
	}
	_ = eventType
	return tx.RowsAffected > 0, nil
}

func (r *Repository) RecordSalesFact(ctx context.Context, f entities.SalesFact) (bool, error) {
	var existing int64
	if err := r.db.WithContext(ctx).Model(&salesFactModel{}).Where("event_id = ?", f.EventID).Count(&existing).Error; err != nil {
		return false, err
	}
	if existing > 0 {
		return false, nil
	}
	model := salesFactModel{
		EventID: f.EventID, TenantID: f.TenantID, OrderID: f.OrderID, ProductID: f.ProductID,
		ClientID: f.ClientID, Quantity: f.Quantity, UnitPrice: f.UnitPrice, TotalValue: f.TotalValue,
		OccurredAt: f.OccurredAt,
	}
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		return false, err
	}
	return true, nil
}

func (r *Repository) RecordStockFact(ctx context.Context, f entities.StockFact) (bool, error) {
	var existing int64
	if err := r.db.WithContext(ctx).Model(&stockFactModel{}).Where("event_id = ?", f.EventID).Count(&existing).Error; err != nil {
		return false, err
	}
	if existing > 0 {
		return false, nil
	}
	model := stockFactModel{
		EventID: f.EventID, TenantID: f.TenantID, ProductID: f.ProductID, MovementType: f.MovementType,
		QuantityDelta: f.QuantityDelta, QuantityAfter: f.QuantityAfter, ReferenceID: f.ReferenceID,
		OccurredAt: f.OccurredAt,
	}
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		return false, err
	}
	return true, nil
}

func (r *Repository) CurrentStock(ctx context.Context, tenantID, productID string) (float64, error) {
	var latest stockFactModel
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND product_id = ?", tenantID, productID).
		Order("occurred_at DESC").
		First(&latest).Error
	if err == nil {
		return latest.QuantityAfter, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, err
	}

	var total float64
	err = r.db.WithContext(ctx).Model(&stockFactModel{}).
		Where("tenant_id = ? AND product_id = ?", tenantID, productID).
		Select("COALESCE(SUM(quantity_delta), 0)").Scan(&total).Error
	return total, err
}

func (r *Repository) AverageDailySales(ctx context.Context, tenantID, productID string, window time.Duration) (float64, error) {
	cutoff := time.Now().UTC().Add(-window)
	var total float64
	err := r.db.WithContext(ctx).Model(&salesFactModel{}).
		Where("tenant_id = ? AND product_id = ? AND occurred_at >= ?", tenantID, productID, cutoff).
		Select("COALESCE(SUM(quantity), 0)").Scan(&total).Error
	if err != nil {
		return 0, err
	}
	days := window.Hours() / 24
	if days <= 0 {
		return 0, nil
	}
	return total / days, nil
}

func (r *Repository) UpsertStockAlert(ctx context.Context, a entities.StockAlert) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "tenant_id"}, {Name: "product_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"risk_level", "current_stock", "minimum_stock", "days_until_rupture", "status", "explanation", "updated_at",
			}),
		}).
		Create(&stockAlertModel{
			TenantID: a.TenantID, ProductID: a.ProductID, RiskLevel: a.RiskLevel,
			CurrentStock: a.CurrentStock, MinimumStock: a.MinimumStock, DaysUntilRupture: a.DaysUntilRupture,
			Status: entities.AlertStatusActive, Explanation: a.Explanation, UpdatedAt: a.UpdatedAt,
		}).Error
}

func (r *Repository) ResolveStockAlert(ctx context.Context, tenantID, productID string) error {
	return r.db.WithContext(ctx).Model(&stockAlertModel{}).
		Where("tenant_id = ? AND product_id = ? AND status = ?", tenantID, productID, entities.AlertStatusActive).
		Updates(map[string]any{"status": entities.AlertStatusResolved, "updated_at": time.Now().UTC()}).Error
}

func (r *Repository) UpsertReplenishmentSuggestion(ctx context.Context, s entities.ReplenishmentSuggestion) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "tenant_id"}, {Name: "product_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"suggested_quantity", "priority", "status", "updated_at"}),
		}).
		Create(&replenishmentSuggestionModel{
			TenantID: s.TenantID, ProductID: s.ProductID, SuggestedQuantity: s.SuggestedQuantity,
			Priority: s.Priority, Status: entities.AlertStatusActive, UpdatedAt: s.UpdatedAt,
		}).Error
}

func (r *Repository) ClearReplenishmentSuggestion(ctx context.Context, tenantID, productID string) error {
	return r.db.WithContext(ctx).Model(&replenishmentSuggestionModel{}).
		Where("tenant_id = ? AND product_id = ? AND status = ?", tenantID, productID, entities.AlertStatusActive).
		Updates(map[string]any{"status": entities.AlertStatusResolved, "updated_at": time.Now().UTC()}).Error
}

func (r *Repository) OrdersContainingProduct(ctx context.Context, tenantID, productID string, window time.Duration) ([]string, error) {
	cutoff := time.Now().UTC().Add(-window)
	var orderIDs []string
	err := r.db.WithContext(ctx).Model(&salesFactModel{}).
		Where("tenant_id = ? AND product_id = ? AND occurred_at >= ?", tenantID, productID, cutoff).
		Distinct("order_id").Pluck("order_id", &orderIDs).Error
	return orderIDs, err
}

func (r *Repository) OtherProductsInOrders(ctx context.Context, tenantID string, orderIDs []string, excludeProductID string) (map[string][]string, error) {
	if len(orderIDs) == 0 {
		return map[string][]string{}, nil
	}
	type row struct {
		OrderID   string
		ProductID string
	}
	var rows []row
	err := r.db.WithContext(ctx).Model(&salesFactModel{}).
		Select("DISTINCT order_id, product_id").
		Where("tenant_id = ? AND order_id IN ? AND product_id <> ?", tenantID, orderIDs, excludeProductID).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string][]string, len(orderIDs))
	for _, row := range rows {
		out[row.OrderID] = append(out[row.OrderID], row.ProductID)
	}
	return out, nil
}

func (r *Repository) UpsertSalesSuggestion(ctx context.Context, s entities.SalesSuggestion) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "tenant_id"}, {Name: "suggestion_type"}, {Name: "source_product_id"}, {Name: "suggested_product_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"frequency", "priority", "updated_at"}),
		}).
		Create(&salesSuggestionModel{
			TenantID: s.TenantID, SuggestionType: s.SuggestionType, SourceProductID: s.SourceProductID,
			SuggestedProductID: s.SuggestedProductID, Frequency: s.Frequency, Priority: s.Priority, UpdatedAt: s.UpdatedAt,
		}).Error
}

func (r *Repository) UpsertSupplierPriceAlert(ctx context.Context, a entities.SupplierPriceAlert) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "tenant_id"}, {Name: "product_id"}, {Name: "supplier_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"old_price", "new_price", "change_pct", "status", "updated_at"}),
		}).
		Create(&supplierPriceAlertModel{
			TenantID: a.TenantID, ProductID: a.ProductID, SupplierID: a.SupplierID,
			OldPrice: a.OldPrice, NewPrice: a.NewPrice, ChangePct: a.ChangePct, Status: entities.AlertStatusActive, UpdatedAt: a.UpdatedAt,
		}).Error
}

func (r *Repository) RecordQuoteConversion(ctx context.Context, c entities.QuoteConversion) (bool, error) {
	var existing int64
	if err := r.db.WithContext(ctx).Model(&quoteConversionModel{}).Where("event_id = ?", c.EventID).Count(&existing).Error; err != nil {
		return false, err
	}
	if existing > 0 {
		return false, nil
	}
	model := quoteConversionModel{EventID: c.EventID, TenantID: c.TenantID, QuoteID: c.QuoteID, OrderID: c.OrderID, OccurredAt: c.OccurredAt}
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		return false, err
	}
	return true, nil
}
