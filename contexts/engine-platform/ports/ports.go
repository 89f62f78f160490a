// Package ports declares the engine platform's repository boundary. A
// single implementation (adapters/postgres) and a single test fake
// (adapters/memory) satisfy it; engines themselves never see *sql.DB or
// *gorm.DB.
package ports

import (
	"context"
	"time"

	"corehub/contexts/engine-platform/domain/entities"
)

// ProcessedEvents guards idempotency: exactly one caller ever observes
// MarkProcessed return (true, nil) for a given event id.
type ProcessedEvents interface {
	// IsProcessed reports whether event_id has already been recorded.
	IsProcessed(ctx context.Context, eventID string) (bool, error)
	// MarkProcessed atomically records event_id as processed, returning
	// false (no error) if another caller already recorded it first.
	MarkProcessed(ctx context.Context, eventID, tenantID, eventType string, result any) (bool, error)
}

// Repository is the engine platform's full persistence boundary: facts,
// projections, and idempotency, scoped per call by tenant.
type Repository interface {
	ProcessedEvents

	// WithinTx runs fn against a Repository bound to a single database
	// transaction, committing on a nil return and rolling back otherwise.
	// Every event the router handles runs inside exactly one WithinTx
	// call, so the idempotency mark and its projection writes land or
	// fail together.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Repository) error) error

	// RecordSalesFact inserts a sales fact idempotently on its own
	// derived event id. ok is false when the fact already existed.
	RecordSalesFact(ctx context.Context, f entities.SalesFact) (ok bool, err error)
	// RecordStockFact inserts a stock fact idempotently on its own
	// derived event id. ok is false when the fact already existed.
	RecordStockFact(ctx context.Context, f entities.StockFact) (ok bool, err error)

	// CurrentStock returns the latest known quantity_after for a product,
	// falling back to summing all deltas if no movement carries one.
	CurrentStock(ctx context.Context, tenantID, productID string) (float64, error)
	// AverageDailySales sums sales_facts.quantity over the trailing
	// window and divides by its length in days.
	AverageDailySales(ctx context.Context, tenantID, productID string, window time.Duration) (float64, error)

	// UpsertStockAlert replaces the single active alert row for
	// (tenant, product), creating it if absent.
	UpsertStockAlert(ctx context.Context, alert entities.StockAlert) error
	// ResolveStockAlert marks the active alert for (tenant, product)
	// resolved, if one exists.
	ResolveStockAlert(ctx context.Context, tenantID, productID string) error
	// UpsertReplenishmentSuggestion replaces the single active
	// suggestion row for (tenant, product).
	UpsertReplenishmentSuggestion(ctx context.Context, s entities.ReplenishmentSuggestion) error
	// ClearReplenishmentSuggestion marks the active suggestion for
	// (tenant, product) resolved when stock is no longer short.
	ClearReplenishmentSuggestion(ctx context.Context, tenantID, productID string) error

	// OrdersContainingProduct returns distinct order ids from sales_facts
	// for productID within the trailing window.
	OrdersContainingProduct(ctx context.Context, tenantID, productID string, window time.Duration) ([]string, error)
	// OtherProductsInOrders returns, for each order id, the distinct
	// product ids in that order other than excludeProductID.
	OtherProductsInOrders(ctx context.Context, tenantID string, orderIDs []string, excludeProductID string) (map[string][]string, error)
	// UpsertSalesSuggestion replaces the suggestion row keyed by
	// (tenant, suggestion_type, source_product, suggested_product).
	UpsertSalesSuggestion(ctx context.Context, s entities.SalesSuggestion) error

	// UpsertSupplierPriceAlert replaces the alert row keyed by
	// (tenant, product, supplier).
	UpsertSupplierPriceAlert(ctx context.Context, a entities.SupplierPriceAlert) error

	// RecordQuoteConversion inserts an event-level conversion record,
	// idempotent on its event id.
	RecordQuoteConversion(ctx context.Context, c entities.QuoteConversion) (ok bool, err error)
}
