// Package entities holds the engine-owned fact and projection rows (C6).
// Engines operate only on these tables; they never read vertical tables
// directly, so a new vertical gets the same intelligence for free.
package entities

import "time"

// SalesFact is one line item from a delivered order, idempotent on EventID
// (derived per-item via UUIDv5 so a retried batch never double-counts).
type SalesFact struct {
	ID         int64
	EventID    string
	TenantID   string
	OrderID    string
	ProductID  string
	ClientID   string
	Quantity   float64
	UnitPrice  float64
	TotalValue float64
	OccurredAt time.Time
}

// StockMovement types recorded on StockFact.
const (
	MovementSale       = "sale"
	MovementReceived   = "received"
	MovementAdjustment = "adjustment"
)

// StockFact is one stock movement, idempotent on EventID.
type StockFact struct {
	ID            int64
	EventID       string
	TenantID      string
	ProductID     string
	MovementType  string
	QuantityDelta float64
	QuantityAfter float64
	ReferenceID   string
	OccurredAt    time.Time
}

// Risk levels for StockAlert.
const (
	RiskHigh   = "high"
	RiskMedium = "medium"
	RiskLow    = "low"
)

// Alert statuses.
const (
	AlertStatusActive   = "active"
	AlertStatusResolved = "resolved"
)

// StockAlert is the single active rupture-risk alert for a (tenant, product).
type StockAlert struct {
	ID               int64
	TenantID         string
	ProductID        string
	RiskLevel        string
	CurrentStock     float64
	MinimumStock     float64
	DaysUntilRupture int
	Status           string
	Explanation      string
	UpdatedAt        time.Time
}

// ReplenishmentSuggestion is the single active restock suggestion for a
// (tenant, product). Populated from the same stock-alert computation.
type ReplenishmentSuggestion struct {
	ID                int64
	TenantID          string
	ProductID         string
	SuggestedQuantity float64
	Priority          string
	Status            string
	UpdatedAt         time.Time
}

// Suggestion priorities, shared by sales suggestions and replenishment.
const (
	PriorityHigh   = "high"
	PriorityMedium = "medium"
	PriorityLow    = "low"
)

// SalesSuggestion is a complementary-product recommendation derived from
// co-occurrence in delivered orders over the trailing window.
type SalesSuggestion struct {
	ID                 int64
	TenantID           string
	SuggestionType     string
	SourceProductID    string
	SuggestedProductID string
	Frequency          float64
	Priority           string
	UpdatedAt          time.Time
}

// SupplierPriceAlert flags a material change in a supplier's quoted price
// for a product, analogous to StockAlert's upsert-by-key shape.
type SupplierPriceAlert struct {
	ID         int64
	TenantID   string
	ProductID  string
	SupplierID string
	OldPrice   float64
	NewPrice   float64
	ChangePct  float64
	Status     string
	UpdatedAt  time.Time
}

// QuoteConversion is an event-level record of a quote turning into an
// order; no further computation is performed at conversion time.
type QuoteConversion struct {
	ID         int64
	EventID    string
	TenantID   string
	QuoteID    string
	OrderID    string
	OccurredAt time.Time
}
