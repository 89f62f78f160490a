// Package services holds the two engines' pure-ish computation logic,
// grounded on engines_core's StockIntelligenceEngine and
// SalesIntelligenceEngine: facts-only, tenant-scoped, no vertical access.
package services

import (
	"context"
	"fmt"
	"math"
	"time"

	"corehub/contexts/engine-platform/domain/entities"
	"corehub/contexts/engine-platform/ports"
)

// StockPolicy tunes the rupture-risk formula; defaults match spec's
// LEAD_TIME_DAYS=7, SAFETY_PERCENT=20.
type StockPolicy struct {
	LeadTimeDays   float64
	SafetyPercent  float64
	LookbackWindow time.Duration
}

func (p StockPolicy) withDefaults() StockPolicy {
	if p.LeadTimeDays <= 0 {
		p.LeadTimeDays = 7
	}
	if p.SafetyPercent <= 0 {
		p.SafetyPercent = 20
	}
	if p.LookbackWindow <= 0 {
		p.LookbackWindow = 90 * 24 * time.Hour
	}
	return p
}

// StockEngine computes stock alerts and replenishment suggestions from
// engine-owned facts only.
type StockEngine struct {
	policy StockPolicy
}

func NewStockEngine(policy StockPolicy) *StockEngine {
	return &StockEngine{policy: policy.withDefaults()}
}

// RecomputeAlert recomputes the single active stock alert (and its paired
// replenishment suggestion) for one product, after a stock-affecting fact
// has been recorded. It upserts when stock is short of the minimum and
// resolves/clears when it is not.
func (e *StockEngine) RecomputeAlert(ctx context.Context, repo ports.Repository, tenantID, productID string) error {
	avgDailySales, err := repo.AverageDailySales(ctx, tenantID, productID, e.policy.LookbackWindow)
	if err != nil {
		return fmt.Errorf("stock engine: average daily sales: %w", err)
	}
	if avgDailySales <= 0 {
		return nil
	}

	currentStock, err := repo.CurrentStock(ctx, tenantID, productID)
	if err != nil {
		return fmt.Errorf("stock engine: current stock: %w", err)
	}

	minimumStock := avgDailySales * e.policy.LeadTimeDays * (1 + e.policy.SafetyPercent/100)

	if currentStock >= minimumStock {
		if err := repo.ResolveStockAlert(ctx, tenantID, productID); err != nil {
			return fmt.Errorf("stock engine: resolve alert: %w", err)
		}
		if err := repo.ClearReplenishmentSuggestion(ctx, tenantID, productID); err != nil {
			return fmt.Errorf("stock engine: clear replenishment: %w", err)
		}
		return nil
	}

	daysUntilRupture := int(math.Floor(currentStock / avgDailySales))

	var risk string
	switch {
	case daysUntilRupture <= 7:
		risk = entities.RiskHigh
	case daysUntilRupture <= 14:
		risk = entities.RiskMedium
	default:
		risk = entities.RiskLow
	}

	explanation := fmt.Sprintf(
		"current stock %.2f, average daily sales %.2f, lead time %.0f days, suggested minimum stock %.2f, estimated rupture in %d days",
		currentStock, avgDailySales, e.policy.LeadTimeDays, minimumStock, daysUntilRupture,
	)

	now := time.Now().UTC()
	if err := repo.UpsertStockAlert(ctx, entities.StockAlert{
		TenantID:         tenantID,
		ProductID:        productID,
		RiskLevel:        risk,
		CurrentStock:     currentStock,
		MinimumStock:     minimumStock,
		DaysUntilRupture: daysUntilRupture,
		Status:           entities.AlertStatusActive,
		Explanation:      explanation,
		UpdatedAt:        now,
	}); err != nil {
		return fmt.Errorf("stock engine: upsert alert: %w", err)
	}

	priority := riskToPriority(risk)
	return repo.UpsertReplenishmentSuggestion(ctx, entities.ReplenishmentSuggestion{
		TenantID:          tenantID,
		ProductID:         productID,
		SuggestedQuantity: minimumStock - currentStock,
		Priority:          priority,
		Status:            entities.AlertStatusActive,
		UpdatedAt:         now,
	})
}

func riskToPriority(risk string) string {
	switch risk {
	case entities.RiskHigh:
		return entities.PriorityHigh
	case entities.RiskMedium:
		return entities.PriorityMedium
	default:
		return entities.PriorityLow
	}
}
