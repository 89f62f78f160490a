package services

import (
	"context"
	"fmt"
	"time"

	"corehub/contexts/engine-platform/domain/entities"
	"corehub/contexts/engine-platform/ports"
)

// SalesPolicy tunes the co-occurrence suggestion thresholds; defaults
// match spec's materialize-at-20%, priority-at-70/40 cutoffs.
type SalesPolicy struct {
	LookbackWindow      time.Duration
	MinFrequencyPercent float64
	HighPriorityPercent float64
	MedPriorityPercent  float64
}

func (p SalesPolicy) withDefaults() SalesPolicy {
	if p.LookbackWindow <= 0 {
		p.LookbackWindow = 90 * 24 * time.Hour
	}
	if p.MinFrequencyPercent <= 0 {
		p.MinFrequencyPercent = 20
	}
	if p.HighPriorityPercent <= 0 {
		p.HighPriorityPercent = 70
	}
	if p.MedPriorityPercent <= 0 {
		p.MedPriorityPercent = 40
	}
	return p
}

// SalesEngine computes complementary-product suggestions from
// co-occurrence in sales facts only.
type SalesEngine struct {
	policy SalesPolicy
}

func NewSalesEngine(policy SalesPolicy) *SalesEngine {
	return &SalesEngine{policy: policy.withDefaults()}
}

// RecomputeSuggestionsForProduct finds every order containing productID in
// the lookback window, counts how often each other product co-occurs, and
// upserts a suggestion for every pair clearing the frequency threshold.
func (e *SalesEngine) RecomputeSuggestionsForProduct(ctx context.Context, repo ports.Repository, tenantID, productID string) (int, error) {
	orderIDs, err := repo.OrdersContainingProduct(ctx, tenantID, productID, e.policy.LookbackWindow)
	if err != nil {
		return 0, fmt.Errorf("sales engine: orders containing product: %w", err)
	}
	if len(orderIDs) == 0 {
		return 0, nil
	}

	othersByOrder, err := repo.OtherProductsInOrders(ctx, tenantID, orderIDs, productID)
	if err != nil {
		return 0, fmt.Errorf("sales engine: other products in orders: %w", err)
	}

	coOccurrences := map[string]int{}
	for _, others := range othersByOrder {
		for _, other := range others {
			coOccurrences[other]++
		}
	}

	totalOrders := len(orderIDs)
	updated := 0
	now := time.Now().UTC()

	for other, count := range coOccurrences {
		frequency := float64(count) / float64(totalOrders) * 100
		if frequency < e.policy.MinFrequencyPercent {
			continue
		}

		var priority string
		switch {
		case frequency >= e.policy.HighPriorityPercent:
			priority = entities.PriorityHigh
		case frequency >= e.policy.MedPriorityPercent:
			priority = entities.PriorityMedium
		default:
			priority = entities.PriorityLow
		}

		if err := repo.UpsertSalesSuggestion(ctx, entities.SalesSuggestion{
			TenantID:           tenantID,
			SuggestionType:     "complementary",
			SourceProductID:    productID,
			SuggestedProductID: other,
			Frequency:          frequency,
			Priority:           priority,
			UpdatedAt:          now,
		}); err != nil {
			return updated, fmt.Errorf("sales engine: upsert suggestion: %w", err)
		}
		updated++
	}

	return updated, nil
}
