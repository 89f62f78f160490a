package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"corehub/contexts/engine-platform/adapters/memory"
	"corehub/contexts/engine-platform/domain/entities"
)

func seedOrder(t *testing.T, store *memory.Store, tenantID, orderID string, productIDs ...string) {
	t.Helper()
	ctx := context.Background()
	for _, productID := range productIDs {
		_, err := store.RecordSalesFact(ctx, entities.SalesFact{
			EventID:    fmt.Sprintf("seed-%s-%s", orderID, productID),
			TenantID:   tenantID,
			OrderID:    orderID,
			ProductID:  productID,
			Quantity:   1,
			OccurredAt: time.Now().UTC(),
		})
		if err != nil {
			t.Fatalf("seed order: %v", err)
		}
	}
}

func TestCoOccurrenceMaterializesAtTwentyPercentThreshold(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()

	// 10 orders containing P; Q co-occurs in exactly 2 of them => 20%.
	for i := 0; i < 10; i++ {
		orderID := fmt.Sprintf("order-%d", i)
		if i < 2 {
			seedOrder(t, store, "t1", orderID, "p", "q")
		} else {
			seedOrder(t, store, "t1", orderID, "p")
		}
	}

	engine := NewSalesEngine(SalesPolicy{})
	updated, err := engine.RecomputeSuggestionsForProduct(ctx, store, "t1", "p")
	if err != nil {
		t.Fatalf("recompute suggestions: %v", err)
	}
	if updated != 1 {
		t.Fatalf("expected 1 suggestion updated, got %d", updated)
	}

	suggestions := store.SalesSuggestions()
	sug, ok := suggestions["t1|complementary|p|q"]
	if !ok {
		t.Fatalf("expected a suggestion for p -> q")
	}
	if sug.Frequency < 19.9 || sug.Frequency > 20.1 {
		t.Fatalf("expected frequency ~= 20, got %v", sug.Frequency)
	}
	if sug.Priority != entities.PriorityLow {
		t.Fatalf("expected low priority just at the materialize threshold, got %s", sug.Priority)
	}
}

func TestCoOccurrenceBelowThresholdIsNotMaterialized(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()

	for i := 0; i < 10; i++ {
		orderID := fmt.Sprintf("order-%d", i)
		if i == 0 {
			seedOrder(t, store, "t1", orderID, "p", "q")
		} else {
			seedOrder(t, store, "t1", orderID, "p")
		}
	}

	engine := NewSalesEngine(SalesPolicy{})
	updated, err := engine.RecomputeSuggestionsForProduct(ctx, store, "t1", "p")
	if err != nil {
		t.Fatalf("recompute suggestions: %v", err)
	}
	if updated != 0 {
		t.Fatalf("expected 0 suggestions below the 20%% frequency threshold, got %d", updated)
	}
}

func TestCoOccurrenceHighPriorityAboveSeventyPercent(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()

	for i := 0; i < 10; i++ {
		orderID := fmt.Sprintf("order-%d", i)
		if i < 8 {
			seedOrder(t, store, "t1", orderID, "p", "q")
		} else {
			seedOrder(t, store, "t1", orderID, "p")
		}
	}

	engine := NewSalesEngine(SalesPolicy{})
	if _, err := engine.RecomputeSuggestionsForProduct(ctx, store, "t1", "p"); err != nil {
		t.Fatalf("recompute suggestions: %v", err)
	}

	sug := store.SalesSuggestions()["t1|complementary|p|q"]
	if sug.Priority != entities.PriorityHigh {
		t.Fatalf("expected high priority at 80%% frequency, got %s", sug.Priority)
	}
}
