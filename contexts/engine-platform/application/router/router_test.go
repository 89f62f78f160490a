package router

import (
	"context"
	"fmt"
	"testing"
	"time"

	"corehub/contexts/engine-platform/adapters/memory"
	"corehub/contexts/engine-platform/domain/entities"
	"corehub/contexts/engine-platform/domain/services"
	"corehub/internal/shared/events"
)

func TestSaleRecordedWorkedExample(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()

	// Seed 88 days at 5/day for product P; with the new sale of 10 the
	// 90-day window holds 450 units, an average of 5/day.
	now := time.Now().UTC()
	for i := 0; i < 88; i++ {
		_, err := store.RecordSalesFact(ctx, entities.SalesFact{
			EventID:    fmt.Sprintf("seed-p-%d", i),
			TenantID:   "t1",
			OrderID:    "seed-order",
			ProductID:  "P",
			Quantity:   5,
			OccurredAt: now.Add(-time.Duration(i) * 24 * time.Hour),
		})
		if err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	// Existing stock_facts row leaving quantity_after = 50.
	if _, err := store.RecordStockFact(ctx, entities.StockFact{
		EventID: "seed-stock-p", TenantID: "t1", ProductID: "P",
		MovementType: entities.MovementReceived, QuantityDelta: 0, QuantityAfter: 50, OccurredAt: now.Add(-time.Hour),
	}); err != nil {
		t.Fatalf("seed stock: %v", err)
	}

	r := New(services.NewStockEngine(services.StockPolicy{}), services.NewSalesEngine(services.SalesPolicy{}), nil)

	env := events.Envelope{
		EventID:    "E1",
		EventType:  events.EventSaleRecorded,
		TenantID:   "t1",
		Vertical:   "materials",
		OccurredAt: now,
		Payload: map[string]any{
			"order_id":     "O1",
			"delivered_at": now.Format(time.RFC3339),
			"items": []any{
				map[string]any{"product_id": "P", "quantity": float64(10), "unit_price": float64(150), "total_value": float64(1500)},
			},
		},
	}

	if err := r.Handle(ctx, store, env); err != nil {
		t.Fatalf("handle: %v", err)
	}

	facts := store.SalesFacts()
	if len(facts) != 89 { // 88 seeded + 1 new
		t.Fatalf("expected 89 sales facts, got %d", len(facts))
	}

	stockFacts := store.StockFacts()
	var newMovement *entities.StockFact
	for i := range stockFacts {
		if stockFacts[i].QuantityDelta == -10 {
			newMovement = &stockFacts[i]
		}
	}
	if newMovement == nil {
		t.Fatalf("expected a new stock movement with delta -10")
	}
	if newMovement.QuantityAfter != 40 {
		t.Fatalf("expected quantity_after=40, got %v", newMovement.QuantityAfter)
	}

	alert, ok := store.StockAlerts()["t1|P"]
	if !ok {
		t.Fatalf("expected exactly one active alert for (t1, P)")
	}
	if alert.RiskLevel != entities.RiskMedium {
		t.Fatalf("expected medium risk, got %s", alert.RiskLevel)
	}
	if alert.DaysUntilRupture != 8 {
		t.Fatalf("expected days_until_rupture=8, got %d", alert.DaysUntilRupture)
	}
}

func TestSaleRecordedDerivesIdempotentPerItemEventIDs(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	r := New(services.NewStockEngine(services.StockPolicy{}), services.NewSalesEngine(services.SalesPolicy{}), nil)

	env := events.Envelope{
		EventID:    "e9f5b1b0-2c3d-4e5f-8a9b-0c1d2e3f4a5b",
		EventType:  events.EventSaleRecorded,
		TenantID:   "t1",
		OccurredAt: time.Now().UTC(),
		Payload: map[string]any{
			"order_id": "O1",
			"items": []any{
				map[string]any{"product_id": "P1", "quantity": float64(1), "unit_price": float64(10)},
				map[string]any{"product_id": "P2", "quantity": float64(1), "unit_price": float64(10)},
			},
		},
	}

	if err := r.Handle(ctx, store, env); err != nil {
		t.Fatalf("first handle: %v", err)
	}
	firstCount := len(store.SalesFacts())

	// Re-handling the same envelope (simulating a redelivered/reclaimed
	// message) must not double-count: each per-item fact's derived id is
	// unchanged, so RecordSalesFact/RecordStockFact are no-ops.
	if err := r.Handle(ctx, store, env); err != nil {
		t.Fatalf("second handle: %v", err)
	}
	if got := len(store.SalesFacts()); got != firstCount {
		t.Fatalf("expected idempotent replay, got %d facts after replay, want %d", got, firstCount)
	}
}

func TestQuoteConvertedRecordsConversion(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	r := New(services.NewStockEngine(services.StockPolicy{}), services.NewSalesEngine(services.SalesPolicy{}), nil)

	env := events.Envelope{
		EventID:    "E2",
		EventType:  events.EventQuoteConverted,
		TenantID:   "t1",
		OccurredAt: time.Now().UTC(),
		Payload:    map[string]any{"quote_id": "Q1", "order_id": "O1"},
	}
	if err := r.Handle(ctx, store, env); err != nil {
		t.Fatalf("handle: %v", err)
	}

	// Handle already recorded E2; recording it again must be a no-op.
	again, err := store.RecordQuoteConversion(ctx, entities.QuoteConversion{EventID: "E2"})
	if err != nil {
		t.Fatalf("record again: %v", err)
	}
	if again {
		t.Fatalf("expected E2 to already be recorded by Handle")
	}

	ok, err := store.RecordQuoteConversion(ctx, entities.QuoteConversion{EventID: "E3"})
	if err != nil {
		t.Fatalf("record new: %v", err)
	}
	if !ok {
		t.Fatalf("expected a fresh event id to record successfully")
	}
}

func TestStockUpdatedAppendsFactAndRecomputesAlert(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()

	now := time.Now().UTC()
	for i := 0; i < 90; i++ {
		if _, err := store.RecordSalesFact(ctx, entities.SalesFact{
			EventID: fmt.Sprintf("seed-r-%d", i), TenantID: "t1", OrderID: "seed-order", ProductID: "P",
			Quantity: 5, OccurredAt: now.Add(-time.Duration(i) * 24 * time.Hour),
		}); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	if _, err := store.RecordStockFact(ctx, entities.StockFact{
		EventID: "seed-stock-r", TenantID: "t1", ProductID: "P",
		MovementType: entities.MovementReceived, QuantityDelta: 0, QuantityAfter: 10, OccurredAt: now.Add(-time.Hour),
	}); err != nil {
		t.Fatalf("seed stock: %v", err)
	}

	r := New(services.NewStockEngine(services.StockPolicy{}), services.NewSalesEngine(services.SalesPolicy{}), nil)

	env := events.Envelope{
		EventID: "E5", EventType: events.EventStockUpdated, TenantID: "t1", OccurredAt: now,
		Payload: map[string]any{
			"product_id": "P", "reference_id": "PO-1", "movement_type": entities.MovementReceived,
			"quantity_delta": float64(40),
		},
	}
	if err := r.Handle(ctx, store, env); err != nil {
		t.Fatalf("handle: %v", err)
	}

	stockFacts := store.StockFacts()
	var newFact *entities.StockFact
	for i := range stockFacts {
		if stockFacts[i].EventID == "E5" {
			newFact = &stockFacts[i]
		}
	}
	if newFact == nil {
		t.Fatalf("expected a stock fact recorded for E5")
	}
	if newFact.MovementType != entities.MovementReceived || newFact.QuantityAfter != 50 {
		t.Fatalf("expected received movement with quantity_after=50, got %+v", newFact)
	}

	if _, ok := store.StockAlerts()["t1|P"]; ok {
		t.Fatalf("expected no active alert once stock is replenished to 50 against a 5/day rate")
	}

	// Re-handling the same envelope must be idempotent on EventID.
	if err := r.Handle(ctx, store, env); err != nil {
		t.Fatalf("second handle: %v", err)
	}
	if got := len(store.StockFacts()); got != len(stockFacts) {
		t.Fatalf("expected idempotent replay, got %d stock facts, want %d", got, len(stockFacts))
	}
}

func TestUnknownEventTypeIsANoOp(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	r := New(services.NewStockEngine(services.StockPolicy{}), services.NewSalesEngine(services.SalesPolicy{}), nil)

	env := events.Envelope{EventID: "E4", EventType: "something_new", TenantID: "t1", OccurredAt: time.Now().UTC()}
	if err := r.Handle(ctx, store, env); err != nil {
		t.Fatalf("expected no error for unknown event type, got %v", err)
	}
}
