// Package main is a one-shot seed/smoke-test process: it records one demo
// sale and one demo quote-created notification through the sample
// vertical's producer, giving the outbox relay, engine worker, and
// messaging worker a real event to carry end to end.
package main

import (
	"context"
	"log"

	"corehub/contexts/sample-vertical/application"
	"corehub/internal/app/bootstrap"
)

func main() {
	app, err := bootstrap.BuildSampleVertical()
	if err != nil {
		log.Fatalf("bootstrap sample-vertical-seed failed: %v", err)
	}

	ctx := context.Background()
	producer := app.Module.Producer

	const tenantID = "demo-tenant"

	items := []application.LineItem{
		{ProductID: "sku-demo-1", Quantity: 2, UnitPrice: 49.99, TotalValue: 99.98},
	}
	if err := producer.RecordSale(ctx, tenantID, "ord-demo-1", "client-demo-1", items); err != nil {
		app.Logger.Error("failed to record demo sale", "error", err)
	}

	if err := producer.RecordQuoteCreated(ctx, tenantID, "+15550001111", "Demo Customer", "Q-DEMO-1", 199.99); err != nil {
		app.Logger.Error("failed to record demo quote_created", "error", err)
	}

	app.Logger.Info("sample vertical seed complete", "event", "sample_vertical_seed_complete", "module", "cmd/sample-vertical-seed", "layer", "process")
}
